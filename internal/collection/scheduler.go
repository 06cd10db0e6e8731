package collection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/config"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	"github.com/kolektiva/kolektiva/internal/defaulter"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	"github.com/kolektiva/kolektiva/internal/notification"
	obsmetrics "github.com/kolektiva/kolektiva/internal/observability/metrics"
	"github.com/kolektiva/kolektiva/internal/processor"
	"github.com/kolektiva/kolektiva/internal/ratelimit"
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaderLockKey = "collection:sweep:leader"

var ErrInvalidConfig = errors.New("invalid scheduler configuration")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	GroupRepo   groupdomain.Repository
	ContribRepo contributiondomain.Repository
	AutoPayRepo autopaydomain.Repository
	Classifier  defaulter.Classifier
	WalletSvc   walletdomain.Service
	Processor   processor.Processor
	Notifier    notification.Service
	Locker      *ratelimit.Locker `optional:"true"`
}

// Scheduler sweeps groups for due obligations and hands each one to the
// executor. One sweep per interval; the redis leader lock keeps concurrent
// replicas from double-sweeping.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.CollectionConfig
	groupRepo   groupdomain.Repository
	contribRepo contributiondomain.Repository
	autoPayRepo autopaydomain.Repository
	classifier  defaulter.Classifier
	notifier    notification.Service
	locker      *ratelimit.Locker
	executor    *Executor
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.GroupRepo == nil || p.ContribRepo == nil || p.AutoPayRepo == nil ||
		p.Classifier == nil || p.WalletSvc == nil || p.Processor == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Cfg.Collection
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = 24 * time.Hour
	}

	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("collection.scheduler"),
		clock:       p.Clock,
		cfg:         cfg,
		groupRepo:   p.GroupRepo,
		contribRepo: p.ContribRepo,
		autoPayRepo: p.AutoPayRepo,
		classifier:  p.Classifier,
		notifier:    p.Notifier,
		locker:      p.Locker,
		executor: NewExecutor(p.DB, p.Log, p.GenID, p.Clock, cfg,
			p.ContribRepo, p.AutoPayRepo, p.WalletSvc, p.Processor, p.Notifier),
	}, nil
}

// Executor exposes the attempt executor for the webhook ingestion path.
func (s *Scheduler) Executor() *Executor {
	return s.executor
}

// RunOnce sweeps every group type under the leader lock.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	run := func(ctx context.Context) error {
		var err error
		for _, gt := range []groupdomain.GroupType{
			groupdomain.GroupTypeBirthday,
			groupdomain.GroupTypeSubscription,
			groupdomain.GroupTypeGeneral,
		} {
			_, runErr := s.RunGroupType(ctx, gt)
			err = errors.Join(err, runErr)
		}
		return err
	}

	err := s.locker.RunExclusive(ctx, leaderLockKey, s.cfg.RunInterval/2, run)
	if errors.Is(err, ratelimit.ErrNotLeader) {
		s.log.Debug("skipping sweep, another replica holds the leader lock")
		return nil
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("collection sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunGroupType sweeps all groups of one type. Also the entry point for the
// on-demand trigger endpoint.
func (s *Scheduler) RunGroupType(ctx context.Context, groupType groupdomain.GroupType) (RunResult, error) {
	job := "collect_" + string(groupType)
	metrics := obsmetrics.Scheduler()
	metrics.IncJobRun(job)
	start := s.clock.Now()
	defer func() { metrics.ObserveJobDuration(job, time.Since(start)) }()

	var result RunResult

	groups, err := s.groupRepo.ListByType(ctx, s.db, groupType)
	if err != nil {
		metrics.IncJobError(job)
		return result, fmt.Errorf("%s: %w", job, err)
	}

	var jobErr error
	for _, group := range groups {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		groupResult, err := s.runGroup(ctx, group)
		result.merge(groupResult)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
		}
	}
	if jobErr != nil {
		metrics.IncJobError(job)
		return result, fmt.Errorf("%s: %w", job, jobErr)
	}
	return result, nil
}

func (s *Scheduler) runGroup(ctx context.Context, group groupdomain.Group) (RunResult, error) {
	var result RunResult
	metrics := obsmetrics.Scheduler()
	now := s.clock.Now()
	log := s.log.With(zap.Int64("group_id", int64(group.ID)))

	prefs, err := s.autoPayRepo.ListEnabledByGroup(ctx, s.db, group.ID)
	if err != nil {
		return result, err
	}
	if len(prefs) == 0 {
		return result, nil
	}

	// A defaulter must not receive collections. The whole group is skipped
	// and every enrolled member is told why.
	recipientReport, err := s.classifier.Check(ctx, group.RecipientID, 0)
	if err != nil {
		return result, err
	}
	if recipientReport.HasOverdue {
		result.RecipientIsDefaulter++
		metrics.IncSkip("recipient_defaulter")
		log.Info("skipping group, recipient is a defaulter",
			zap.Int64("recipient_id", int64(group.RecipientID)),
			zap.Int64("overdue_count", recipientReport.OverdueCount),
		)
		s.notifier.Notify(group.RecipientID, notification.KindRecipientDefaulter, map[string]any{
			"group_id": group.ID.String(),
		})
		for _, pref := range prefs {
			s.notifier.Notify(pref.UserID, notification.KindRecipientDefaulter, map[string]any{
				"group_id": group.ID.String(),
			})
		}
		return result, nil
	}

	// A general group past its deadline never collects again. Enrollment is
	// switched off the first time the condition is observed.
	if group.Type == groupdomain.GroupTypeGeneral && group.Deadline != nil && now.After(*group.Deadline) {
		for _, pref := range prefs {
			changed, err := s.autoPayRepo.Disable(ctx, s.db, pref.UserID, pref.GroupID, now)
			if err != nil {
				return result, err
			}
			if changed {
				result.AutoPayDisabled++
				metrics.IncAutoPayDisabled()
				s.notifier.Notify(pref.UserID, notification.KindDeadlinePassed, map[string]any{
					"group_id": group.ID.String(),
					"deadline": group.Deadline.Format(time.RFC3339),
				})
			}
		}
		return result, nil
	}

	prefByPayer := make(map[snowflake.ID]autopaydomain.Preference, len(prefs))
	for _, pref := range prefs {
		prefByPayer[pref.UserID] = pref
	}

	// Claim window covers one_day_before members whose due date is still a
	// day out; per-member timing is applied below.
	var claimed []contributiondomain.Obligation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var claimErr error
		claimed, claimErr = s.contribRepo.ClaimDueForGroup(ctx, tx, group.ID, now.Add(24*time.Hour), s.cfg.BatchSize)
		return claimErr
	})
	if err != nil {
		return result, err
	}

	var groupErr error
	for _, obligation := range claimed {
		pref, enrolled := prefByPayer[obligation.PayerID]
		if !enrolled {
			continue
		}
		if !DueNow(now, obligation.DueDate, pref.Timing) {
			continue
		}
		if !s.cfg.FireOnLateEnable && pref.UpdatedAt.After(ChargeAt(obligation.DueDate, pref.Timing)) {
			// Enrolled after the window opened; wait for the next cycle.
			metrics.IncSkip("late_enable")
			continue
		}

		// The obligation being collected must not flag its own payer after
		// its due instant passes.
		payerReport, err := s.classifier.Check(ctx, obligation.PayerID, 0, obligation.ID)
		if err != nil {
			groupErr = errors.Join(groupErr, err)
			continue
		}
		if payerReport.HasOverdue {
			result.SkippedDefaulters++
			metrics.IncSkip("defaulter")
			s.notifier.Notify(obligation.PayerID, notification.KindCollectionSkipped, map[string]any{
				"group_id": group.ID.String(),
				"reason":   "overdue_obligations",
			})
			continue
		}

		outcome, err := s.executor.Collect(ctx, obligation.ID, pref)
		switch {
		case errors.Is(err, contributiondomain.ErrAlreadySettled):
			result.SkippedAlreadyPaid++
			metrics.IncSkip("already_settled")
		case errors.Is(err, ErrAttemptsExhausted):
			metrics.IncSkip("attempts_exhausted")
		case err != nil:
			groupErr = errors.Join(groupErr, err)
		case outcome == AttemptSuccess:
			result.Processed++
			result.Succeeded++
		default:
			result.Processed++
			result.Failed++
		}
	}

	return result, groupErr
}
