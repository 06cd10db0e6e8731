package collection

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/config"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	"github.com/kolektiva/kolektiva/internal/notification"
	obsmetrics "github.com/kolektiva/kolektiva/internal/observability/metrics"
	"github.com/kolektiva/kolektiva/internal/processor"
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	"github.com/kolektiva/kolektiva/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Executor runs the recheck-then-charge sequence for one obligation. The
// obligation row is re-read under a row lock and the pending attempt row is
// inserted in the same transaction; the processor call happens only after
// that transaction commits, never while holding the lock.
type Executor struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.CollectionConfig
	contribs  contributiondomain.Repository
	autopay   autopaydomain.Repository
	wallet    walletdomain.Service
	processor processor.Processor
	notifier  notification.Service
}

func NewExecutor(
	gdb *gorm.DB,
	log *zap.Logger,
	genID *snowflake.Node,
	clk clock.Clock,
	cfg config.CollectionConfig,
	contribs contributiondomain.Repository,
	autopay autopaydomain.Repository,
	wallet walletdomain.Service,
	proc processor.Processor,
	notifier notification.Service,
) *Executor {
	return &Executor{
		db:        gdb,
		log:       log.Named("collection.executor"),
		genID:     genID,
		clock:     clk,
		cfg:       cfg,
		contribs:  contribs,
		autopay:   autopay,
		wallet:    wallet,
		processor: proc,
		notifier:  notifier,
	}
}

// Collect charges one obligation, retrying once on recoverable failures.
// When both tries fail, or the first failure is terminal, the payer's
// auto-pay is disabled and the obligation stays unsettled.
func (e *Executor) Collect(ctx context.Context, obligationID snowflake.ID, pref autopaydomain.Preference) (AttemptOutcome, error) {
	if pref.InstrumentToken == nil {
		return "", autopaydomain.ErrMissingInstrument
	}
	metrics := obsmetrics.Scheduler()

	for {
		attempt, err := e.beginAttempt(ctx, obligationID, pref)
		if err != nil {
			return "", err
		}

		result, chargeErr := e.processor.Charge(ctx, processor.ChargeRequest{
			InstrumentToken: *pref.InstrumentToken,
			Amount:          attempt.Amount,
			Currency:        attempt.Currency,
			IdempotencyKey:  attempt.ID.String(),
		})
		if chargeErr == nil {
			if err := e.FinalizeChargeSuccess(ctx, attempt.ID, result.Reference); err != nil {
				return "", err
			}
			metrics.IncAttempt("success")
			return AttemptSuccess, nil
		}

		recoverable := processor.Recoverable(chargeErr)
		if err := e.finalizeChargeFailure(ctx, attempt, chargeErr, recoverable); err != nil {
			return "", err
		}
		metrics.IncAttempt("failed")
		e.log.Warn("charge attempt failed",
			zap.Int64("obligation_id", int64(obligationID)),
			zap.Int("attempt_no", attempt.AttemptNo),
			zap.String("failure_code", processor.FailureCode(chargeErr)),
			zap.Bool("recoverable", recoverable),
		)

		if recoverable && attempt.AttemptNo < maxAttempts {
			continue
		}

		if err := e.disableAutoPay(ctx, pref, processor.FailureCode(chargeErr)); err != nil {
			return AttemptFailed, err
		}
		return AttemptFailed, nil
	}
}

// beginAttempt is the locked half of the sequence: re-read the obligation
// FOR UPDATE, verify it is still unsettled and under the attempt cap, and
// insert the pending attempt row.
func (e *Executor) beginAttempt(ctx context.Context, obligationID snowflake.ID, pref autopaydomain.Preference) (*CollectionAttempt, error) {
	now := e.clock.Now()
	var attempt *CollectionAttempt

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obligation, err := e.contribs.FindByIDForUpdate(ctx, tx, obligationID)
		if err != nil {
			return err
		}
		if !obligation.Status.Unsettled() {
			return contributiondomain.ErrAlreadySettled
		}

		var prior int64
		if err := tx.Raw(
			`SELECT COUNT(*) FROM collection_attempts WHERE obligation_id = ?`,
			int64(obligationID),
		).Scan(&prior).Error; err != nil {
			return err
		}
		if prior >= maxAttempts {
			return ErrAttemptsExhausted
		}

		attempt = &CollectionAttempt{
			ID:           e.genID.Generate(),
			ObligationID: obligation.ID,
			AttemptNo:    int(prior) + 1,
			GroupID:      obligation.GroupID,
			PayerID:      obligation.PayerID,
			Amount:       obligation.Amount + e.cfg.ProcessorFee + e.cfg.PlatformFee,
			Currency:     obligation.Currency,
			Outcome:      AttemptPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.Create(attempt).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Another executor inserted the same attempt_no concurrently.
			return nil, ErrAttemptsExhausted
		}
		return nil, err
	}
	return attempt, nil
}

// FinalizeChargeSuccess settles a charged attempt: attempt to success,
// obligation to confirmed, recipient wallet credited, all in one
// transaction. Safe to call more than once; duplicate webhook callbacks are
// no-ops because every write is guarded.
func (e *Executor) FinalizeChargeSuccess(ctx context.Context, attemptID snowflake.ID, processorRef string) error {
	now := e.clock.Now()

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := e.findAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Outcome == AttemptSuccess {
			return nil
		}

		res := tx.Exec(
			`UPDATE collection_attempts
			 SET outcome = ?, processor_ref = ?, updated_at = ?
			 WHERE id = ? AND outcome = ?`,
			AttemptSuccess, processorRef, now, int64(attemptID), AttemptPending,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		obligation, err := e.contribs.FindByIDForUpdate(ctx, tx, attempt.ObligationID)
		if err != nil {
			return err
		}
		changed, err := e.contribs.TransitionStatus(ctx, tx, attempt.ObligationID,
			[]contributiondomain.ObligationStatus{
				contributiondomain.StatusNotPaid,
				contributiondomain.StatusNotReceived,
			},
			contributiondomain.StatusConfirmed,
			contributiondomain.OriginAutoDebit,
			now,
		)
		if err != nil {
			return err
		}
		if !changed {
			// Settled manually between charge and callback. The wallet
			// credit below still keys on the attempt so money is never
			// posted twice.
			e.log.Warn("obligation settled before charge callback",
				zap.Int64("obligation_id", int64(attempt.ObligationID)))
		}

		err = e.wallet.Credit(ctx, tx, obligation.RecipientID, obligation.Amount,
			obligation.Currency, walletdomain.SourceTypeCollection, attempt.ID)
		if err != nil && !errors.Is(err, walletdomain.ErrDuplicateEntry) {
			return err
		}

		e.notifier.Notify(obligation.PayerID, notification.KindCollectionSucceeded, map[string]any{
			"group_id": obligation.GroupID.String(),
			"amount":   attempt.Amount,
			"currency": attempt.Currency,
		})
		return nil
	})
}

// FinalizeChargeFailure records an async charge failure reported over the
// webhook channel.
func (e *Executor) FinalizeChargeFailure(ctx context.Context, processorRef string, failureCode string) error {
	attempt, err := e.AttemptByRef(ctx, processorRef)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	res := e.db.WithContext(ctx).Exec(
		`UPDATE collection_attempts
		 SET outcome = ?, failure_code = ?, updated_at = ?
		 WHERE id = ? AND outcome = ?`,
		AttemptFailed, failureCode, now, int64(attempt.ID), AttemptPending,
	)
	return res.Error
}

func (e *Executor) finalizeChargeFailure(ctx context.Context, attempt *CollectionAttempt, chargeErr error, recoverable bool) error {
	now := e.clock.Now()
	res := e.db.WithContext(ctx).Exec(
		`UPDATE collection_attempts
		 SET outcome = ?, failure_code = ?, recoverable = ?, updated_at = ?
		 WHERE id = ? AND outcome = ?`,
		AttemptFailed, processor.FailureCode(chargeErr), recoverable, now,
		int64(attempt.ID), AttemptPending,
	)
	return res.Error
}

func (e *Executor) disableAutoPay(ctx context.Context, pref autopaydomain.Preference, failureCode string) error {
	changed, err := e.autopay.Disable(ctx, e.db, pref.UserID, pref.GroupID, e.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		obsmetrics.Scheduler().IncAutoPayDisabled()
		e.notifier.Notify(pref.UserID, notification.KindAutoPayDisabled, map[string]any{
			"group_id": pref.GroupID.String(),
			"reason":   failureCode,
		})
	}
	return nil
}

func (e *Executor) findAttempt(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*CollectionAttempt, error) {
	var attempt CollectionAttempt
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM collection_attempts WHERE id = ?`+db.UpdateLockClause(tx),
		int64(id),
	).Scan(&attempt).Error
	if err != nil {
		return nil, err
	}
	if attempt.ID == 0 {
		return nil, ErrAttemptNotFound
	}
	return &attempt, nil
}

// AttemptByRef resolves the attempt a processor callback refers to.
func (e *Executor) AttemptByRef(ctx context.Context, processorRef string) (*CollectionAttempt, error) {
	var attempt CollectionAttempt
	err := e.db.WithContext(ctx).Raw(
		`SELECT * FROM collection_attempts WHERE processor_ref = ? ORDER BY created_at DESC LIMIT 1`,
		processorRef,
	).Scan(&attempt).Error
	if err != nil {
		return nil, err
	}
	if attempt.ID == 0 {
		return nil, ErrAttemptNotFound
	}
	return &attempt, nil
}

// AttemptsFor lists attempts for an obligation, oldest first.
func (e *Executor) AttemptsFor(ctx context.Context, obligationID snowflake.ID) ([]CollectionAttempt, error) {
	var attempts []CollectionAttempt
	err := e.db.WithContext(ctx).Raw(
		`SELECT * FROM collection_attempts WHERE obligation_id = ? ORDER BY attempt_no ASC`,
		int64(obligationID),
	).Scan(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
