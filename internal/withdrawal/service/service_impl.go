package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/config"
	"github.com/kolektiva/kolektiva/internal/notification"
	"github.com/kolektiva/kolektiva/internal/processor"
	"github.com/kolektiva/kolektiva/internal/ratelimit"
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	domain "github.com/kolektiva/kolektiva/internal/withdrawal/domain"
	"github.com/kolektiva/kolektiva/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepLockKey = "withdrawal:sweep:leader"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	WalletSvc walletdomain.Service
	Processor processor.Processor
	Notifier  notification.Service
	Locker    *ratelimit.Locker `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.WithdrawalConfig
	wallet    walletdomain.Service
	processor processor.Processor
	notifier  notification.Service
	locker    *ratelimit.Locker
}

func NewService(p Params) domain.Service {
	cfg := p.Cfg.Withdrawal
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("withdrawal.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       cfg,
		wallet:    p.WalletSvc,
		processor: p.Processor,
		notifier:  p.Notifier,
		locker:    p.Locker,
	}
}

// Request reserves the funds immediately: the wallet debit and the pending
// request row commit together, so the balance can never be withdrawn twice.
func (s *Service) Request(ctx context.Context, userID snowflake.ID, amount int64, currency string) (*domain.WithdrawalRequest, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	request := &domain.WithdrawalRequest{
		ID:         s.genID.Generate(),
		UserID:     userID,
		Amount:     amount,
		Currency:   currency,
		Status:     domain.StatusPending,
		EligibleAt: now.Add(s.cfg.HoldDuration),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(request).Error; err != nil {
			return err
		}
		return s.wallet.Debit(ctx, tx, userID, amount, currency,
			walletdomain.SourceTypeWithdrawal, request.ID)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(userID, notification.KindWithdrawalRequested, map[string]any{
		"request_id":  request.ID.String(),
		"amount":      amount,
		"currency":    currency,
		"eligible_at": request.EligibleAt.Format(time.RFC3339),
	})
	return request, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.WithdrawalRequest, error) {
	var request domain.WithdrawalRequest
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM withdrawal_requests WHERE id = ?`, int64(id),
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == 0 {
		return nil, domain.ErrRequestNotFound
	}
	return &request, nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID, before snowflake.ID, limit int) ([]domain.WithdrawalRequest, error) {
	var requests []domain.WithdrawalRequest
	query := `SELECT * FROM withdrawal_requests WHERE user_id = ?`
	args := []any{int64(userID)}
	if before != 0 {
		query += ` AND id < ?`
		args = append(args, int64(before))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// Sweep dispatches payouts for requests whose hold lapsed. Claimed rows move
// to processing inside the claim transaction; the processor call happens
// after commit with the request id as idempotency key.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	dispatched := 0
	err := s.locker.RunExclusive(ctx, sweepLockKey, s.cfg.SweepInterval/2, func(ctx context.Context) error {
		var err error
		dispatched, err = s.sweep(ctx)
		return err
	})
	if errors.Is(err, ratelimit.ErrNotLeader) {
		return 0, nil
	}
	return dispatched, err
}

func (s *Service) sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()

	var claimed []domain.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Raw(
			`SELECT * FROM withdrawal_requests
			 WHERE status = ? AND eligible_at <= ?
			 ORDER BY eligible_at ASC
			 LIMIT ?`+db.LockingClause(tx),
			domain.StatusPending, now, s.cfg.BatchSize,
		).Scan(&claimed).Error
		if err != nil {
			return err
		}
		for i := range claimed {
			res := tx.Exec(
				`UPDATE withdrawal_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
				domain.StatusProcessing, now, int64(claimed[i].ID), domain.StatusPending,
			)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var sweepErr error
	dispatched := 0
	for _, request := range claimed {
		result, payoutErr := s.processor.Payout(ctx, processor.PayoutRequest{
			UserID:         request.UserID.String(),
			Amount:         request.Amount,
			Currency:       request.Currency,
			IdempotencyKey: request.ID.String(),
		})
		if payoutErr != nil {
			if failErr := s.failRequest(ctx, &request, processor.FailureCode(payoutErr)); failErr != nil {
				sweepErr = errors.Join(sweepErr, failErr)
			}
			continue
		}

		res := s.db.WithContext(ctx).Exec(
			`UPDATE withdrawal_requests SET processor_ref = ?, updated_at = ? WHERE id = ?`,
			result.Reference, s.clock.Now(), int64(request.ID),
		)
		if res.Error != nil {
			sweepErr = errors.Join(sweepErr, res.Error)
			continue
		}
		dispatched++
	}
	return dispatched, sweepErr
}

func (s *Service) FinalizePayout(ctx context.Context, processorRef string, succeeded bool, failureCode string) error {
	var request domain.WithdrawalRequest
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM withdrawal_requests WHERE processor_ref = ? ORDER BY created_at DESC LIMIT 1`,
		processorRef,
	).Scan(&request).Error
	if err != nil {
		return err
	}
	if request.ID == 0 {
		return domain.ErrRequestNotFound
	}

	if succeeded {
		res := s.db.WithContext(ctx).Exec(
			`UPDATE withdrawal_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			domain.StatusCompleted, s.clock.Now(), int64(request.ID), domain.StatusProcessing,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			s.notifier.Notify(request.UserID, notification.KindWithdrawalCompleted, map[string]any{
				"request_id": request.ID.String(),
				"amount":     request.Amount,
				"currency":   request.Currency,
			})
		}
		return nil
	}
	return s.failRequest(ctx, &request, failureCode)
}

// failRequest moves a request to failed and returns the reserved funds. The
// refund keys on the request id, so a duplicate failure callback cannot
// credit twice.
func (s *Service) failRequest(ctx context.Context, request *domain.WithdrawalRequest, failureCode string) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`UPDATE withdrawal_requests SET status = ?, failure_code = ?, updated_at = ?
			 WHERE id = ? AND status IN ?`,
			domain.StatusFailed, failureCode, now,
			int64(request.ID), []string{string(domain.StatusPending), string(domain.StatusProcessing)},
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		creditErr := s.wallet.Credit(ctx, tx, request.UserID, request.Amount, request.Currency,
			walletdomain.SourceTypeWithdrawalRefund, request.ID)
		if creditErr != nil && !errors.Is(creditErr, walletdomain.ErrDuplicateEntry) {
			return creditErr
		}
		s.notifier.Notify(request.UserID, notification.KindWithdrawalFailed, map[string]any{
			"request_id": request.ID.String(),
			"amount":     request.Amount,
			"currency":   request.Currency,
			"reason":     failureCode,
		})
		return nil
	})
	return err
}
