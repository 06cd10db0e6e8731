package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kolektiva/kolektiva/internal/clock"
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	"github.com/kolektiva/kolektiva/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Credit(
	ctx context.Context,
	tx *gorm.DB,
	userID snowflake.ID,
	amount int64,
	currency string,
	sourceType walletdomain.SourceType,
	sourceID snowflake.ID,
) error {
	return s.append(ctx, tx, userID, walletdomain.DirectionCredit, amount, currency, sourceType, sourceID)
}

func (s *Service) Debit(
	ctx context.Context,
	tx *gorm.DB,
	userID snowflake.ID,
	amount int64,
	currency string,
	sourceType walletdomain.SourceType,
	sourceID snowflake.ID,
) error {
	if err := s.lockEntries(ctx, tx, userID, currency); err != nil {
		return err
	}
	balance, err := s.balanceIn(ctx, tx, userID, currency)
	if err != nil {
		return err
	}
	if balance < amount {
		return walletdomain.ErrInsufficientBalance
	}
	return s.append(ctx, tx, userID, walletdomain.DirectionDebit, amount, currency, sourceType, sourceID)
}

// lockEntries claims the user's entry rows so concurrent debitors serialize
// on the balance read. An empty wallet has nothing to lock and nothing to
// overdraw.
func (s *Service) lockEntries(ctx context.Context, tx *gorm.DB, userID snowflake.ID, currency string) error {
	lock := db.UpdateLockClause(tx)
	if lock == "" {
		return nil
	}
	var ids []int64
	return tx.WithContext(ctx).Raw(
		`SELECT id FROM wallet_entries WHERE user_id = ? AND currency = ?`+lock,
		userID,
		strings.ToUpper(strings.TrimSpace(currency)),
	).Scan(&ids).Error
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID, currency string) (int64, error) {
	return s.balanceIn(ctx, s.db, userID, currency)
}

func (s *Service) append(
	ctx context.Context,
	tx *gorm.DB,
	userID snowflake.ID,
	direction walletdomain.Direction,
	amount int64,
	currency string,
	sourceType walletdomain.SourceType,
	sourceID snowflake.ID,
) error {
	if amount <= 0 {
		return walletdomain.ErrInvalidAmount
	}
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO wallet_entries (
			id, user_id, direction, amount, currency, source_type, source_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		userID,
		direction,
		amount,
		strings.ToUpper(strings.TrimSpace(currency)),
		sourceType,
		sourceID,
		s.clock.Now(),
	).Error
	if db.IsDuplicateKeyErr(err) {
		return walletdomain.ErrDuplicateEntry
	}
	return err
}

func (s *Service) balanceIn(ctx context.Context, tx *gorm.DB, userID snowflake.ID, currency string) (int64, error) {
	var balance int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(
			SUM(CASE direction WHEN 'credit' THEN amount ELSE -amount END),
			0
		) FROM wallet_entries
		WHERE user_id = ? AND currency = ?`,
		userID,
		strings.ToUpper(strings.TrimSpace(currency)),
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}
