package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// SourceType records what business event produced a wallet entry.
type SourceType string

const (
	SourceTypeCollection       SourceType = "collection"
	SourceTypeWithdrawal       SourceType = "withdrawal"
	SourceTypeWithdrawalRefund SourceType = "withdrawal_refund"
)

// Entry is one append-only wallet movement. Balances are derived, never stored.
type Entry struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;index"`
	Direction Direction    `gorm:"type:text;not null"`
	Amount    int64        `gorm:"not null"`
	Currency  string       `gorm:"type:text;not null"`
	// SourceType plus SourceID make an entry idempotent per business event.
	SourceType SourceType   `gorm:"type:text;not null;uniqueIndex:idx_wallet_source"`
	SourceID   snowflake.ID `gorm:"not null;uniqueIndex:idx_wallet_source"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (Entry) TableName() string { return "wallet_entries" }

var (
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAmount       = errors.New("invalid_wallet_amount")
	ErrDuplicateEntry      = errors.New("duplicate_wallet_entry")
)
