package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service appends wallet movements. Credit and Debit take the caller's
// transaction handle so money moves atomically with the business-state change
// that caused it.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount int64, currency string, sourceType SourceType, sourceID snowflake.ID) error
	// Debit fails with ErrInsufficientBalance when the balance would go
	// negative.
	Debit(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount int64, currency string, sourceType SourceType, sourceID snowflake.ID) error
	Balance(ctx context.Context, userID snowflake.ID, currency string) (int64, error)
}
