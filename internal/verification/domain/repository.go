package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	CreateSession(ctx context.Context, db *gorm.DB, session *Session) error
	FindSessionByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Session, error)
	AdvanceSessionStage(ctx context.Context, db *gorm.DB, id snowflake.ID, stage Stage) error
	DeleteSession(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	CreateCode(ctx context.Context, db *gorm.DB, code *Code) error
	// FindLatestCode returns the most recent code matching (user, hash,
	// action) regardless of use/expiry state so failures can be classified.
	FindLatestCode(ctx context.Context, db *gorm.DB, userID snowflake.ID, codeHash string, action Action) (*Code, error)
	// ConsumeCode marks the code used only if it is still unused, in one
	// conditional UPDATE. Returns false when another request won the race.
	ConsumeCode(ctx context.Context, db *gorm.DB, id snowflake.ID, usedAt time.Time) (bool, error)
}
