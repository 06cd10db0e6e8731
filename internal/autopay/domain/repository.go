package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, userID, groupID snowflake.ID) (*Preference, error)
	Upsert(ctx context.Context, db *gorm.DB, pref *Preference) error
	ListEnabledByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]Preference, error)
	// Disable flips enabled off only if it is currently on, reporting whether
	// a row changed. Used by the executor so concurrent disablements are safe.
	Disable(ctx context.Context, db *gorm.DB, userID, groupID snowflake.ID, now time.Time) (bool, error)
}
