package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	// ClaimTOTPStep advances the user's last-accepted time step and reports
	// whether step was actually newer. Concurrent claims race on one guarded
	// update; exactly one wins.
	ClaimTOTPStep(ctx context.Context, db *gorm.DB, id snowflake.ID, step int64) (bool, error)
}
