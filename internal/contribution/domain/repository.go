package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, obligation *Obligation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Obligation, error)
	// FindByIDForUpdate re-reads the row under a row lock inside tx. This is
	// the recheck half of the recheck-then-charge sequence.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Obligation, error)
	// TransitionStatus applies a guarded transition: the UPDATE is conditional
	// on the current status still being one of from, and reports whether a row
	// changed.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []ObligationStatus, to ObligationStatus, origin Origin, now time.Time) (bool, error)
	// ClaimDueForGroup claims unsettled obligations of a group whose due date
	// is within the window, batch-locked so concurrent sweeps do not collide.
	ClaimDueForGroup(ctx context.Context, tx *gorm.DB, groupID snowflake.ID, dueBefore time.Time, limit int) ([]Obligation, error)
	// CountOverdue returns count and summed amount of unsettled obligations
	// where userID is the payer and the due date is strictly before now.
	// groupID narrows the check to one group when non-zero; ids in exclude
	// are not counted.
	CountOverdue(ctx context.Context, db *gorm.DB, userID snowflake.ID, groupID snowflake.ID, now time.Time, exclude ...snowflake.ID) (int64, int64, error)
}
