package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service mutates auto-pay configuration. Every operation here is a sensitive
// mutation and is invoked only after the credential gate has verified the
// caller; the service itself enforces the business eligibility rules.
type Service interface {
	Enable(ctx context.Context, userID, groupID snowflake.ID, timing Timing) error
	Disable(ctx context.Context, userID, groupID snowflake.ID) error
	UpdateTiming(ctx context.Context, userID, groupID snowflake.ID, timing Timing) error
	SetInstrument(ctx context.Context, userID, groupID snowflake.ID, instrumentToken string) error
	RemoveInstrument(ctx context.Context, userID, groupID snowflake.ID) error
	Get(ctx context.Context, userID, groupID snowflake.ID) (*Preference, error)
}
