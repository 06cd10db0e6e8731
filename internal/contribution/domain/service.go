package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"time"
)

type CreateRequest struct {
	GroupID     snowflake.ID
	PayerID     snowflake.ID
	RecipientID snowflake.ID
	Amount      int64
	Currency    string
	DueDate     time.Time
}

// Service owns the manual settlement handshake and occurrence creation.
// Automatic settlement goes through the collection executor instead.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Obligation, error)
	Get(ctx context.Context, id snowflake.ID) (*Obligation, error)
	// MarkPaid is the payer's half of the manual handshake.
	MarkPaid(ctx context.Context, id snowflake.ID, payerID snowflake.ID) error
	// Confirm is the recipient's half; it finishes the manual handshake.
	Confirm(ctx context.Context, id snowflake.ID, recipientID snowflake.ID) error
}
