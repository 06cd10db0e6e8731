package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service runs the withdrawal hold pipeline. Funds leave the wallet when the
// request is created, sit on hold until EligibleAt, then go out as a
// processor payout. A failed payout returns the funds.
type Service interface {
	Request(ctx context.Context, userID snowflake.ID, amount int64, currency string) (*WithdrawalRequest, error)
	Get(ctx context.Context, id snowflake.ID) (*WithdrawalRequest, error)
	// ListByUser pages newest first. A zero before starts at the newest
	// request; otherwise only requests with a smaller id are returned.
	ListByUser(ctx context.Context, userID snowflake.ID, before snowflake.ID, limit int) ([]WithdrawalRequest, error)
	// Sweep sends payouts for pending requests whose hold has lapsed and
	// returns how many it dispatched.
	Sweep(ctx context.Context) (int, error)
	// FinalizePayout applies the processor's async payout result. Idempotent;
	// duplicate callbacks are no-ops.
	FinalizePayout(ctx context.Context, processorRef string, succeeded bool, failureCode string) error
}
