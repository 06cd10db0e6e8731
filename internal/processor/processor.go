package processor

import (
	"context"
	"errors"
)

// ChargeRequest debits a stored funding instrument. IdempotencyKey makes
// retries safe: the processor must return the original outcome for a key it
// has already seen.
type ChargeRequest struct {
	InstrumentToken string
	Amount          int64
	Currency        string
	IdempotencyKey  string
}

// PayoutRequest moves settled funds out to a user's bank account.
type PayoutRequest struct {
	UserID         string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// Result is the processor's acknowledgement. Reference is the processor-side
// identifier later echoed in webhook events.
type Result struct {
	Reference string
}

// Processor is the boundary to the external payment network.
type Processor interface {
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
	Payout(ctx context.Context, req PayoutRequest) (*Result, error)
}

// Terminal charge failures. Retrying these cannot succeed without user
// intervention.
var (
	ErrInstrumentExpired  = errors.New("instrument_expired")
	ErrInstrumentNotFound = errors.New("instrument_not_found")
	ErrDeclined           = errors.New("declined")
)

// ErrUnavailable covers transient transport and processor-side failures.
var ErrUnavailable = errors.New("processor_unavailable")

// Recoverable reports whether a charge failure may succeed on retry.
// Unknown errors are treated as recoverable so a flaky network never
// permanently disables a member's auto-pay.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrInstrumentExpired),
		errors.Is(err, ErrInstrumentNotFound),
		errors.Is(err, ErrDeclined):
		return false
	}
	return true
}

// FailureCode maps a charge error to the stable code persisted on the
// attempt row.
func FailureCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInstrumentExpired):
		return "instrument_expired"
	case errors.Is(err, ErrInstrumentNotFound):
		return "instrument_not_found"
	case errors.Is(err, ErrDeclined):
		return "declined"
	case errors.Is(err, ErrUnavailable):
		return "processor_unavailable"
	}
	return "unknown"
}
