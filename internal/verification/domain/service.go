package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service is the three-step credential gate. A sensitive mutation may run
// only through Execute, which re-validates the proof and consumes a one-time
// code before invoking the mutation.
type Service interface {
	// VerifyPassword checks the password and issues a short-lived proof token
	// bound to (user, action). The raw token is returned exactly once.
	VerifyPassword(ctx context.Context, userID snowflake.ID, password string, action Action) (string, error)
	// RequestCode validates the proof against the calling user and dispatches
	// a one-time code through their verification method. Authenticator
	// enrolled users generate codes on-device, so nothing is dispatched for
	// them.
	RequestCode(ctx context.Context, userID snowflake.ID, proof string, action Action) error
	// Execute re-validates the proof against the calling user, consumes the
	// code, runs fn, then emits an audit record and a notification. A proof
	// issued to another user is rejected as invalid.
	Execute(ctx context.Context, userID snowflake.ID, proof string, code string, action Action, fn func(ctx context.Context) error) error
}
