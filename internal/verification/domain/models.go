package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Action names a sensitive mutation that must pass the credential gate.
type Action string

const (
	ActionEnableAutoPay    Action = "enable_auto_pay"
	ActionDisableAutoPay   Action = "disable_auto_pay"
	ActionUpdateTiming     Action = "update_timing"
	ActionAddInstrument    Action = "add_funding_instrument"
	ActionRemoveInstrument Action = "remove_funding_instrument"
	ActionWithdraw         Action = "withdraw"
)

func (a Action) Valid() bool {
	switch a {
	case ActionEnableAutoPay, ActionDisableAutoPay, ActionUpdateTiming,
		ActionAddInstrument, ActionRemoveInstrument, ActionWithdraw:
		return true
	}
	return false
}

type Stage string

const (
	StagePasswordVerified Stage = "password_verified"
	StageOTPSent          Stage = "otp_sent"
	StageOTPConsumed      Stage = "otp_consumed"
)

// Session is the time-boxed proof issued after a successful password check.
// The raw proof token is returned to the caller exactly once; only its hash
// is persisted.
type Session struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;index"`
	Action    Action       `gorm:"type:text;not null"`
	TokenHash string       `gorm:"type:text;not null;uniqueIndex"`
	Stage     Stage        `gorm:"type:text;not null"`
	ExpiresAt time.Time    `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Session) TableName() string { return "verification_sessions" }

// Code is a single-use one-time code bound to (user, action).
type Code struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;index"`
	Action    Action       `gorm:"type:text;not null"`
	CodeHash  string       `gorm:"type:text;not null;index"`
	ExpiresAt time.Time    `gorm:"not null"`
	UsedAt    *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

func (Code) TableName() string { return "verification_codes" }

// Gate failure modes. Each is distinguishable for audit logging; the HTTP
// layer collapses them into one generic message for the caller.
var (
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrProofInvalid      = errors.New("proof_invalid")
	ErrProofExpired      = errors.New("proof_expired")
	ErrActionMismatch    = errors.New("action_mismatch")
	ErrCodeNotFound      = errors.New("code_not_found")
	ErrCodeExpired       = errors.New("code_expired")
	ErrCodeAlreadyUsed   = errors.New("code_already_used")
	ErrInvalidAction     = errors.New("invalid_action")
)

// IsGateError reports whether err is one of the gate's authorization
// failures, which must all surface identically to callers.
func IsGateError(err error) bool {
	for _, gateErr := range []error{
		ErrInvalidCredential, ErrProofInvalid, ErrProofExpired,
		ErrActionMismatch, ErrCodeNotFound, ErrCodeExpired, ErrCodeAlreadyUsed,
	} {
		if errors.Is(err, gateErr) {
			return true
		}
	}
	return false
}
