package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the withdrawal pipeline state. pending holds funds until
// eligible_at; processing means the payout was handed to the processor;
// completed and failed are terminal. A failed request re-credits the wallet.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type WithdrawalRequest struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	UserID   snowflake.ID `gorm:"not null;index"`
	Amount   int64        `gorm:"not null"`
	Currency string       `gorm:"type:text;not null"`
	Status   Status       `gorm:"type:text;not null;default:pending"`
	// EligibleAt is when the hold lapses and the payout may be sent.
	EligibleAt   time.Time `gorm:"not null;index"`
	ProcessorRef string    `gorm:"type:text;index"`
	FailureCode  string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }

var (
	ErrRequestNotFound = errors.New("withdrawal_request_not_found")
	ErrInvalidAmount   = errors.New("invalid_withdrawal_amount")
)
