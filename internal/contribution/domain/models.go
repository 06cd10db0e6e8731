package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ObligationStatus is the settlement state of one contribution obligation.
//
// not_paid and not_received are the same "unsettled" state seen from the payer
// and recipient side respectively; every other transition is monotonic and a
// confirmed obligation is immutable.
type ObligationStatus string

const (
	StatusNotPaid     ObligationStatus = "not_paid"
	StatusNotReceived ObligationStatus = "not_received"
	StatusPaid        ObligationStatus = "paid"
	StatusConfirmed   ObligationStatus = "confirmed"
)

// Unsettled reports whether the status still allows settlement.
func (s ObligationStatus) Unsettled() bool {
	return s == StatusNotPaid || s == StatusNotReceived
}

type Origin string

const (
	OriginManual    Origin = "manual"
	OriginAutoDebit Origin = "auto_debit"
)

// Obligation is one payer's required contribution for one group occurrence.
type Obligation struct {
	ID          snowflake.ID     `gorm:"primaryKey"`
	GroupID     snowflake.ID     `gorm:"not null;index"`
	PayerID     snowflake.ID     `gorm:"not null;index"`
	RecipientID snowflake.ID     `gorm:"not null;index"`
	Amount      int64            `gorm:"not null"`
	Currency    string           `gorm:"type:text;not null"`
	DueDate     time.Time        `gorm:"not null;index"`
	Status      ObligationStatus `gorm:"type:text;not null;default:not_paid"`
	Origin      Origin           `gorm:"type:text;not null;default:manual"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Obligation) TableName() string { return "contribution_obligations" }

var (
	ErrObligationNotFound = errors.New("obligation_not_found")
	ErrAlreadySettled     = errors.New("obligation_already_settled")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrConfirmedImmutable = errors.New("confirmed_obligation_immutable")
	ErrInvalidAmount      = errors.New("invalid_amount")
)
