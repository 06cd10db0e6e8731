package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Timing selects when a member's automatic debit fires relative to the due date.
type Timing string

const (
	TimingSameDay      Timing = "same_day"
	TimingOneDayBefore Timing = "one_day_before"
)

func (t Timing) Valid() bool {
	return t == TimingSameDay || t == TimingOneDayBefore
}

// Preference is one user's auto-pay configuration for one group.
//
// Invariant: Enabled requires a non-nil InstrumentToken and the owner must
// have no overdue obligations at enable time.
type Preference struct {
	UserID  snowflake.ID `gorm:"primaryKey"`
	GroupID snowflake.ID `gorm:"primaryKey"`
	Enabled bool         `gorm:"not null;default:false"`
	// InstrumentToken is an opaque processor reference, never raw card data.
	InstrumentToken *string   `gorm:"type:text"`
	Timing          Timing    `gorm:"type:text;not null;default:same_day"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (Preference) TableName() string { return "autopay_preferences" }

var (
	ErrPreferenceNotFound = errors.New("autopay_preference_not_found")
	ErrMissingInstrument  = errors.New("missing_funding_instrument")
	ErrUserIsDefaulter    = errors.New("user_is_defaulter")
	ErrInvalidTiming      = errors.New("invalid_timing")
)
