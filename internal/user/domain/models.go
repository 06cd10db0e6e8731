package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// VerificationMethod selects the second factor used by the credential gate.
type VerificationMethod string

const (
	VerificationMethodEmailOTP      VerificationMethod = "email_otp"
	VerificationMethodTimeBasedCode VerificationMethod = "time_based_code"
)

type User struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	Email              string             `gorm:"type:text;not null;uniqueIndex"`
	DisplayName        string             `gorm:"type:text;not null"`
	PasswordHash       string             `gorm:"type:text;not null"`
	VerificationMethod VerificationMethod `gorm:"type:text;not null;default:email_otp"`
	// TOTPSecret is set only when the user enrolled an authenticator app.
	TOTPSecret *string `gorm:"type:text"`
	// TOTPLastStep is the highest time step already accepted, so a code
	// inside the skew window cannot be replayed.
	TOTPLastStep int64 `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string { return "users" }

var (
	ErrUserNotFound = errors.New("user_not_found")
)
