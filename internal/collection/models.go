package collection

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type AttemptOutcome string

const (
	AttemptPending AttemptOutcome = "pending"
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailed  AttemptOutcome = "failed"
)

// CollectionAttempt is one auto-debit try against an obligation. The unique
// index on (obligation_id, attempt_no) makes concurrent executors collide on
// insert instead of double-charging, and the attempt id doubles as the
// processor idempotency key.
type CollectionAttempt struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	ObligationID snowflake.ID   `gorm:"not null;uniqueIndex:idx_attempt_obligation_no,priority:1"`
	AttemptNo    int            `gorm:"not null;uniqueIndex:idx_attempt_obligation_no,priority:2"`
	GroupID      snowflake.ID   `gorm:"not null;index"`
	PayerID      snowflake.ID   `gorm:"not null;index"`
	Amount       int64          `gorm:"not null"`
	Currency     string         `gorm:"type:text;not null"`
	Outcome      AttemptOutcome `gorm:"type:text;not null;default:pending"`
	FailureCode  string         `gorm:"type:text"`
	Recoverable  bool           `gorm:"not null;default:false"`
	ProcessorRef string         `gorm:"type:text;index"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (CollectionAttempt) TableName() string { return "collection_attempts" }

// maxAttempts bounds auto-debit tries per obligation occurrence.
const maxAttempts = 2

var (
	ErrAttemptsExhausted = errors.New("attempts_exhausted")
	ErrAttemptNotFound   = errors.New("attempt_not_found")
)

// RunResult aggregates one scheduler sweep. Returned from the on-demand
// trigger so operators can see what a run did.
type RunResult struct {
	Processed            int `json:"processed"`
	Succeeded            int `json:"succeeded"`
	Failed               int `json:"failed"`
	SkippedDefaulters    int `json:"skipped_defaulters"`
	SkippedAlreadyPaid   int `json:"skipped_already_paid"`
	RecipientIsDefaulter int `json:"recipient_is_defaulter"`
	AutoPayDisabled      int `json:"auto_pay_disabled"`
}

func (r *RunResult) merge(other RunResult) {
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.SkippedDefaulters += other.SkippedDefaulters
	r.SkippedAlreadyPaid += other.SkippedAlreadyPaid
	r.RecipientIsDefaulter += other.RecipientIsDefaulter
	r.AutoPayDisabled += other.AutoPayDisabled
}
