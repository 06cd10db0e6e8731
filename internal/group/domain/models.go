package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GroupType determines how contribution occurrences recur.
type GroupType string

const (
	// GroupTypeBirthday generates one occurrence per member birthday each year.
	GroupTypeBirthday GroupType = "birthday"
	// GroupTypeSubscription recurs on a fixed cadence toward a shared service.
	GroupTypeSubscription GroupType = "subscription"
	// GroupTypeGeneral has a single fixed deadline.
	GroupTypeGeneral GroupType = "general"
)

type Group struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	Name     string       `gorm:"type:text;not null"`
	Type     GroupType    `gorm:"type:text;not null"`
	Currency string       `gorm:"type:text;not null"`
	// RecipientID is the member receiving the current occurrence's
	// contributions. Rotated by the occurrence generator for birthday groups.
	RecipientID snowflake.ID `gorm:"not null;index"`
	// Deadline applies to general groups only.
	Deadline  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Group) TableName() string { return "groups" }

type Member struct {
	GroupID  snowflake.ID `gorm:"primaryKey"`
	UserID   snowflake.ID `gorm:"primaryKey"`
	JoinedAt time.Time    `gorm:"not null"`
}

func (Member) TableName() string { return "group_members" }

var (
	ErrGroupNotFound   = errors.New("group_not_found")
	ErrInvalidType     = errors.New("invalid_group_type")
	ErrDeadlinePassed  = errors.New("group_deadline_passed")
	ErrDeadlineMissing = errors.New("group_deadline_missing")
)
