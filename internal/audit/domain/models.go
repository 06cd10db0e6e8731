package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	ActorType  ActorType      `gorm:"type:text;not null"`
	ActorID    *snowflake.ID  `gorm:"index"`
	Action     string         `gorm:"type:text;not null;index"`
	TargetType string         `gorm:"type:text;not null"`
	TargetID   string         `gorm:"type:text"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Service records immutable audit events. Recording failures are logged and
// never propagated to the caller's flow.
type Service interface {
	Record(ctx context.Context, actorType ActorType, actorID *snowflake.ID, action string, targetType string, targetID string, metadata map[string]any)
}

var ErrInvalidAction = errors.New("invalid_audit_action")
