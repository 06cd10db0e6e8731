package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/kolektiva/kolektiva/internal/audit/domain"
	"github.com/kolektiva/kolektiva/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Record(
	ctx context.Context,
	actorType auditdomain.ActorType,
	actorID *snowflake.ID,
	action string,
	targetType string,
	targetID string,
	metadata map[string]any,
) {
	action = strings.TrimSpace(action)
	if action == "" {
		s.log.Warn("dropping audit record without action")
		return
	}
	if targetType == "" {
		targetType = "unknown"
	}

	var payload datatypes.JSON
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.log.Warn("failed to encode audit metadata", zap.String("action", action), zap.Error(err))
		} else {
			payload = datatypes.JSON(raw)
		}
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   payload,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
