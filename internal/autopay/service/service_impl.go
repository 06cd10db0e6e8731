package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/config"
	"github.com/kolektiva/kolektiva/internal/defaulter"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Cfg        config.Config
	Repo       autopaydomain.Repository
	GroupRepo  groupdomain.Repository
	Classifier defaulter.Classifier
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	cfg        config.CollectionConfig
	repo       autopaydomain.Repository
	groupRepo  groupdomain.Repository
	classifier defaulter.Classifier
}

func NewService(p Params) autopaydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("autopay.service"),
		clock:      p.Clock,
		cfg:        p.Cfg.Collection,
		repo:       p.Repo,
		groupRepo:  p.GroupRepo,
		classifier: p.Classifier,
	}
}

func (s *Service) Enable(ctx context.Context, userID, groupID snowflake.ID, timing autopaydomain.Timing) error {
	if !timing.Valid() {
		return autopaydomain.ErrInvalidTiming
	}
	if err := s.vetEligibility(ctx, userID, groupID); err != nil {
		return err
	}

	pref, err := s.repo.Find(ctx, s.db, userID, groupID)
	if err != nil {
		return err
	}
	if pref.InstrumentToken == nil || strings.TrimSpace(*pref.InstrumentToken) == "" {
		return autopaydomain.ErrMissingInstrument
	}

	pref.Enabled = true
	pref.Timing = timing
	pref.UpdatedAt = s.clock.Now()
	return s.repo.Upsert(ctx, s.db, pref)
}

func (s *Service) Disable(ctx context.Context, userID, groupID snowflake.ID) error {
	_, err := s.repo.Disable(ctx, s.db, userID, groupID, s.clock.Now())
	return err
}

func (s *Service) UpdateTiming(ctx context.Context, userID, groupID snowflake.ID, timing autopaydomain.Timing) error {
	if !timing.Valid() {
		return autopaydomain.ErrInvalidTiming
	}
	if err := s.vetEligibility(ctx, userID, groupID); err != nil {
		return err
	}

	pref, err := s.repo.Find(ctx, s.db, userID, groupID)
	if err != nil {
		return err
	}
	pref.Timing = timing
	pref.UpdatedAt = s.clock.Now()
	return s.repo.Upsert(ctx, s.db, pref)
}

func (s *Service) SetInstrument(ctx context.Context, userID, groupID snowflake.ID, instrumentToken string) error {
	instrumentToken = strings.TrimSpace(instrumentToken)
	if instrumentToken == "" {
		return autopaydomain.ErrMissingInstrument
	}

	pref, err := s.repo.Find(ctx, s.db, userID, groupID)
	if err == autopaydomain.ErrPreferenceNotFound {
		pref = &autopaydomain.Preference{
			UserID:  userID,
			GroupID: groupID,
			Timing:  autopaydomain.TimingSameDay,
		}
	} else if err != nil {
		return err
	}

	pref.InstrumentToken = &instrumentToken
	pref.UpdatedAt = s.clock.Now()
	return s.repo.Upsert(ctx, s.db, pref)
}

// RemoveInstrument clears the stored token; auto-pay cannot stay enabled
// without one, so it is disabled in the same write.
func (s *Service) RemoveInstrument(ctx context.Context, userID, groupID snowflake.ID) error {
	pref, err := s.repo.Find(ctx, s.db, userID, groupID)
	if err != nil {
		return err
	}
	pref.InstrumentToken = nil
	pref.Enabled = false
	pref.UpdatedAt = s.clock.Now()
	return s.repo.Upsert(ctx, s.db, pref)
}

func (s *Service) Get(ctx context.Context, userID, groupID snowflake.ID) (*autopaydomain.Preference, error) {
	return s.repo.Find(ctx, s.db, userID, groupID)
}

func (s *Service) vetEligibility(ctx context.Context, userID, groupID snowflake.ID) error {
	group, err := s.groupRepo.FindByID(ctx, s.db, groupID)
	if err != nil {
		return err
	}
	if group.Type == groupdomain.GroupTypeGeneral {
		if group.Deadline == nil {
			return groupdomain.ErrDeadlineMissing
		}
		if !group.Deadline.After(s.clock.Now()) {
			return groupdomain.ErrDeadlinePassed
		}
	}

	scope := groupID
	if s.cfg.DefaulterScopeStrict {
		scope = 0
	}
	report, err := s.classifier.Check(ctx, userID, scope)
	if err != nil {
		return err
	}
	if report.HasOverdue {
		return autopaydomain.ErrUserIsDefaulter
	}
	return nil
}
