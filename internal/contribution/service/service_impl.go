package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kolektiva/kolektiva/internal/clock"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  contributiondomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  contributiondomain.Repository
}

func NewService(p Params) contributiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("contribution.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req contributiondomain.CreateRequest) (*contributiondomain.Obligation, error) {
	if req.Amount <= 0 {
		return nil, contributiondomain.ErrInvalidAmount
	}
	now := s.clock.Now()
	obligation := &contributiondomain.Obligation{
		ID:          s.genID.Generate(),
		GroupID:     req.GroupID,
		PayerID:     req.PayerID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		DueDate:     req.DueDate,
		Status:      contributiondomain.StatusNotPaid,
		Origin:      contributiondomain.OriginManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, obligation); err != nil {
		return nil, err
	}
	return obligation, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*contributiondomain.Obligation, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID, payerID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obligation, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if obligation.PayerID != payerID {
			return contributiondomain.ErrObligationNotFound
		}
		if obligation.Status == contributiondomain.StatusConfirmed {
			return contributiondomain.ErrConfirmedImmutable
		}
		updated, err := s.repo.TransitionStatus(ctx, tx, id,
			[]contributiondomain.ObligationStatus{
				contributiondomain.StatusNotPaid,
				contributiondomain.StatusNotReceived,
			},
			contributiondomain.StatusPaid,
			contributiondomain.OriginManual,
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		if !updated {
			return contributiondomain.ErrInvalidTransition
		}
		return nil
	})
}

func (s *Service) Confirm(ctx context.Context, id snowflake.ID, recipientID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obligation, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if obligation.RecipientID != recipientID {
			return contributiondomain.ErrObligationNotFound
		}
		if obligation.Status == contributiondomain.StatusConfirmed {
			return contributiondomain.ErrConfirmedImmutable
		}
		updated, err := s.repo.TransitionStatus(ctx, tx, id,
			[]contributiondomain.ObligationStatus{contributiondomain.StatusPaid},
			contributiondomain.StatusConfirmed,
			contributiondomain.OriginManual,
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		if !updated {
			return contributiondomain.ErrInvalidTransition
		}
		return nil
	})
}
