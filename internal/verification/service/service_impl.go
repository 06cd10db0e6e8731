package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/kolektiva/kolektiva/internal/audit/domain"
	"github.com/kolektiva/kolektiva/internal/auth/password"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/config"
	"github.com/kolektiva/kolektiva/internal/notification"
	"github.com/kolektiva/kolektiva/internal/observability/metrics"
	userdomain "github.com/kolektiva/kolektiva/internal/user/domain"
	domain "github.com/kolektiva/kolektiva/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     domain.Repository
	UserRepo userdomain.Repository
	Audit    auditdomain.Service
	Notifier notification.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.GateConfig
	repo     domain.Repository
	userRepo userdomain.Repository
	audit    auditdomain.Service
	notifier notification.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("verification.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg.Gate,
		repo:     p.Repo,
		userRepo: p.UserRepo,
		audit:    p.Audit,
		notifier: p.Notifier,
	}
}

func (s *Service) VerifyPassword(ctx context.Context, userID snowflake.ID, pass string, action domain.Action) (string, error) {
	if !action.Valid() {
		return "", domain.ErrInvalidAction
	}

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return "", domain.ErrInvalidCredential
		}
		return "", err
	}
	if !password.Verify(pass, user.PasswordHash) {
		s.log.Warn("password verification failed",
			zap.Int64("user_id", int64(userID)),
			zap.String("action", string(action)))
		return "", domain.ErrInvalidCredential
	}

	token, err := newProofToken()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	session := &domain.Session{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		Action:    action,
		TokenHash: hashToken(token),
		Stage:     domain.StagePasswordVerified,
		ExpiresAt: now.Add(s.cfg.ProofTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, s.db, session); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) RequestCode(ctx context.Context, userID snowflake.ID, proof string, action domain.Action) error {
	session, user, err := s.validateProof(ctx, userID, proof, action)
	if err != nil {
		return err
	}

	// Authenticator codes are generated on-device; only the email path
	// issues and dispatches a server-side code.
	if user.VerificationMethod == userdomain.VerificationMethodEmailOTP {
		rawCode, err := newNumericCode()
		if err != nil {
			return err
		}
		now := s.clock.Now()
		code := &domain.Code{
			ID:        s.genID.Generate(),
			UserID:    user.ID,
			Action:    action,
			CodeHash:  hashToken(rawCode),
			ExpiresAt: now.Add(s.cfg.CodeTTL),
			CreatedAt: now,
		}
		if err := s.repo.CreateCode(ctx, s.db, code); err != nil {
			return err
		}
		s.notifier.Notify(user.ID, notification.KindVerificationCode, map[string]any{
			"code":   rawCode,
			"action": string(action),
		})
	}

	return s.repo.AdvanceSessionStage(ctx, s.db, session.ID, domain.StageOTPSent)
}

func (s *Service) Execute(ctx context.Context, userID snowflake.ID, proof string, code string, action domain.Action, fn func(ctx context.Context) error) error {
	session, user, err := s.validateProof(ctx, userID, proof, action)
	if err != nil {
		return err
	}

	switch user.VerificationMethod {
	case userdomain.VerificationMethodTimeBasedCode:
		if user.TOTPSecret == nil {
			return domain.ErrCodeNotFound
		}
		step, ok := totpMatches(*user.TOTPSecret, code, s.clock.Now())
		if !ok {
			return domain.ErrCodeNotFound
		}
		// Codes inside the skew window are single-use; the guarded update
		// rejects any step already accepted.
		claimed, err := s.userRepo.ClaimTOTPStep(ctx, s.db, user.ID, step)
		if err != nil {
			return err
		}
		if !claimed {
			metrics.Scheduler().IncCodeConsumed("already_used")
			return domain.ErrCodeAlreadyUsed
		}
	default:
		if err := s.consumeEmailCode(ctx, user.ID, code, action); err != nil {
			return err
		}
	}
	metrics.Scheduler().IncCodeConsumed("consumed")

	if err := s.repo.AdvanceSessionStage(ctx, s.db, session.ID, domain.StageOTPConsumed); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		return err
	}

	// The session is single-use: once the mutation ran the proof must
	// never authorize anything again.
	if err := s.repo.DeleteSession(ctx, s.db, session.ID); err != nil {
		s.log.Warn("failed to delete consumed session", zap.Error(err),
			zap.Int64("session_id", int64(session.ID)))
	}

	actorID := user.ID
	s.audit.Record(ctx, auditdomain.ActorTypeUser, &actorID, string(action),
		"verification_session", session.ID.String(), map[string]any{
			"verification_method": string(user.VerificationMethod),
		})
	s.notifier.Notify(user.ID, notification.KindSensitiveActionDone, map[string]any{
		"action": string(action),
	})
	return nil
}

// consumeEmailCode atomically marks the matching code used. Concurrent
// executions race on one conditional UPDATE; exactly one wins.
func (s *Service) consumeEmailCode(ctx context.Context, userID snowflake.ID, code string, action domain.Action) error {
	stored, err := s.repo.FindLatestCode(ctx, s.db, userID, hashToken(code), action)
	if err != nil {
		return err
	}
	if stored == nil {
		metrics.Scheduler().IncCodeConsumed("not_found")
		return domain.ErrCodeNotFound
	}
	if stored.UsedAt != nil {
		metrics.Scheduler().IncCodeConsumed("already_used")
		return domain.ErrCodeAlreadyUsed
	}
	if s.clock.Now().After(stored.ExpiresAt) {
		metrics.Scheduler().IncCodeConsumed("expired")
		return domain.ErrCodeExpired
	}

	consumed, err := s.repo.ConsumeCode(ctx, s.db, stored.ID, s.clock.Now())
	if err != nil {
		return err
	}
	if !consumed {
		metrics.Scheduler().IncCodeConsumed("already_used")
		return domain.ErrCodeAlreadyUsed
	}
	return nil
}

func (s *Service) validateProof(ctx context.Context, callerID snowflake.ID, proof string, action domain.Action) (*domain.Session, *userdomain.User, error) {
	if !action.Valid() {
		return nil, nil, domain.ErrInvalidAction
	}
	session, err := s.repo.FindSessionByTokenHash(ctx, s.db, hashToken(proof))
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, domain.ErrProofInvalid
	}
	// The proof attests the identity it was issued to. Another caller
	// presenting it never gets past the gate.
	if session.UserID != callerID {
		s.log.Warn("proof presented by a different user",
			zap.Int64("caller_id", int64(callerID)),
			zap.Int64("session_user_id", int64(session.UserID)))
		return nil, nil, domain.ErrProofInvalid
	}
	if session.Action != action {
		return nil, nil, domain.ErrActionMismatch
	}
	if s.clock.Now().After(session.ExpiresAt) {
		return nil, nil, domain.ErrProofExpired
	}

	user, err := s.userRepo.FindByID(ctx, s.db, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func newProofToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
