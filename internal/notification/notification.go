package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/config"
	"github.com/kolektiva/kolektiva/internal/notification/email"
	userdomain "github.com/kolektiva/kolektiva/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind identifies the notification template to render.
type Kind string

const (
	KindVerificationCode    Kind = "verification_code"
	KindSensitiveActionDone Kind = "sensitive_action_done"
	KindCollectionSucceeded Kind = "collection_succeeded"
	KindCollectionSkipped   Kind = "collection_skipped"
	KindRecipientDefaulter  Kind = "recipient_defaulter"
	KindAutoPayDisabled     Kind = "autopay_disabled"
	KindDeadlinePassed      Kind = "deadline_passed"
	KindWithdrawalRequested Kind = "withdrawal_requested"
	KindWithdrawalFailed    Kind = "withdrawal_failed"
	KindWithdrawalCompleted Kind = "withdrawal_completed"
)

type Record struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	UserID    snowflake.ID   `gorm:"not null;index"`
	Kind      Kind           `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (Record) TableName() string { return "notifications" }

// Service delivers user notifications. Notify never blocks the caller and
// never returns an error; delivery failures are logged only.
type Service interface {
	Notify(userID snowflake.ID, kind Kind, payload map[string]any)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Provider email.Provider
	UserRepo userdomain.Repository
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	provider email.Provider
	userRepo userdomain.Repository
}

func NewService(p Params) Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("notification"),
		genID:    p.GenID,
		clock:    p.Clock,
		provider: p.Provider,
		userRepo: p.UserRepo,
	}
}

func (s *service) Notify(userID snowflake.ID, kind Kind, payload map[string]any) {
	go s.deliver(userID, kind, payload)
}

func (s *service) deliver(userID snowflake.ID, kind Kind, payload map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var raw datatypes.JSON
	if len(payload) > 0 {
		encoded, err := json.Marshal(payload)
		if err != nil {
			s.log.Warn("failed to encode notification payload",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		} else {
			raw = datatypes.JSON(encoded)
		}
	}

	record := Record{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.log.Warn("failed to persist notification",
			zap.String("kind", string(kind)),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		s.log.Warn("notification recipient lookup failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return
	}

	subject, body := renderEmail(kind, payload)
	if err := s.provider.Send(ctx, []string{user.Email}, subject, body); err != nil {
		s.log.Warn("failed to send notification email",
			zap.String("kind", string(kind)),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func renderEmail(kind Kind, payload map[string]any) (string, string) {
	switch kind {
	case KindVerificationCode:
		code, _ := payload["code"].(string)
		return "Your verification code",
			fmt.Sprintf("<p>Your one-time code is <b>%s</b>. It expires in 10 minutes.</p>", code)
	case KindSensitiveActionDone:
		action, _ := payload["action"].(string)
		return "Security notice",
			fmt.Sprintf("<p>The action %q was just performed on your account. If this wasn't you, contact support.</p>", action)
	case KindCollectionSucceeded:
		return "Contribution collected",
			"<p>Your contribution was collected automatically.</p>"
	case KindCollectionSkipped:
		reason, _ := payload["reason"].(string)
		return "Contribution not collected",
			fmt.Sprintf("<p>Your automatic contribution was skipped: %s. Please settle manually or update your payment method.</p>", reason)
	case KindRecipientDefaulter:
		return "Collection paused for your group",
			"<p>Automatic collection was paused because the current recipient has overdue contributions.</p>"
	case KindAutoPayDisabled:
		return "Auto-pay disabled",
			"<p>Automatic payment was disabled after repeated failures. Update your payment method and re-enable it.</p>"
	case KindDeadlinePassed:
		return "Group deadline passed",
			"<p>The group's deadline has passed, so automatic payment was turned off.</p>"
	case KindWithdrawalRequested:
		return "Withdrawal requested",
			"<p>A withdrawal was requested from your wallet. Funds are released after the hold period. If this wasn't you, contact support immediately.</p>"
	case KindWithdrawalFailed:
		return "Withdrawal failed",
			"<p>Your withdrawal could not be completed. The amount was returned to your wallet.</p>"
	case KindWithdrawalCompleted:
		return "Withdrawal completed",
			"<p>Your withdrawal was paid out.</p>"
	default:
		return "Notification", "<p>You have a new notification.</p>"
	}
}

func provideEmail(cfg config.Config) email.Provider {
	if cfg.SMTP.Host == "" {
		return &email.NoOpProvider{}
	}
	return email.NewSMTP(cfg.SMTP)
}

var Module = fx.Module("notification",
	fx.Provide(provideEmail),
	fx.Provide(NewService),
)
