package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	verificationdomain "github.com/kolektiva/kolektiva/internal/verification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() verificationdomain.Repository {
	return &repo{}
}

func (r *repo) CreateSession(ctx context.Context, db *gorm.DB, session *verificationdomain.Session) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindSessionByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*verificationdomain.Session, error) {
	var session verificationdomain.Session
	err := db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, verificationdomain.ErrProofInvalid
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repo) AdvanceSessionStage(ctx context.Context, db *gorm.DB, id snowflake.ID, stage verificationdomain.Stage) error {
	return db.WithContext(ctx).Exec(
		`UPDATE verification_sessions SET stage = ? WHERE id = ?`,
		stage,
		id,
	).Error
}

func (r *repo) DeleteSession(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM verification_sessions WHERE id = ?`,
		id,
	).Error
}

func (r *repo) CreateCode(ctx context.Context, db *gorm.DB, code *verificationdomain.Code) error {
	return db.WithContext(ctx).Create(code).Error
}

func (r *repo) FindLatestCode(
	ctx context.Context,
	db *gorm.DB,
	userID snowflake.ID,
	codeHash string,
	action verificationdomain.Action,
) (*verificationdomain.Code, error) {
	var code verificationdomain.Code
	err := db.WithContext(ctx).
		Where("user_id = ? AND code_hash = ? AND action = ?", userID, codeHash, action).
		Order("created_at DESC").
		First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, verificationdomain.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repo) ConsumeCode(ctx context.Context, db *gorm.DB, id snowflake.ID, usedAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE verification_codes
		 SET used_at = ?
		 WHERE id = ? AND used_at IS NULL`,
		usedAt,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
