package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/kolektiva/kolektiva/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userdomain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userdomain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *userdomain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) ClaimTOTPStep(ctx context.Context, db *gorm.DB, id snowflake.ID, step int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET totp_last_step = ? WHERE id = ? AND totp_last_step < ?`,
		step, int64(id), step,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
