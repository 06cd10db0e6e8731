package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() autopaydomain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID, groupID snowflake.ID) (*autopaydomain.Preference, error) {
	var pref autopaydomain.Preference
	err := db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, autopaydomain.ErrPreferenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, pref *autopaydomain.Preference) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"enabled", "instrument_token", "timing", "updated_at",
			}),
		}).
		Create(pref).Error
}

func (r *repo) ListEnabledByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]autopaydomain.Preference, error) {
	var prefs []autopaydomain.Preference
	err := db.WithContext(ctx).
		Where("group_id = ? AND enabled = ?", groupID, true).
		Order("user_id").
		Find(&prefs).Error
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (r *repo) Disable(ctx context.Context, db *gorm.DB, userID, groupID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE autopay_preferences
		 SET enabled = ?, updated_at = ?
		 WHERE user_id = ? AND group_id = ? AND enabled = ?`,
		false,
		now,
		userID,
		groupID,
		true,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
