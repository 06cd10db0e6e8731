package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() groupdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*groupdomain.Group, error) {
	var group groupdomain.Group
	err := db.WithContext(ctx).Where("id = ?", id).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, groupdomain.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repo) ListByType(ctx context.Context, db *gorm.DB, groupType groupdomain.GroupType) ([]groupdomain.Group, error) {
	var groups []groupdomain.Group
	err := db.WithContext(ctx).
		Where("type = ?", groupType).
		Order("id").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]groupdomain.Member, error) {
	var members []groupdomain.Member
	err := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("user_id").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, group *groupdomain.Group) error {
	return db.WithContext(ctx).Create(group).Error
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *groupdomain.Member) error {
	return db.WithContext(ctx).Create(member).Error
}
