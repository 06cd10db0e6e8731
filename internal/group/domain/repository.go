package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Group, error)
	ListByType(ctx context.Context, db *gorm.DB, groupType GroupType) ([]Group, error)
	ListMembers(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]Member, error)
	Insert(ctx context.Context, db *gorm.DB, group *Group) error
	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
}
