package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kolektiva/kolektiva/internal/auth/password"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	userdomain "github.com/kolektiva/kolektiva/internal/user/domain"
	"gorm.io/gorm"
)

const (
	demoUserEmail    = "demo@kolektiva.app"
	demoUserPassword = "demo"
	demoUserDisplay  = "Demo Member"
	demoGroupName    = "Office Birthdays"
)

// EnsureDemoData seeds a demo user and birthday group so a local install has
// something to look at. Idempotent; existing rows are left alone.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := ensureDemoUser(ctx, tx, node)
		if err != nil {
			return err
		}
		return ensureDemoGroup(ctx, tx, node, user.ID)
	})
}

func ensureDemoUser(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*userdomain.User, error) {
	var user userdomain.User
	err := tx.WithContext(ctx).Where("email = ?", demoUserEmail).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := password.Hash(demoUserPassword)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user = userdomain.User{
		ID:                 node.Generate(),
		Email:              demoUserEmail,
		DisplayName:        demoUserDisplay,
		PasswordHash:       hash,
		VerificationMethod: userdomain.VerificationMethodEmailOTP,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func ensureDemoGroup(ctx context.Context, tx *gorm.DB, node *snowflake.Node, recipientID snowflake.ID) error {
	var group groupdomain.Group
	err := tx.WithContext(ctx).Where("name = ?", demoGroupName).First(&group).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	group = groupdomain.Group{
		ID:          node.Generate(),
		Name:        demoGroupName,
		Type:        groupdomain.GroupTypeBirthday,
		Currency:    "USD",
		RecipientID: recipientID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&group).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(&groupdomain.Member{
		GroupID:  group.ID,
		UserID:   recipientID,
		JoinedAt: now,
	}).Error
}
