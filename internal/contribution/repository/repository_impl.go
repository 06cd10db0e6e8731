package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	"github.com/kolektiva/kolektiva/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() contributiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, gdb *gorm.DB, obligation *contributiondomain.Obligation) error {
	return gdb.WithContext(ctx).Exec(
		`INSERT INTO contribution_obligations (
			id, group_id, payer_id, recipient_id, amount, currency, due_date,
			status, origin, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obligation.ID,
		obligation.GroupID,
		obligation.PayerID,
		obligation.RecipientID,
		obligation.Amount,
		obligation.Currency,
		obligation.DueDate,
		obligation.Status,
		obligation.Origin,
		obligation.CreatedAt,
		obligation.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, gdb *gorm.DB, id snowflake.ID) (*contributiondomain.Obligation, error) {
	var obligation contributiondomain.Obligation
	err := gdb.WithContext(ctx).Raw(
		`SELECT * FROM contribution_obligations WHERE id = ?`,
		id,
	).Scan(&obligation).Error
	if err != nil {
		return nil, err
	}
	if obligation.ID == 0 {
		return nil, contributiondomain.ErrObligationNotFound
	}
	return &obligation, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*contributiondomain.Obligation, error) {
	var obligation contributiondomain.Obligation
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM contribution_obligations WHERE id = ?`+db.UpdateLockClause(tx),
		id,
	).Scan(&obligation).Error
	if err != nil {
		return nil, err
	}
	if obligation.ID == 0 {
		return nil, contributiondomain.ErrObligationNotFound
	}
	return &obligation, nil
}

func (r *repo) TransitionStatus(
	ctx context.Context,
	gdb *gorm.DB,
	id snowflake.ID,
	from []contributiondomain.ObligationStatus,
	to contributiondomain.ObligationStatus,
	origin contributiondomain.Origin,
	now time.Time,
) (bool, error) {
	if len(from) == 0 {
		return false, contributiondomain.ErrInvalidTransition
	}
	result := gdb.WithContext(ctx).Exec(
		`UPDATE contribution_obligations
		 SET status = ?, origin = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		origin,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ClaimDueForGroup(
	ctx context.Context,
	tx *gorm.DB,
	groupID snowflake.ID,
	dueBefore time.Time,
	limit int,
) ([]contributiondomain.Obligation, error) {
	var obligations []contributiondomain.Obligation
	query := fmt.Sprintf(
		`SELECT * FROM contribution_obligations
		 WHERE group_id = ? AND status IN (?, ?) AND due_date <= ?
		 ORDER BY id
		 LIMIT ?%s`,
		db.LockingClause(tx),
	)
	err := tx.WithContext(ctx).Raw(
		query,
		groupID,
		contributiondomain.StatusNotPaid,
		contributiondomain.StatusNotReceived,
		dueBefore,
		limit,
	).Scan(&obligations).Error
	if err != nil {
		return nil, err
	}
	return obligations, nil
}

func (r *repo) CountOverdue(
	ctx context.Context,
	gdb *gorm.DB,
	userID snowflake.ID,
	groupID snowflake.ID,
	now time.Time,
	exclude ...snowflake.ID,
) (int64, int64, error) {
	var row struct {
		Count int64
		Total int64
	}
	query := `SELECT COUNT(1) AS count, COALESCE(SUM(amount), 0) AS total
		 FROM contribution_obligations
		 WHERE payer_id = ? AND status IN (?, ?) AND due_date < ?`
	args := []any{
		userID,
		contributiondomain.StatusNotPaid,
		contributiondomain.StatusNotReceived,
		now,
	}
	if groupID != 0 {
		query += ` AND group_id = ?`
		args = append(args, groupID)
	}
	if len(exclude) > 0 {
		excluded := make([]int64, 0, len(exclude))
		for _, id := range exclude {
			excluded = append(excluded, int64(id))
		}
		query += ` AND id NOT IN (?)`
		args = append(args, excluded)
	}
	if err := gdb.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.Count, row.Total, nil
}
