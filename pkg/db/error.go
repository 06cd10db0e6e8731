package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique-constraint violation on
// any of the supported dialects.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value violates unique constraint"): // postgres 23505
		return true
	case strings.Contains(msg, "Error 1062"): // mysql
		return true
	case strings.Contains(msg, "UNIQUE constraint failed"): // sqlite
		return true
	}
	return false
}

// LockingClause returns the row-claim suffix for batch work queries.
// SQLite has no row locks; its single-writer model covers the tests.
func LockingClause(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return ""
	}
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}

// UpdateLockClause returns the single-row lock suffix for recheck reads.
func UpdateLockClause(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return ""
	}
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
