package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/persistence/sqlite"
	"github.com/mattn/go-sqlite3"
)

// executor returns the transaction carried by ctx, or db outside a transaction
func executor(ctx context.Context, db *sql.DB) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, db)
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// checkVersioned turns a zero-row conditional update into a concurrency conflict
func checkVersioned(result sql.Result, subject string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrConcurrentModification, subject)
	}
	return nil
}

// Expiry dates are stored as plain calendar dates
func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

func parseDate(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.DateOnly, value.String[:min(len(value.String), len(time.DateOnly))])
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", value.String, err)
	}
	return &parsed, nil
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// placeholders returns "?, ?, ..." for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
