package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"go.uber.org/zap"
)

// SequenceRepository implements port.SequenceRepository on the code_sequences table.
// The upsert runs inside the caller's transaction, so two writers never receive the same value.
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next advances the named counter and returns max(current+1, floor+1)
func (r *SequenceRepository) Next(ctx context.Context, name string, floor int64) (int64, error) {
	query := `
		INSERT INTO code_sequences (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(code_sequences.value + 1, excluded.value)
		RETURNING value
	`

	var value int64
	if err := executor(ctx, r.db).QueryRowContext(ctx, query, name, floor+1).Scan(&value); err != nil {
		r.logger.Error("Failed to advance sequence", zap.String("name", name), zap.Error(err))
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return value, nil
}

var _ port.SequenceRepository = (*SequenceRepository)(nil)
