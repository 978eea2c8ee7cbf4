package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.StatusHistory) error {
	query := `
		INSERT INTO status_history (
			subject_type, subject_key, action, from_status, to_status, actor, note, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now()
	}

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		history.SubjectType,
		history.SubjectKey,
		history.Action,
		history.FromStatus,
		history.ToStatus,
		history.Actor,
		history.Note,
		history.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.String("subject_key", history.SubjectKey),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// ListBySubject retrieves the trail of one rfq or vendor, oldest first
func (r *HistoryRepository) ListBySubject(ctx context.Context, subjectType, subjectKey string) ([]*entity.StatusHistory, error) {
	query := `
		SELECT id, subject_type, subject_key, action, from_status, to_status, actor, note, timestamp
		FROM status_history
		WHERE subject_type = ? AND subject_key = ?
		ORDER BY id ASC
	`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, subjectType, subjectKey)
	if err != nil {
		r.logger.Error("Failed to get history by subject",
			zap.String("subject_type", subjectType),
			zap.String("subject_key", subjectKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.StatusHistory
	for rows.Next() {
		var record entity.StatusHistory
		err := rows.Scan(
			&record.ID,
			&record.SubjectType,
			&record.SubjectKey,
			&record.Action,
			&record.FromStatus,
			&record.ToStatus,
			&record.Actor,
			&record.Note,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
