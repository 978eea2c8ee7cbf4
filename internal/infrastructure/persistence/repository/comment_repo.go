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

// CommentRepository implements port.CommentRepository
type CommentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCommentRepository creates a new review comment repository
func NewCommentRepository(db *sql.DB, logger *zap.Logger) port.CommentRepository {
	return &CommentRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a comment as not yet emailed
func (r *CommentRepository) Create(ctx context.Context, comment *entity.ReviewComment) error {
	query := `
		INSERT INTO review_comments (reference_id, step, comment, author, emailed, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		comment.ReferenceID,
		comment.Step,
		comment.Comment,
		comment.Author,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create review comment", zap.String("reference_id", comment.ReferenceID), zap.Error(err))
		return fmt.Errorf("failed to create review comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	comment.ID = id
	comment.Emailed = false
	comment.CreatedAt = now
	return nil
}

// ListByReference returns every comment of a submission in creation order
func (r *CommentRepository) ListByReference(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error) {
	return r.list(ctx, `WHERE reference_id = ?`, referenceID)
}

// ListUnemailed returns the comments the next send-back should carry
func (r *CommentRepository) ListUnemailed(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error) {
	return r.list(ctx, `WHERE reference_id = ? AND emailed = 0`, referenceID)
}

func (r *CommentRepository) list(ctx context.Context, where string, args ...interface{}) ([]*entity.ReviewComment, error) {
	query := `
		SELECT id, reference_id, step, comment, author, emailed, emailed_at, created_at
		FROM review_comments
	` + where + ` ORDER BY id ASC`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list review comments", zap.Error(err))
		return nil, fmt.Errorf("failed to list review comments: %w", err)
	}
	defer rows.Close()

	var comments []*entity.ReviewComment
	for rows.Next() {
		var (
			comment   entity.ReviewComment
			emailedAt sql.NullTime
		)
		if err := rows.Scan(
			&comment.ID,
			&comment.ReferenceID,
			&comment.Step,
			&comment.Comment,
			&comment.Author,
			&comment.Emailed,
			&emailedAt,
			&comment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review comment: %w", err)
		}
		comment.EmailedAt = timePtr(emailedAt)
		comments = append(comments, &comment)
	}
	return comments, rows.Err()
}

// MarkEmailed flags the given comments as sent
func (r *CommentRepository) MarkEmailed(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, at.UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`UPDATE review_comments SET emailed = 1, emailed_at = ? WHERE id IN (%s)`, placeholders(len(ids)))
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to mark review comments emailed", zap.Int("count", len(ids)), zap.Error(err))
		return fmt.Errorf("failed to mark review comments emailed: %w", err)
	}
	return nil
}

var _ port.CommentRepository = (*CommentRepository)(nil)
