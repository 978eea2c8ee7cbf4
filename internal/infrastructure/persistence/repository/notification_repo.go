package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"go.uber.org/zap"
)

const notificationColumns = `
	id, template, audience, subject_key, recipients, variables, status, attempts,
	next_attempt_at, last_error, sent_at, created_at, updated_at
`

// NotificationRepository implements port.NotificationRepository on the notifications outbox table
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create queues an outbox row
func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	recipients, err := json.Marshal(notification.Recipients)
	if err != nil {
		return fmt.Errorf("failed to encode recipients: %w", err)
	}
	variables, err := json.Marshal(notification.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}

	query := `
		INSERT INTO notifications (
			template, audience, subject_key, recipients, variables, status, attempts,
			next_attempt_at, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if notification.NextAttemptAt.IsZero() {
		notification.NextAttemptAt = now
	}

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		notification.Template,
		notification.Audience,
		notification.SubjectKey,
		string(recipients),
		string(variables),
		notification.Status,
		notification.Attempts,
		notification.NextAttemptAt.UTC(),
		notification.LastError,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("template", notification.Template),
			zap.String("subject_key", notification.SubjectKey),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	notification.ID = id
	notification.CreatedAt = now
	notification.UpdatedAt = now
	return nil
}

// GetByID retrieves an outbox row, nil when absent
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	notification, err := scanNotification(row)
	if err != nil {
		r.logger.Error("Failed to get notification", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return notification, nil
}

// ListDue returns pending and failed rows whose next attempt is due, plus SENDING rows whose lease ran out
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status IN (?, ?, ?) AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, id ASC
		LIMIT ?
	`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query,
		entity.NotificationStatusPending,
		entity.NotificationStatusFailed,
		entity.NotificationStatusSending,
		now.UTC(),
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to list due notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}

// Claim takes the row for one send attempt. The status check and the write are a single
// statement, so of two concurrent senders only one gets the row back.
func (r *NotificationRepository) Claim(ctx context.Context, id int64, now, leaseUntil time.Time) (*entity.Notification, error) {
	query := `
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?, ?) AND next_attempt_at <= ?
		RETURNING ` + notificationColumns

	row := executor(ctx, r.db).QueryRowContext(ctx, query,
		entity.NotificationStatusSending,
		leaseUntil.UTC(),
		time.Now().UTC(),
		id,
		entity.NotificationStatusPending,
		entity.NotificationStatusFailed,
		entity.NotificationStatusSending,
		now.UTC(),
	)
	notification, err := scanNotification(row)
	if err != nil {
		r.logger.Error("Failed to claim notification", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to claim notification: %w", err)
	}
	return notification, nil
}

// MarkSent records a successful delivery
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = ?, sent_at = ?, last_error = '', updated_at = ?
		WHERE id = ?
	`

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, entity.NotificationStatusSent, at.UTC(), time.Now().UTC(), id); err != nil {
		r.logger.Error("Failed to mark notification sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed claimed attempt and schedules the next one
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, status, errorMsg string, nextAttemptAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ?
	`

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, status, errorMsg, nextAttemptAt.UTC(), time.Now().UTC(), id); err != nil {
		r.logger.Error("Failed to mark notification failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

// CountByStatus counts outbox rows in one status
func (r *NotificationRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	if err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE status = ?`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var (
		notification entity.Notification
		recipients   string
		variables    string
		sentAt       sql.NullTime
	)
	err := row.Scan(
		&notification.ID,
		&notification.Template,
		&notification.Audience,
		&notification.SubjectKey,
		&recipients,
		&variables,
		&notification.Status,
		&notification.Attempts,
		&notification.NextAttemptAt,
		&notification.LastError,
		&sentAt,
		&notification.CreatedAt,
		&notification.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(recipients), &notification.Recipients); err != nil {
		return nil, fmt.Errorf("failed to decode recipients: %w", err)
	}
	if err := json.Unmarshal([]byte(variables), &notification.Variables); err != nil {
		return nil, fmt.Errorf("failed to decode variables: %w", err)
	}
	notification.SentAt = timePtr(sentAt)
	return &notification, nil
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
