package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
	"go.uber.org/zap"
)

const rfqColumns = `
	id, reference_id, vendor_id, status, expiry_date, submission_count, is_active,
	entity_id, email, mobile, vendor_name, contact_name, version, created_by,
	created_at, updated_at
`

// RFQRepository implements port.RFQRepository
type RFQRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRFQRepository creates a new rfq repository
func NewRFQRepository(db *sql.DB, logger *zap.Logger) port.RFQRepository {
	return &RFQRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new submission at version 1
func (r *RFQRepository) Create(ctx context.Context, rfq *entity.RFQ) error {
	query := `
		INSERT INTO rfqs (
			reference_id, vendor_id, status, expiry_date, submission_count, is_active,
			entity_id, email, mobile, vendor_name, contact_name, version, created_by,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		rfq.ReferenceID,
		nullInt64(rfq.VendorID),
		rfq.Status.Code(),
		formatDate(rfq.ExpiryDate),
		rfq.SubmissionCount,
		rfq.IsActive,
		rfq.EntityID,
		rfq.Email,
		rfq.Mobile,
		rfq.VendorName,
		rfq.ContactName,
		rfq.CreatedBy,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", workflow.ErrDuplicateReferenceID, rfq.ReferenceID)
		}
		r.logger.Error("Failed to create rfq", zap.String("reference_id", rfq.ReferenceID), zap.Error(err))
		return fmt.Errorf("failed to create rfq: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rfq.ID = id
	rfq.Version = 1
	rfq.CreatedAt = now
	rfq.UpdatedAt = now
	return nil
}

// GetByID retrieves a submission by row id
func (r *RFQRepository) GetByID(ctx context.Context, id int64) (*entity.RFQ, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id = ?`, id)
	rfq, err := scanRFQ(row)
	if err != nil {
		r.logger.Error("Failed to get rfq by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get rfq: %w", err)
	}
	return rfq, nil
}

// GetByReferenceID retrieves a submission by reference id
func (r *RFQRepository) GetByReferenceID(ctx context.Context, referenceID string) (*entity.RFQ, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE reference_id = ?`, referenceID)
	rfq, err := scanRFQ(row)
	if err != nil {
		r.logger.Error("Failed to get rfq by reference ID", zap.String("reference_id", referenceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get rfq: %w", err)
	}
	return rfq, nil
}

// GetStatus returns the current status of a submission
func (r *RFQRepository) GetStatus(ctx context.Context, referenceID string) (workflow.RFQStatus, error) {
	var code int
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT status FROM rfqs WHERE reference_id = ?`, referenceID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", workflow.ErrRFQNotFound, referenceID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rfq status: %w", err)
	}
	return workflow.ParseRFQStatus(code)
}

// GetExpiryDate returns the expiry date of a submission, nil when unset
func (r *RFQRepository) GetExpiryDate(ctx context.Context, referenceID string) (*time.Time, error) {
	var expiry sql.NullString
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT expiry_date FROM rfqs WHERE reference_id = ?`, referenceID).Scan(&expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrRFQNotFound, referenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rfq expiry date: %w", err)
	}
	return parseDate(expiry)
}

// SetStatus writes the review fields of a submission if its version is unchanged
func (r *RFQRepository) SetStatus(ctx context.Context, rfq *entity.RFQ) error {
	query := `
		UPDATE rfqs
		SET status = ?, expiry_date = ?, submission_count = ?, is_active = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		rfq.Status.Code(),
		formatDate(rfq.ExpiryDate),
		rfq.SubmissionCount,
		rfq.IsActive,
		now,
		rfq.ID,
		rfq.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update rfq status",
			zap.String("reference_id", rfq.ReferenceID),
			zap.String("status", rfq.Status.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update rfq status: %w", err)
	}
	if err := checkVersioned(result, rfq.ReferenceID); err != nil {
		return err
	}

	rfq.Version++
	rfq.UpdatedAt = now
	return nil
}

// LinkVendor links the submission to a vendor and marks it active
func (r *RFQRepository) LinkVendor(ctx context.Context, rfq *entity.RFQ, vendorID int64) error {
	query := `
		UPDATE rfqs
		SET vendor_id = ?, is_active = 1, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query, vendorID, now, rfq.ID, rfq.Version)
	if err != nil {
		r.logger.Error("Failed to link vendor to rfq",
			zap.String("reference_id", rfq.ReferenceID),
			zap.Int64("vendor_id", vendorID),
			zap.Error(err))
		return fmt.Errorf("failed to link vendor: %w", err)
	}
	if err := checkVersioned(result, rfq.ReferenceID); err != nil {
		return err
	}

	rfq.VendorID = &vendorID
	rfq.IsActive = true
	rfq.Version++
	rfq.UpdatedAt = now
	return nil
}

// DeactivateOthers clears is_active on the vendor's other submissions
func (r *RFQRepository) DeactivateOthers(ctx context.Context, vendorID, keepRFQID int64) error {
	query := `
		UPDATE rfqs
		SET is_active = 0, version = version + 1, updated_at = ?
		WHERE vendor_id = ? AND id <> ? AND is_active = 1
	`

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), vendorID, keepRFQID); err != nil {
		r.logger.Error("Failed to deactivate rfqs", zap.Int64("vendor_id", vendorID), zap.Error(err))
		return fmt.Errorf("failed to deactivate rfqs: %w", err)
	}
	return nil
}

// ListByVendor returns the vendor's submissions, newest first
func (r *RFQRepository) ListByVendor(ctx context.Context, vendorID int64) ([]*entity.RFQ, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx,
		`SELECT `+rfqColumns+` FROM rfqs WHERE vendor_id = ? ORDER BY id DESC`, vendorID)
	if err != nil {
		r.logger.Error("Failed to list rfqs by vendor", zap.Int64("vendor_id", vendorID), zap.Error(err))
		return nil, fmt.Errorf("failed to list rfqs: %w", err)
	}
	defer rows.Close()

	var rfqs []*entity.RFQ
	for rows.Next() {
		rfq, err := scanRFQ(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rfq: %w", err)
		}
		rfqs = append(rfqs, rfq)
	}
	return rfqs, rows.Err()
}

// CountInFlightByVendor counts the vendor's submissions still under review
func (r *RFQRepository) CountInFlightByVendor(ctx context.Context, vendorID int64) (int, error) {
	statuses := workflow.InFlightRFQStatuses()
	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, vendorID)
	for _, status := range statuses {
		args = append(args, status.Code())
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM rfqs WHERE vendor_id = ? AND status IN (%s)`, placeholders(len(statuses)))

	var count int
	if err := executor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count in-flight rfqs: %w", err)
	}
	return count, nil
}

// MaxID returns the largest rfq id
func (r *RFQRepository) MaxID(ctx context.Context) (int64, error) {
	var id int64
	if err := executor(ctx, r.db).QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM rfqs`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get max rfq id: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRFQ returns nil, nil when the row does not exist
func scanRFQ(row rowScanner) (*entity.RFQ, error) {
	var (
		rfq      entity.RFQ
		vendorID sql.NullInt64
		code     int
		expiry   sql.NullString
	)
	err := row.Scan(
		&rfq.ID,
		&rfq.ReferenceID,
		&vendorID,
		&code,
		&expiry,
		&rfq.SubmissionCount,
		&rfq.IsActive,
		&rfq.EntityID,
		&rfq.Email,
		&rfq.Mobile,
		&rfq.VendorName,
		&rfq.ContactName,
		&rfq.Version,
		&rfq.CreatedBy,
		&rfq.CreatedAt,
		&rfq.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	status, err := workflow.ParseRFQStatus(code)
	if err != nil {
		return nil, err
	}
	rfq.Status = status
	rfq.VendorID = int64Ptr(vendorID)
	if rfq.ExpiryDate, err = parseDate(expiry); err != nil {
		return nil, err
	}
	return &rfq, nil
}

var _ port.RFQRepository = (*RFQRepository)(nil)
