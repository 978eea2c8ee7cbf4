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

const vendorColumns = `
	id, vendor_code, vendor_status, active_rfq, vendor_name, email, version, created_at, updated_at
`

// VendorRepository implements port.VendorRepository
type VendorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *sql.DB, logger *zap.Logger) port.VendorRepository {
	return &VendorRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a vendor at version 1
func (r *VendorRepository) Create(ctx context.Context, vendor *entity.Vendor) error {
	query := `
		INSERT INTO vendors (
			vendor_code, vendor_status, active_rfq, vendor_name, email, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		vendor.VendorCode,
		vendor.Status.Code(),
		nullInt64(vendor.ActiveRFQ),
		vendor.VendorName,
		vendor.Email,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", workflow.ErrDuplicateVendorCode, vendor.VendorCode)
		}
		r.logger.Error("Failed to create vendor", zap.String("vendor_code", vendor.VendorCode), zap.Error(err))
		return fmt.Errorf("failed to create vendor: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	vendor.ID = id
	vendor.Version = 1
	vendor.CreatedAt = now
	vendor.UpdatedAt = now
	return nil
}

// GetByID retrieves a vendor by row id
func (r *VendorRepository) GetByID(ctx context.Context, id int64) (*entity.Vendor, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = ?`, id)
	vendor, err := scanVendor(row)
	if err != nil {
		r.logger.Error("Failed to get vendor by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return vendor, nil
}

// GetByCode retrieves a vendor by its permanent code
func (r *VendorRepository) GetByCode(ctx context.Context, vendorCode string) (*entity.Vendor, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE vendor_code = ?`, vendorCode)
	vendor, err := scanVendor(row)
	if err != nil {
		r.logger.Error("Failed to get vendor by code", zap.String("vendor_code", vendorCode), zap.Error(err))
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return vendor, nil
}

// GetStatus returns the current status of a vendor
func (r *VendorRepository) GetStatus(ctx context.Context, vendorCode string) (workflow.VendorStatus, error) {
	var code int
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT vendor_status FROM vendors WHERE vendor_code = ?`, vendorCode).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", workflow.ErrVendorNotFound, vendorCode)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get vendor status: %w", err)
	}
	return workflow.ParseVendorStatus(code)
}

// SetStatus writes status and active rfq if the vendor's version is unchanged
func (r *VendorRepository) SetStatus(ctx context.Context, vendor *entity.Vendor) error {
	query := `
		UPDATE vendors
		SET vendor_status = ?, active_rfq = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		vendor.Status.Code(),
		nullInt64(vendor.ActiveRFQ),
		now,
		vendor.ID,
		vendor.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update vendor status",
			zap.String("vendor_code", vendor.VendorCode),
			zap.String("status", vendor.Status.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update vendor status: %w", err)
	}
	if err := checkVersioned(result, vendor.VendorCode); err != nil {
		return err
	}

	vendor.Version++
	vendor.UpdatedAt = now
	return nil
}

// CountByCodePrefix counts vendor codes that start with prefix
func (r *VendorRepository) CountByCodePrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vendors WHERE substr(vendor_code, 1, ?) = ?`, len(prefix), prefix).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vendor codes: %w", err)
	}
	return count, nil
}

// List returns vendors ordered by id
func (r *VendorRepository) List(ctx context.Context, filter entity.VendorFilter) ([]*entity.Vendor, error) {
	where, args := vendorWhere(filter)
	query := `SELECT ` + vendorColumns + ` FROM vendors` + where + ` ORDER BY id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list vendors", zap.Error(err))
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []*entity.Vendor
	for rows.Next() {
		vendor, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, vendor)
	}
	return vendors, rows.Err()
}

// Count returns the number of vendors matching the filter, ignoring paging
func (r *VendorRepository) Count(ctx context.Context, filter entity.VendorFilter) (int, error) {
	where, args := vendorWhere(filter)
	var count int
	if err := executor(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM vendors`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vendors: %w", err)
	}
	return count, nil
}

func vendorWhere(filter entity.VendorFilter) (string, []interface{}) {
	if filter.Status == nil {
		return "", nil
	}
	return ` WHERE vendor_status = ?`, []interface{}{filter.Status.Code()}
}

func scanVendor(row rowScanner) (*entity.Vendor, error) {
	var (
		vendor    entity.Vendor
		code      int
		activeRFQ sql.NullInt64
	)
	err := row.Scan(
		&vendor.ID,
		&vendor.VendorCode,
		&code,
		&activeRFQ,
		&vendor.VendorName,
		&vendor.Email,
		&vendor.Version,
		&vendor.CreatedAt,
		&vendor.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	status, err := workflow.ParseVendorStatus(code)
	if err != nil {
		return nil, err
	}
	vendor.Status = status
	vendor.ActiveRFQ = int64Ptr(activeRFQ)
	return &vendor, nil
}

var _ port.VendorRepository = (*VendorRepository)(nil)
