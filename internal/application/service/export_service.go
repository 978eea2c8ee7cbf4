package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
)

const (
	vendorSheet    = "Vendors"
	exportPageSize = 200
)

var vendorColumns = []interface{}{
	"Vendor Code", "Vendor Name", "Email", "Status", "Active Reference ID", "Expiry Date", "Created At",
}

// ExportService renders the vendor register as a spreadsheet
type ExportService interface {
	ExportVendors(ctx context.Context, w io.Writer, filter entity.VendorFilter) (int, error)
}

type exportServiceImpl struct {
	vendorRepo port.VendorRepository
	rfqRepo    port.RFQRepository
	logger     Logger
}

// NewExportService creates a new ExportService
func NewExportService(vendorRepo port.VendorRepository, rfqRepo port.RFQRepository, logger Logger) ExportService {
	return &exportServiceImpl{
		vendorRepo: vendorRepo,
		rfqRepo:    rfqRepo,
		logger:     logger,
	}
}

// ExportVendors writes every vendor matching the status filter and returns the row count.
// Limit and Offset of the filter are ignored.
func (s *exportServiceImpl) ExportVendors(ctx context.Context, w io.Writer, filter entity.VendorFilter) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", vendorSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(vendorSheet, "A1", &vendorColumns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(vendorSheet, 1, 1, style)
	}

	row := 2
	filter.Offset = 0
	filter.Limit = exportPageSize
	for {
		vendors, err := s.vendorRepo.List(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("list vendors: %w", err)
		}

		for _, vendor := range vendors {
			values, err := s.vendorRow(ctx, vendor)
			if err != nil {
				return 0, err
			}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return 0, err
			}
			if err := f.SetSheetRow(vendorSheet, cell, &values); err != nil {
				return 0, fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}

		if len(vendors) < exportPageSize {
			break
		}
		filter.Offset += exportPageSize
	}

	if err := f.SetColWidth(vendorSheet, "A", "G", 22); err != nil {
		return 0, fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}

	count := row - 2
	s.logger.Info("Vendor register exported", "rows", count)
	return count, nil
}

func (s *exportServiceImpl) vendorRow(ctx context.Context, vendor *entity.Vendor) ([]interface{}, error) {
	reference, expiry := "", ""
	if vendor.ActiveRFQ != nil {
		rfq, err := s.rfqRepo.GetByID(ctx, *vendor.ActiveRFQ)
		if err != nil {
			return nil, fmt.Errorf("get active rfq of %s: %w", vendor.VendorCode, err)
		}
		if rfq != nil {
			reference = rfq.ReferenceID
			if rfq.ExpiryDate != nil {
				expiry = rfq.ExpiryDate.Format(time.DateOnly)
			}
		}
	}

	return []interface{}{
		vendor.VendorCode,
		vendor.VendorName,
		vendor.Email,
		vendor.Status.String(),
		reference,
		expiry,
		vendor.CreatedAt.Format(time.RFC3339),
	}, nil
}
