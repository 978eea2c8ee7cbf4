package service

import (
	"context"
	"fmt"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// RFQView is a submission with its profile and review comments
type RFQView struct {
	RFQ          *entity.RFQ             `json:"rfq"`
	Status       string                  `json:"status"`
	Counterparty *entity.Counterparty    `json:"counterparty,omitempty"`
	Comments     []*entity.ReviewComment `json:"comments"`
}

// VendorView is a vendor with its readable status and active submission
type VendorView struct {
	Vendor    *entity.Vendor `json:"vendor"`
	Status    string         `json:"status"`
	ActiveRFQ *entity.RFQ    `json:"active_rfq,omitempty"`
}

// VendorPage is one page of a vendor listing
type VendorPage struct {
	Vendors []*VendorView `json:"vendors"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// QueryService serves the read side of the lifecycle
type QueryService interface {
	GetRFQ(ctx context.Context, referenceID string) (*RFQView, error)
	GetVendor(ctx context.Context, vendorCode string) (*VendorView, error)
	ListVendors(ctx context.Context, filter entity.VendorFilter) (*VendorPage, error)
	History(ctx context.Context, subject event.Subject, key string) ([]*entity.StatusHistory, error)
}

type queryServiceImpl struct {
	rfqRepo          port.RFQRepository
	vendorRepo       port.VendorRepository
	counterpartyRepo port.CounterpartyRepository
	commentRepo      port.CommentRepository
	historyRepo      port.HistoryRepository
}

// NewQueryService creates a new QueryService
func NewQueryService(
	rfqRepo port.RFQRepository,
	vendorRepo port.VendorRepository,
	counterpartyRepo port.CounterpartyRepository,
	commentRepo port.CommentRepository,
	historyRepo port.HistoryRepository,
) QueryService {
	return &queryServiceImpl{
		rfqRepo:          rfqRepo,
		vendorRepo:       vendorRepo,
		counterpartyRepo: counterpartyRepo,
		commentRepo:      commentRepo,
		historyRepo:      historyRepo,
	}
}

func (s *queryServiceImpl) GetRFQ(ctx context.Context, referenceID string) (*RFQView, error) {
	rfq, err := s.rfqRepo.GetByReferenceID(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("get rfq: %w", err)
	}
	if rfq == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrRFQNotFound, referenceID)
	}

	counterparty, err := s.counterpartyRepo.GetByReferenceID(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("get counterparty: %w", err)
	}
	comments, err := s.commentRepo.ListByReference(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	if comments == nil {
		comments = []*entity.ReviewComment{}
	}

	return &RFQView{
		RFQ:          rfq,
		Status:       rfq.Status.String(),
		Counterparty: counterparty,
		Comments:     comments,
	}, nil
}

func (s *queryServiceImpl) GetVendor(ctx context.Context, vendorCode string) (*VendorView, error) {
	vendor, err := s.vendorRepo.GetByCode(ctx, vendorCode)
	if err != nil {
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	if vendor == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrVendorNotFound, vendorCode)
	}
	return s.vendorView(ctx, vendor)
}

func (s *queryServiceImpl) vendorView(ctx context.Context, vendor *entity.Vendor) (*VendorView, error) {
	view := &VendorView{Vendor: vendor, Status: vendor.Status.String()}
	if vendor.ActiveRFQ != nil {
		rfq, err := s.rfqRepo.GetByID(ctx, *vendor.ActiveRFQ)
		if err != nil {
			return nil, fmt.Errorf("get active rfq: %w", err)
		}
		view.ActiveRFQ = rfq
	}
	return view, nil
}

func (s *queryServiceImpl) ListVendors(ctx context.Context, filter entity.VendorFilter) (*VendorPage, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	vendors, err := s.vendorRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	total, err := s.vendorRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count vendors: %w", err)
	}

	page := &VendorPage{
		Vendors: make([]*VendorView, 0, len(vendors)),
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}
	for _, vendor := range vendors {
		view, err := s.vendorView(ctx, vendor)
		if err != nil {
			return nil, err
		}
		page.Vendors = append(page.Vendors, view)
	}
	return page, nil
}

func (s *queryServiceImpl) History(ctx context.Context, subject event.Subject, key string) ([]*entity.StatusHistory, error) {
	history, err := s.historyRepo.ListBySubject(ctx, string(subject), key)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if history == nil {
		history = []*entity.StatusHistory{}
	}
	return history, nil
}
