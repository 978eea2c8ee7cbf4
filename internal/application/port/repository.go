package port

import (
	"context"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// RFQRepository defines persistence operations for registration submissions.
// Writes are conditional on the row version and fail with workflow.ErrConcurrentModification
// when another transaction changed the row first.
type RFQRepository interface {
	// Create inserts a new submission and sets its ID and Version
	Create(ctx context.Context, rfq *entity.RFQ) error

	// GetByID returns nil when no row exists
	GetByID(ctx context.Context, id int64) (*entity.RFQ, error)

	// GetByReferenceID returns nil when no row exists
	GetByReferenceID(ctx context.Context, referenceID string) (*entity.RFQ, error)

	// GetStatus returns workflow.ErrRFQNotFound when no row exists
	GetStatus(ctx context.Context, referenceID string) (workflow.RFQStatus, error)

	// GetExpiryDate returns workflow.ErrRFQNotFound when no row exists and nil when no expiry is set
	GetExpiryDate(ctx context.Context, referenceID string) (*time.Time, error)

	// SetStatus persists Status, ExpiryDate, SubmissionCount and IsActive of rfq
	SetStatus(ctx context.Context, rfq *entity.RFQ) error

	// LinkVendor links the submission to a vendor and marks it as the active one
	LinkVendor(ctx context.Context, rfq *entity.RFQ, vendorID int64) error

	// DeactivateOthers clears is_active on every other submission of the vendor
	DeactivateOthers(ctx context.Context, vendorID, keepRFQID int64) error

	// ListByVendor returns a vendor's submissions, newest first
	ListByVendor(ctx context.Context, vendorID int64) ([]*entity.RFQ, error)

	// CountInFlightByVendor counts the vendor's submissions that are still mid-review
	CountInFlightByVendor(ctx context.Context, vendorID int64) (int, error)

	// MaxID returns the largest row id, zero for an empty table
	MaxID(ctx context.Context) (int64, error)
}

// VendorRepository defines persistence operations for durable vendor identities
type VendorRepository interface {
	// Create inserts a vendor; a duplicate code fails with workflow.ErrDuplicateVendorCode
	Create(ctx context.Context, vendor *entity.Vendor) error

	// GetByID returns nil when no row exists
	GetByID(ctx context.Context, id int64) (*entity.Vendor, error)

	// GetByCode returns nil when no row exists
	GetByCode(ctx context.Context, vendorCode string) (*entity.Vendor, error)

	// GetStatus returns workflow.ErrVendorNotFound when no row exists
	GetStatus(ctx context.Context, vendorCode string) (workflow.VendorStatus, error)

	// SetStatus persists Status and ActiveRFQ of vendor
	SetStatus(ctx context.Context, vendor *entity.Vendor) error

	// CountByCodePrefix counts the vendor codes starting with prefix
	CountByCodePrefix(ctx context.Context, prefix string) (int, error)

	List(ctx context.Context, filter entity.VendorFilter) ([]*entity.Vendor, error)
	Count(ctx context.Context, filter entity.VendorFilter) (int, error)
}

// CounterpartyRepository defines persistence operations for company profiles
type CounterpartyRepository interface {
	Create(ctx context.Context, counterparty *entity.Counterparty) error
	GetByReferenceID(ctx context.Context, referenceID string) (*entity.Counterparty, error)
	Update(ctx context.Context, counterparty *entity.Counterparty) error
}

// CommentRepository defines persistence operations for reviewer comments
type CommentRepository interface {
	Create(ctx context.Context, comment *entity.ReviewComment) error
	ListByReference(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error)
	ListUnemailed(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error)
	MarkEmailed(ctx context.Context, ids []int64, at time.Time) error
}

// HistoryRepository defines persistence operations for the transition audit trail
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.StatusHistory) error
	ListBySubject(ctx context.Context, subjectType, subjectKey string) ([]*entity.StatusHistory, error)
}

// NotificationRepository defines persistence operations for the notification outbox
type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)

	// ListDue returns claimable rows whose next attempt time has passed, oldest first
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error)

	// Claim atomically moves a claimable row to SENDING, counts the attempt and holds it
	// until leaseUntil. It returns nil when the row is not claimable, e.g. another sender has it.
	Claim(ctx context.Context, id int64, now, leaseUntil time.Time) (*entity.Notification, error)

	MarkSent(ctx context.Context, id int64, at time.Time) error

	// MarkFailed records the outcome of a claimed attempt; status is FAILED or DEAD
	MarkFailed(ctx context.Context, id int64, status, errorMsg string, nextAttemptAt time.Time) error

	CountByStatus(ctx context.Context, status string) (int, error)
}

// SequenceRepository issues monotonically increasing values per named counter
type SequenceRepository interface {
	// Next returns the next value of the counter, never less than floor+1
	Next(ctx context.Context, name string, floor int64) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
