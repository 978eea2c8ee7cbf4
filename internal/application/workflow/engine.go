package workflow

import (
	"context"
	"time"

	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// Engine applies lifecycle actions to submissions and vendors
type Engine interface {
	// Execute validates and routes a request to one action
	Execute(ctx context.Context, req Request) (*Result, error)

	Submit(ctx context.Context, referenceID, actor string) (*Result, error)
	SendBack(ctx context.Context, referenceID, actor string) (*Result, error)
	Verify(ctx context.Context, referenceID, actor string, expiry time.Time) (*Result, error)
	Approve(ctx context.Context, referenceID, actor string, expiry time.Time) (*Result, error)
	Reject(ctx context.Context, referenceID, actor string) (*Result, error)

	Block(ctx context.Context, vendorCode, actor string) (*Result, error)
	Suspend(ctx context.Context, vendorCode, actor string) (*Result, error)
	Activate(ctx context.Context, vendorCode, actor string) (*Result, error)

	// Reinitiate opens a renewal submission for a vendor addressed by code,
	// or by the reference id of one of its submissions when the code is empty
	Reinitiate(ctx context.Context, vendorCode, referenceID, actor string) (*Result, error)
}

// Request is one action call from the dispatcher
type Request struct {
	Action        domainwf.Action
	ReferenceID   string
	VendorCode    string
	Actor         string
	ExpiryDate    *time.Time
	CorrelationID string
}

// Result describes a committed transition
type Result struct {
	Action          domainwf.Action `json:"action"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	NewReferenceID  string          `json:"new_reference_id,omitempty"`
	VendorCode      string          `json:"vendor_code,omitempty"`
	RFQStatus       string          `json:"rfq_status,omitempty"`
	VendorStatus    string          `json:"vendor_status,omitempty"`
	Resubmission    bool            `json:"resubmission,omitempty"`
	NotificationIDs []int64         `json:"notification_ids,omitempty"`

	// NotificationErr is set when the transition committed but delivery failed.
	// The outbox rows stay queued for retry.
	NotificationErr error `json:"-"`
}

// Warning returns a caller-facing message for a committed transition whose notification failed
func (r *Result) Warning() string {
	if r == nil || r.NotificationErr == nil {
		return ""
	}
	return "transition committed but notification delivery failed; it will be retried: " + r.NotificationErr.Error()
}
