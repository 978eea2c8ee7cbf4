package entity

import (
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// Vendor is the durable identity created at first approval
type Vendor struct {
	ID         int64                 `json:"id"`
	VendorCode string                `json:"vendor_code"`
	Status     workflow.VendorStatus `json:"-"`
	ActiveRFQ  *int64                `json:"active_rfq,omitempty"`
	VendorName string                `json:"vendor_name"`
	Email      string                `json:"email"`
	Version    int                   `json:"version"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// VendorFilter narrows vendor listings
type VendorFilter struct {
	Status *workflow.VendorStatus
	Limit  int
	Offset int
}
