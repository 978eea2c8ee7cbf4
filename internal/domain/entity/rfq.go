package entity

import (
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// RFQ is one vendor registration submission, identified by its reference id
type RFQ struct {
	ID              int64              `json:"id"`
	ReferenceID     string             `json:"reference_id"`
	VendorID        *int64             `json:"vendor_id,omitempty"`
	Status          workflow.RFQStatus `json:"-"`
	ExpiryDate      *time.Time         `json:"expiry_date,omitempty"`
	SubmissionCount int                `json:"submission_count"`
	IsActive        bool               `json:"is_active"`
	EntityID        int64              `json:"entity_id"`
	Email           string             `json:"email"`
	Mobile          string             `json:"mobile"`
	VendorName      string             `json:"vendor_name"`
	ContactName     string             `json:"contact_name"`
	Version         int                `json:"version"`
	CreatedBy       string             `json:"created_by"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// HasVendor reports whether the submission is linked to a vendor identity
func (r *RFQ) HasVendor() bool {
	return r.VendorID != nil && *r.VendorID > 0
}

// Renewal builds the Initial submission that re-initiates this one under a new reference id.
// Vendor linkage and contact fields are carried forward; review state is not.
func (r *RFQ) Renewal(referenceID, actor string) *RFQ {
	var vendorID *int64
	if r.VendorID != nil {
		id := *r.VendorID
		vendorID = &id
	}
	return &RFQ{
		ReferenceID: referenceID,
		VendorID:    vendorID,
		Status:      workflow.RFQInitial,
		EntityID:    r.EntityID,
		Email:       r.Email,
		Mobile:      r.Mobile,
		VendorName:  r.VendorName,
		ContactName: r.ContactName,
		CreatedBy:   actor,
	}
}
