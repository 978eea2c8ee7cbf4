package workflow

import (
	"fmt"
	"strings"
)

// Status is implemented by the two lifecycle enums driven by a StateMachine
type Status interface {
	comparable
	String() string
	IsValid() bool
}

// RFQStatus is the lifecycle state of a single registration submission
type RFQStatus int

const (
	RFQInitial RFQStatus = iota + 1
	RFQSubmitted
	RFQVerified
	RFQSentBack
	RFQApproved
	RFQRejected
	RFQBlocked
	RFQSuspended
	RFQExpired
)

// rfqCodes maps RFQ statuses to the numeric codes stored in the rfqs table
var rfqCodes = map[RFQStatus]int{
	RFQInitial:   7,
	RFQSubmitted: 8,
	RFQVerified:  9,
	RFQSentBack:  10,
	RFQApproved:  11,
	RFQRejected:  12,
	RFQBlocked:   13,
	RFQSuspended: 14,
	RFQExpired:   15,
}

var rfqNames = map[RFQStatus]string{
	RFQInitial:   "INITIAL",
	RFQSubmitted: "SUBMITTED",
	RFQVerified:  "VERIFIED",
	RFQSentBack:  "SENT_BACK",
	RFQApproved:  "APPROVED",
	RFQRejected:  "REJECTED",
	RFQBlocked:   "BLOCKED",
	RFQSuspended: "SUSPENDED",
	RFQExpired:   "EXPIRED",
}

// inFlightRFQ holds the statuses of a submission that is still under review
var inFlightRFQ = map[RFQStatus]bool{
	RFQInitial:   true,
	RFQSubmitted: true,
	RFQVerified:  true,
	RFQSentBack:  true,
}

// String returns the string representation of the status
func (s RFQStatus) String() string {
	if name, ok := rfqNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RFQStatus(%d)", int(s))
}

// IsValid returns true if the status is a known RFQ status
func (s RFQStatus) IsValid() bool {
	_, ok := rfqCodes[s]
	return ok
}

// Code returns the storage code of the status
func (s RFQStatus) Code() int {
	return rfqCodes[s]
}

// IsInFlight reports whether a submission in this status is still mid-review
func (s RFQStatus) IsInFlight() bool {
	return inFlightRFQ[s]
}

// InFlightRFQStatuses returns the statuses that block a new re-initiation
func InFlightRFQStatuses() []RFQStatus {
	return []RFQStatus{RFQInitial, RFQSubmitted, RFQVerified, RFQSentBack}
}

// ParseRFQStatus converts a storage code into an RFQStatus
func ParseRFQStatus(code int) (RFQStatus, error) {
	for status, c := range rfqCodes {
		if c == code {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: rfq status code %d", ErrInvalidState, code)
}

// VendorStatus is the lifecycle state of a durable vendor identity.
// Its storage codes overlap with RFQStatus but the two are never interchangeable.
type VendorStatus int

const (
	VendorApproved VendorStatus = iota + 1
	VendorBlocked
	VendorSuspended
	VendorExpired
)

var vendorCodes = map[VendorStatus]int{
	VendorApproved:  11,
	VendorBlocked:   13,
	VendorSuspended: 14,
	VendorExpired:   15,
}

var vendorNames = map[VendorStatus]string{
	VendorApproved:  "ACTIVE",
	VendorBlocked:   "BLOCKED",
	VendorSuspended: "SUSPENDED",
	VendorExpired:   "EXPIRED",
}

// String returns the string representation of the status
func (s VendorStatus) String() string {
	if name, ok := vendorNames[s]; ok {
		return name
	}
	return fmt.Sprintf("VendorStatus(%d)", int(s))
}

// IsValid returns true if the status is a known vendor status
func (s VendorStatus) IsValid() bool {
	_, ok := vendorCodes[s]
	return ok
}

// Code returns the storage code of the status
func (s VendorStatus) Code() int {
	return vendorCodes[s]
}

// ParseVendorStatus converts a storage code into a VendorStatus
func ParseVendorStatus(code int) (VendorStatus, error) {
	for status, c := range vendorCodes {
		if c == code {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: vendor status code %d", ErrInvalidState, code)
}

// ParseVendorStatusName converts a status name such as "ACTIVE" into a VendorStatus
func ParseVendorStatusName(name string) (VendorStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for status, n := range vendorNames {
		if n == upper {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: vendor status %q", ErrInvalidState, name)
}
