package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when no transition is configured for an action
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)

// ErrorKind classifies failures for the action dispatcher
type ErrorKind int

const (
	KindInfrastructure ErrorKind = iota
	KindValidation
	KindNotFound
	KindStateConflict
	KindConcurrency
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindConcurrency:
		return "concurrency"
	default:
		return "infrastructure"
	}
}

// ReasonError is an enumerable refusal reason with a stable code
type ReasonError struct {
	code    string
	kind    ErrorKind
	message string
}

func newReason(code string, kind ErrorKind, message string) *ReasonError {
	return &ReasonError{code: code, kind: kind, message: message}
}

func (e *ReasonError) Error() string {
	return e.message
}

// Code returns the machine-readable reason code
func (e *ReasonError) Code() string {
	return e.code
}

// Kind returns the error classification
func (e *ReasonError) Kind() ErrorKind {
	return e.kind
}

// Validation reasons
var (
	ErrActorRequired        = newReason("actor_required", KindValidation, "actor identity is required")
	ErrReferenceRequired    = newReason("reference_required", KindValidation, "reference id is required")
	ErrVendorCodeRequired   = newReason("vendor_code_required", KindValidation, "vendor code is required")
	ErrUnknownAction        = newReason("unknown_action", KindValidation, "unknown action")
	ErrExpiryRequired       = newReason("expiry_required", KindValidation, "expiry date is required")
	ErrExpiryNotInFuture    = newReason("expiry_not_in_future", KindValidation, "expiry date must be in the future")
	ErrInvalidRegistration  = newReason("invalid_registration", KindValidation, "registration details are invalid")
	ErrCommentRequired      = newReason("comment_required", KindValidation, "comment text is required")
	ErrStateNotResolvable   = newReason("state_not_resolvable", KindValidation, "counterparty state cannot be resolved to a state code")
	ErrCounterpartyRequired = newReason("counterparty_required", KindValidation, "counterparty profile is required")
)

// Not-found reasons
var (
	ErrRFQNotFound          = newReason("rfq_not_found", KindNotFound, "rfq not found")
	ErrVendorNotFound       = newReason("vendor_not_found", KindNotFound, "vendor not found")
	ErrCounterpartyNotFound = newReason("counterparty_not_found", KindNotFound, "counterparty profile not found")
)

// State-conflict reasons
var (
	ErrAlreadySubmitted       = newReason("already_submitted", KindStateConflict, "rfq has already been submitted")
	ErrAlreadySentBack        = newReason("already_sent_back", KindStateConflict, "rfq has already been sent back")
	ErrAlreadyVerified        = newReason("already_verified", KindStateConflict, "rfq has already been verified")
	ErrAlreadyApproved        = newReason("already_approved", KindStateConflict, "rfq has already been approved")
	ErrAlreadyRejected        = newReason("already_rejected", KindStateConflict, "rfq has already been rejected")
	ErrRFQRejected            = newReason("rfq_rejected", KindStateConflict, "rfq has been rejected")
	ErrRFQBlocked             = newReason("vendor_blocked", KindStateConflict, "rfq belongs to a blocked vendor")
	ErrRFQSuspended           = newReason("vendor_suspended", KindStateConflict, "rfq belongs to a suspended vendor")
	ErrRFQExpired             = newReason("rfq_expired", KindStateConflict, "rfq has expired")
	ErrNotSubmitted           = newReason("not_submitted", KindStateConflict, "rfq must be submitted first")
	ErrAwaitingResubmission   = newReason("awaiting_resubmission", KindStateConflict, "rfq was sent back and awaits resubmission")
	ErrNotVerified            = newReason("not_verified", KindStateConflict, "only a verified rfq can be approved")
	ErrProfileLocked          = newReason("profile_locked", KindStateConflict, "counterparty profile can only be edited before submission or after send-back")
	ErrAlreadyBlocked         = newReason("already_blocked", KindStateConflict, "vendor is already blocked")
	ErrAlreadySuspended       = newReason("already_suspended", KindStateConflict, "vendor is already suspended")
	ErrAlreadyActive          = newReason("already_active", KindStateConflict, "vendor is already active")
	ErrActivateFirst          = newReason("activate_first", KindStateConflict, "vendor must be activated first")
	ErrReinitiateRequired     = newReason("reinitiate_required", KindStateConflict, "expired vendor must be re-initiated instead of activated")
	ErrVendorCodeMissing      = newReason("vendor_code_missing", KindStateConflict, "vendor has no vendor code")
	ErrReinitiationInProgress = newReason("reinitiation_in_progress", KindStateConflict, "a re-initiation for this vendor is already under review")
	ErrOutsideRenewalWindow   = newReason("outside_renewal_window", KindStateConflict, "vendor is not yet within the renewal window")
	ErrNoSourceRFQ            = newReason("no_source_rfq", KindStateConflict, "vendor has no rfq to re-initiate from")
	ErrConcurrentModification = newReason("concurrent_modification", KindConcurrency, "record was modified concurrently")
	ErrDuplicateReferenceID   = newReason("duplicate_reference_id", KindConcurrency, "reference id already exists")
	ErrDuplicateVendorCode    = newReason("duplicate_vendor_code", KindConcurrency, "vendor code already exists")
)

// TransitionError wraps a refusal reason with the action and subject it applied to
type TransitionError struct {
	Action  Action
	Subject string
	From    string
	Err     error
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("%s %s: %v", e.Action, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s %s (from %s): %v", e.Action, e.Subject, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Reason returns the first ReasonError in the chain, or nil
func Reason(err error) *ReasonError {
	var reason *ReasonError
	if errors.As(err, &reason) {
		return reason
	}
	return nil
}

// KindOf classifies an error; anything without a reason is an infrastructure failure
func KindOf(err error) ErrorKind {
	if reason := Reason(err); reason != nil {
		return reason.Kind()
	}
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrGuardFailed) {
		return KindStateConflict
	}
	return KindInfrastructure
}
