package event

// Type identifies the type of domain event
type Type string

const (
	TypeTransitionCommitted Type = "transition.committed"
	TypeRFQRegistered       Type = "rfq.registered"
	TypeNotificationFailed  Type = "notification.failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeTransitionCommitted,
		TypeRFQRegistered,
		TypeNotificationFailed:
		return true
	default:
		return false
	}
}

// Subject names the aggregate an event refers to
type Subject string

const (
	SubjectRFQ    Subject = "rfq"
	SubjectVendor Subject = "vendor"
)
