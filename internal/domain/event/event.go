package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event published after a transaction commits
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	Subject       Subject                `json:"subject"`
	SubjectKey    string                 `json:"subject_key"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID and timestamp
func NewEvent(eventType Type, subject Subject, subjectKey string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, subject, subjectKey, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain, usually the HTTP request id
func NewEventWithCorrelation(eventType Type, subject Subject, subjectKey string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Subject:       subject,
		SubjectKey:    subjectKey,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	copied := *e
	copied.Payload = newPayload
	return &copied
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// Payload keys carried by transition events
const (
	KeyAction     = "action"
	KeyFromStatus = "from_status"
	KeyToStatus   = "to_status"
	KeyActor      = "actor"
	KeyVendorCode = "vendor_code"
	KeyReference  = "reference_id"
	KeyNotified   = "notified"
	KeyError      = "error"
)
