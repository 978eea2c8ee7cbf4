package service

import (
	"context"

	"github.com/garyjia/vendor-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
)

// AuditLog writes one structured log line per committed domain event.
// The status_history table is the durable trail; this is the operational one.
type AuditLog struct {
	logger Logger
}

// NewAuditLog creates an audit log subscriber
func NewAuditLog(logger Logger) *AuditLog {
	return &AuditLog{logger: logger}
}

// Subscribe registers the audit handlers on d
func (a *AuditLog) Subscribe(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeTransitionCommitted, "audit-log.transition", "logs committed transitions", a.HandleTransition)
	d.SubscribeNamed(event.TypeRFQRegistered, "audit-log.registration", "logs new registrations", a.HandleRegistration)
	d.SubscribeNamed(event.TypeNotificationFailed, "audit-log.notification", "logs notifications left for retry", a.HandleNotificationFailed)
}

// HandleTransition logs a transition.committed event
func (a *AuditLog) HandleTransition(ctx context.Context, evt *event.Event) error {
	fields := []interface{}{
		"event_id", evt.ID,
		"correlation_id", evt.CorrelationID,
		"subject", string(evt.Subject),
		"subject_key", evt.SubjectKey,
		"action", evt.GetPayloadString(event.KeyAction),
		"from_status", evt.GetPayloadString(event.KeyFromStatus),
		"to_status", evt.GetPayloadString(event.KeyToStatus),
		"actor", evt.GetPayloadString(event.KeyActor),
		"notified", evt.GetPayloadBool(event.KeyNotified),
	}
	if code := evt.GetPayloadString(event.KeyVendorCode); code != "" {
		fields = append(fields, "vendor_code", code)
	}
	if ref := evt.GetPayloadString(event.KeyReference); ref != "" {
		fields = append(fields, "new_reference_id", ref)
	}
	a.logger.Info("Audit: transition", fields...)
	return nil
}

// HandleRegistration logs an rfq.registered event
func (a *AuditLog) HandleRegistration(ctx context.Context, evt *event.Event) error {
	a.logger.Info("Audit: registration",
		"event_id", evt.ID,
		"reference_id", evt.SubjectKey,
		"actor", evt.GetPayloadString(event.KeyActor),
	)
	return nil
}

// HandleNotificationFailed logs a notification that will be retried by the worker
func (a *AuditLog) HandleNotificationFailed(ctx context.Context, evt *event.Event) error {
	a.logger.Error("Audit: notification pending retry",
		"event_id", evt.ID,
		"correlation_id", evt.CorrelationID,
		"subject_key", evt.SubjectKey,
		"action", evt.GetPayloadString(event.KeyAction),
		"error", evt.GetPayloadString(event.KeyError),
	)
	return nil
}
