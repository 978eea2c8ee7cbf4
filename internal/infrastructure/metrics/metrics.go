// Package metrics exposes Prometheus collectors for transitions, notification delivery and HTTP traffic.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
)

// Metrics holds the service collectors, all registered on one registry
type Metrics struct {
	TransitionsTotal    *prometheus.CounterVec
	RefusalsTotal       *prometheus.CounterVec
	RegistrationsTotal  prometheus.Counter
	NotificationsTotal  *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg under the given name prefix
func New(reg prometheus.Registerer, prefix string) *Metrics {
	if prefix == "" {
		prefix = "vendor_lifecycle"
	}
	factory := promauto.With(reg)

	return &Metrics{
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_transitions_total",
				Help: "Total number of committed lifecycle transitions",
			},
			[]string{"subject", "action", "to_status"},
		),
		RefusalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_transition_refusals_total",
				Help: "Total number of refused lifecycle actions by reason",
			},
			[]string{"action", "reason"},
		),
		RegistrationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_registrations_total",
				Help: "Total number of vendor registrations opened",
			},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_notifications_total",
				Help: "Total number of notification delivery attempts by outcome",
			},
			[]string{"template", "outcome"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

// ObserveDelivery records one notification delivery outcome
func (m *Metrics) ObserveDelivery(template, outcome string) {
	m.NotificationsTotal.WithLabelValues(template, outcome).Inc()
}

// RecordRefusal counts a refused action
func (m *Metrics) RecordRefusal(action, reason string) {
	m.RefusalsTotal.WithLabelValues(action, reason).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

// HandleTransition is a dispatcher handler for transition.committed events
func (m *Metrics) HandleTransition(ctx context.Context, evt *event.Event) error {
	m.TransitionsTotal.WithLabelValues(
		string(evt.Subject),
		evt.GetPayloadString(event.KeyAction),
		evt.GetPayloadString(event.KeyToStatus),
	).Inc()
	return nil
}

// HandleRegistration is a dispatcher handler for rfq.registered events
func (m *Metrics) HandleRegistration(ctx context.Context, evt *event.Event) error {
	m.RegistrationsTotal.Inc()
	return nil
}
