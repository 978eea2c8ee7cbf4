package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
)

// Delivery outcomes reported to observers
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
	OutcomeDead   = "dead"
)

// defaultSendLease bounds how long a claimed row stays invisible to other senders.
// It outlasts an SMTP dial and send; a row still SENDING after it is retried.
const defaultSendLease = 5 * time.Minute

// DeliveryObserver is told about every delivery attempt
type DeliveryObserver func(template, outcome string)

// NotificationService is the outbox: transitions queue rows inside their transaction,
// rows are delivered after commit and retried by the notification worker
type NotificationService interface {
	port.Outbox

	// ProcessDue attempts up to limit rows whose retry time has passed
	ProcessDue(ctx context.Context, limit int) (sent, failed int, err error)
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	notifier         port.Notifier
	logger           Logger

	reviewers   []string
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	sendLease   time.Duration
	now         func() time.Time
	observer    DeliveryObserver
}

// NotificationOption configures the notification service
type NotificationOption func(*notificationServiceImpl)

// WithReviewers sets the internal reviewer distribution list
func WithReviewers(reviewers []string) NotificationOption {
	return func(s *notificationServiceImpl) {
		s.reviewers = reviewers
	}
}

// WithRetryPolicy sets the attempt limit and the exponential backoff bounds
func WithRetryPolicy(maxAttempts int, base, max time.Duration) NotificationOption {
	return func(s *notificationServiceImpl) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if base > 0 {
			s.baseBackoff = base
		}
		if max > 0 {
			s.maxBackoff = max
		}
	}
}

// WithNotificationClock overrides the time source
func WithNotificationClock(now func() time.Time) NotificationOption {
	return func(s *notificationServiceImpl) {
		s.now = now
	}
}

// WithDeliveryObserver registers a callback for delivery outcomes
func WithDeliveryObserver(observer DeliveryObserver) NotificationOption {
	return func(s *notificationServiceImpl) {
		s.observer = observer
	}
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	notifier port.Notifier,
	logger Logger,
	opts ...NotificationOption,
) NotificationService {
	s := &notificationServiceImpl{
		notificationRepo: notificationRepo,
		notifier:         notifier,
		logger:           logger,
		maxAttempts:      5,
		baseBackoff:      time.Minute,
		maxBackoff:       6 * time.Hour,
		sendLease:        defaultSendLease,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Enqueue writes a PENDING outbox row; a message with nobody to send to is stored as DEAD
func (s *notificationServiceImpl) Enqueue(ctx context.Context, msg port.OutboundMessage) (int64, error) {
	now := s.now()
	notification := &entity.Notification{
		Template:      msg.Template,
		Audience:      msg.Audience,
		SubjectKey:    msg.SubjectKey,
		Recipients:    s.recipients(msg.Audience, msg.VendorEmail),
		Variables:     msg.Variables,
		Status:        entity.NotificationStatusPending,
		NextAttemptAt: now,
	}
	if len(notification.Recipients) == 0 {
		notification.Status = entity.NotificationStatusDead
		notification.LastError = "no recipients"
	}

	if err := s.notificationRepo.Create(ctx, notification); err != nil {
		return 0, fmt.Errorf("create notification: %w", err)
	}

	if notification.Status == entity.NotificationStatusDead {
		s.logger.Error("Notification has no recipients",
			"template", msg.Template,
			"subject_key", msg.SubjectKey,
			"notification_id", notification.ID,
		)
	}

	return notification.ID, nil
}

// recipients resolves an audience into a de-duplicated address list
func (s *notificationServiceImpl) recipients(audience, vendorEmail string) []string {
	var candidates []string
	if audience == entity.AudienceVendor || audience == entity.AudienceBoth {
		candidates = append(candidates, vendorEmail)
	}
	if audience == entity.AudienceReviewers || audience == entity.AudienceBoth {
		candidates = append(candidates, s.reviewers...)
	}

	seen := make(map[string]bool, len(candidates))
	result := make([]string, 0, len(candidates))
	for _, address := range candidates {
		address = strings.TrimSpace(address)
		key := strings.ToLower(address)
		if address == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, address)
	}
	return result
}

// Deliver attempts the given rows immediately.
// A row that another sender holds, or whose retry is scheduled later, is left alone.
func (s *notificationServiceImpl) Deliver(ctx context.Context, ids ...int64) error {
	var errs []error
	for _, id := range ids {
		notification, err := s.notificationRepo.GetByID(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("get notification %d: %w", id, err))
			continue
		}
		if notification == nil {
			errs = append(errs, fmt.Errorf("notification %d not found", id))
			continue
		}
		if notification.Status == entity.NotificationStatusDead {
			errs = append(errs, fmt.Errorf("notification %d: %s", id, notification.LastError))
			continue
		}

		claimed, err := s.attempt(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !claimed && notification.Status != entity.NotificationStatusSent {
			s.logger.Info("Notification not claimed, left to its current sender",
				"notification_id", id,
				"status", notification.Status,
			)
		}
	}
	return errors.Join(errs...)
}

// ProcessDue attempts rows whose retry time has passed
func (s *notificationServiceImpl) ProcessDue(ctx context.Context, limit int) (int, int, error) {
	due, err := s.notificationRepo.ListDue(ctx, s.now(), limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list due notifications: %w", err)
	}

	sent, failed := 0, 0
	for _, notification := range due {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		claimed, err := s.attempt(ctx, notification.ID)
		switch {
		case err != nil:
			failed++
		case claimed:
			sent++
		}
	}
	return sent, failed, nil
}

// attempt claims one row and, when the claim succeeds, sends it and records the outcome.
// It reports false without error when the row was not claimable.
func (s *notificationServiceImpl) attempt(ctx context.Context, id int64) (bool, error) {
	now := s.now()
	notification, err := s.notificationRepo.Claim(ctx, id, now, now.Add(s.sendLease))
	if err != nil {
		return false, fmt.Errorf("claim notification %d: %w", id, err)
	}
	if notification == nil {
		return false, nil
	}
	return true, s.send(ctx, notification)
}

// send delivers a claimed row; Attempts already counts this attempt
func (s *notificationServiceImpl) send(ctx context.Context, notification *entity.Notification) error {
	sendErr := s.notifier.Send(ctx, notification)
	now := s.now()

	if sendErr == nil {
		if err := s.notificationRepo.MarkSent(ctx, notification.ID, now); err != nil {
			return fmt.Errorf("mark notification %d sent: %w", notification.ID, err)
		}
		s.observe(notification.Template, OutcomeSent)
		s.logger.Info("Notification sent",
			"notification_id", notification.ID,
			"template", notification.Template,
			"subject_key", notification.SubjectKey,
			"recipients", len(notification.Recipients),
		)
		return nil
	}

	attempts := notification.Attempts
	status, outcome := entity.NotificationStatusFailed, OutcomeFailed
	if attempts >= s.maxAttempts {
		status, outcome = entity.NotificationStatusDead, OutcomeDead
	}
	next := now.Add(s.backoff(attempts))

	if err := s.notificationRepo.MarkFailed(ctx, notification.ID, status, sendErr.Error(), next); err != nil {
		return fmt.Errorf("mark notification %d failed: %w (send error: %v)", notification.ID, err, sendErr)
	}
	s.observe(notification.Template, outcome)
	s.logger.Error("Notification delivery failed",
		"notification_id", notification.ID,
		"template", notification.Template,
		"subject_key", notification.SubjectKey,
		"attempts", attempts,
		"status", status,
		"error", sendErr,
	)

	return fmt.Errorf("send notification %d: %w", notification.ID, sendErr)
}

// backoff doubles the base delay per attempt, capped at maxBackoff
func (s *notificationServiceImpl) backoff(attempts int) time.Duration {
	delay := s.baseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	return delay
}

func (s *notificationServiceImpl) observe(template, outcome string) {
	if s.observer != nil {
		s.observer(template, outcome)
	}
}
