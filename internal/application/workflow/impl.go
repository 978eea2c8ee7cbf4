package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/vendor-lifecycle/internal/application/identifier"
	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// DefaultRenewalWindowDays is how close to expiry a vendor may be re-initiated
const DefaultRenewalWindowDays = 60

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Repositories groups the persistence ports the engine writes through
type Repositories struct {
	RFQs           port.RFQRepository
	Vendors        port.VendorRepository
	Counterparties port.CounterpartyRepository
	Comments       port.CommentRepository
	History        port.HistoryRepository
	Sequences      port.SequenceRepository
}

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	repos      Repositories
	txManager  port.TransactionManager
	outbox     port.Outbox
	references *identifier.ReferenceGenerator
	codes      *identifier.VendorCodeGenerator
	dispatcher dispatcher.Dispatcher
	logger     Logger

	now         func() time.Time
	location    *time.Location
	renewalDays int
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for post-commit transition events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for "today"
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithLocation sets the timezone in which calendar days are counted
func WithLocation(loc *time.Location) EngineOption {
	return func(e *engineImpl) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithRenewalWindow sets the re-initiation window in days
func WithRenewalWindow(days int) EngineOption {
	return func(e *engineImpl) {
		if days > 0 {
			e.renewalDays = days
		}
	}
}

// NewEngine creates a new workflow engine
func NewEngine(repos Repositories, txManager port.TransactionManager, outbox port.Outbox, opts ...EngineOption) Engine {
	e := &engineImpl{
		repos:       repos,
		txManager:   txManager,
		outbox:      outbox,
		references:  identifier.NewReferenceGenerator(repos.Sequences, repos.RFQs),
		codes:       identifier.NewVendorCodeGenerator(repos.Sequences, repos.Vendors),
		now:         time.Now,
		location:    time.UTC,
		renewalDays: DefaultRenewalWindowDays,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute validates and routes a request to one action
func (e *engineImpl) Execute(ctx context.Context, req Request) (*Result, error) {
	if !req.Action.IsValid() {
		return nil, fmt.Errorf("%w: %q", domainwf.ErrUnknownAction, req.Action)
	}

	if req.CorrelationID != "" {
		ctx = withCorrelationID(ctx, req.CorrelationID)
	}

	if req.Action.RequiresExpiry() && req.ExpiryDate == nil {
		return nil, domainwf.ErrExpiryRequired
	}

	switch req.Action {
	case domainwf.ActionSubmit:
		return e.Submit(ctx, req.ReferenceID, req.Actor)
	case domainwf.ActionSendBack:
		return e.SendBack(ctx, req.ReferenceID, req.Actor)
	case domainwf.ActionVerify:
		return e.Verify(ctx, req.ReferenceID, req.Actor, *req.ExpiryDate)
	case domainwf.ActionApprove:
		return e.Approve(ctx, req.ReferenceID, req.Actor, *req.ExpiryDate)
	case domainwf.ActionReject:
		return e.Reject(ctx, req.ReferenceID, req.Actor)
	case domainwf.ActionBlock:
		return e.Block(ctx, req.VendorCode, req.Actor)
	case domainwf.ActionSuspend:
		return e.Suspend(ctx, req.VendorCode, req.Actor)
	case domainwf.ActionActivate:
		return e.Activate(ctx, req.VendorCode, req.Actor)
	default:
		return e.Reinitiate(ctx, req.VendorCode, req.ReferenceID, req.Actor)
	}
}

// transition collects what one committed action must publish and deliver
type transition struct {
	result        *Result
	subject       event.Subject
	subjectKey    string
	from, to      string
	actor         string
	notifications []int64
}

// run executes fn inside one transaction, then publishes the event and delivers notifications
func (e *engineImpl) run(ctx context.Context, action domainwf.Action, actor string, fn func(txCtx context.Context, t *transition) error) (*Result, error) {
	t := &transition{
		result: &Result{Action: action},
		actor:  actor,
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return fn(txCtx, t)
	})
	if err != nil {
		e.logRefusal(action, t.subjectKey, actor, err)
		return nil, err
	}

	t.result.NotificationIDs = t.notifications

	if e.logger != nil {
		e.logger.Info("Transition committed",
			"action", action.String(),
			"subject", string(t.subject),
			"subject_key", t.subjectKey,
			"from_status", t.from,
			"to_status", t.to,
			"actor", actor,
		)
	}

	if len(t.notifications) > 0 && e.outbox != nil {
		if err := e.outbox.Deliver(ctx, t.notifications...); err != nil {
			t.result.NotificationErr = err
			if e.logger != nil {
				e.logger.Error("Notification delivery failed after commit",
					"action", action.String(),
					"subject_key", t.subjectKey,
					"notification_ids", t.notifications,
					"error", err,
				)
			}
		}
	}

	e.publish(ctx, action, t)

	return t.result, nil
}

func (e *engineImpl) publish(ctx context.Context, action domainwf.Action, t *transition) {
	if e.dispatcher == nil {
		return
	}

	payload := map[string]interface{}{
		event.KeyAction:     action.String(),
		event.KeyFromStatus: t.from,
		event.KeyToStatus:   t.to,
		event.KeyActor:      t.actor,
		event.KeyNotified:   t.result.NotificationErr == nil,
	}
	if t.result.VendorCode != "" {
		payload[event.KeyVendorCode] = t.result.VendorCode
	}
	if t.result.NewReferenceID != "" {
		payload[event.KeyReference] = t.result.NewReferenceID
	}

	evt := event.NewEventWithCorrelation(event.TypeTransitionCommitted, t.subject, t.subjectKey, payload, correlationID(ctx))

	// Handlers outlive the request
	detached := context.WithoutCancel(ctx)
	e.dispatcher.DispatchAsync(detached, evt)

	if t.result.NotificationErr != nil {
		failed := event.NewEventWithCorrelation(event.TypeNotificationFailed, t.subject, t.subjectKey, map[string]interface{}{
			event.KeyAction: action.String(),
			event.KeyError:  t.result.NotificationErr.Error(),
		}, evt.CorrelationID)
		e.dispatcher.DispatchAsync(detached, failed)
	}
}

func (e *engineImpl) logRefusal(action domainwf.Action, subjectKey, actor string, err error) {
	if e.logger == nil {
		return
	}
	kind := domainwf.KindOf(err)
	if kind == domainwf.KindInfrastructure {
		e.logger.Error("Transition failed",
			"action", action.String(),
			"subject_key", subjectKey,
			"actor", actor,
			"error", err,
		)
		return
	}
	fields := []interface{}{
		"action", action.String(),
		"subject_key", subjectKey,
		"actor", actor,
		"kind", kind.String(),
	}
	if reason := domainwf.Reason(err); reason != nil {
		fields = append(fields, "reason", reason.Code())
	}
	e.logger.Info("Transition refused", fields...)
}

// record writes the history row for the transition
func (e *engineImpl) record(ctx context.Context, t *transition, action domainwf.Action, note string) error {
	history := &entity.StatusHistory{
		SubjectType: string(t.subject),
		SubjectKey:  t.subjectKey,
		Action:      action.String(),
		FromStatus:  t.from,
		ToStatus:    t.to,
		Actor:       t.actor,
		Note:        note,
		Timestamp:   e.now(),
	}
	if err := e.repos.History.Create(ctx, history); err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}
	return nil
}

// notify queues one outbox row inside the transaction
func (e *engineImpl) notify(ctx context.Context, t *transition, msg port.OutboundMessage) error {
	if e.outbox == nil {
		return nil
	}
	id, err := e.outbox.Enqueue(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to queue %s notification: %w", msg.Template, err)
	}
	t.notifications = append(t.notifications, id)
	return nil
}

// today returns the current calendar date as UTC midnight
func (e *engineImpl) today() time.Time {
	return civilDate(e.now().In(e.location))
}

// civilDate drops the clock and zone of t, keeping its calendar date
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b
func daysBetween(a, b time.Time) int {
	return int(civilDate(b).Sub(civilDate(a)).Hours() / 24)
}

// futureExpiry validates and normalizes a caller-supplied expiry date
func (e *engineImpl) futureExpiry(expiry time.Time) (time.Time, error) {
	if expiry.IsZero() {
		return time.Time{}, domainwf.ErrExpiryRequired
	}
	date := civilDate(expiry)
	if !date.After(e.today()) {
		return time.Time{}, fmt.Errorf("%w: %s", domainwf.ErrExpiryNotInFuture, date.Format(time.DateOnly))
	}
	return date, nil
}

// subjectError names the subject on a refusal coming out of a state machine
func subjectError(err error, subject string) error {
	var transitionErr *domainwf.TransitionError
	if errors.As(err, &transitionErr) && transitionErr.Subject == "" {
		transitionErr.Subject = subject
	}
	return err
}

type correlationKey struct{}

func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
