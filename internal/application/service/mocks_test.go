package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockRFQRepo struct {
	createFunc           func(ctx context.Context, rfq *entity.RFQ) error
	getByIDFunc          func(ctx context.Context, id int64) (*entity.RFQ, error)
	getByReferenceIDFunc func(ctx context.Context, referenceID string) (*entity.RFQ, error)
	maxID                int64
	created              []*entity.RFQ
}

func (m *mockRFQRepo) Create(ctx context.Context, rfq *entity.RFQ) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, rfq)
	}
	rfq.ID = int64(len(m.created) + 1)
	rfq.Version = 1
	m.created = append(m.created, rfq)
	return nil
}

func (m *mockRFQRepo) GetByID(ctx context.Context, id int64) (*entity.RFQ, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockRFQRepo) GetByReferenceID(ctx context.Context, referenceID string) (*entity.RFQ, error) {
	if m.getByReferenceIDFunc != nil {
		return m.getByReferenceIDFunc(ctx, referenceID)
	}
	return nil, nil
}

func (m *mockRFQRepo) GetStatus(ctx context.Context, referenceID string) (workflow.RFQStatus, error) {
	return 0, workflow.ErrRFQNotFound
}

func (m *mockRFQRepo) GetExpiryDate(ctx context.Context, referenceID string) (*time.Time, error) {
	return nil, nil
}

func (m *mockRFQRepo) SetStatus(ctx context.Context, rfq *entity.RFQ) error { return nil }

func (m *mockRFQRepo) LinkVendor(ctx context.Context, rfq *entity.RFQ, vendorID int64) error {
	return nil
}

func (m *mockRFQRepo) DeactivateOthers(ctx context.Context, vendorID, keepRFQID int64) error {
	return nil
}

func (m *mockRFQRepo) ListByVendor(ctx context.Context, vendorID int64) ([]*entity.RFQ, error) {
	return nil, nil
}

func (m *mockRFQRepo) CountInFlightByVendor(ctx context.Context, vendorID int64) (int, error) {
	return 0, nil
}

func (m *mockRFQRepo) MaxID(ctx context.Context) (int64, error) {
	return m.maxID, nil
}

type mockVendorRepo struct {
	vendors []*entity.Vendor
	listErr error
}

func (m *mockVendorRepo) Create(ctx context.Context, vendor *entity.Vendor) error { return nil }

func (m *mockVendorRepo) GetByID(ctx context.Context, id int64) (*entity.Vendor, error) {
	for _, v := range m.vendors {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, nil
}

func (m *mockVendorRepo) GetByCode(ctx context.Context, vendorCode string) (*entity.Vendor, error) {
	for _, v := range m.vendors {
		if v.VendorCode == vendorCode {
			return v, nil
		}
	}
	return nil, nil
}

func (m *mockVendorRepo) GetStatus(ctx context.Context, vendorCode string) (workflow.VendorStatus, error) {
	return 0, workflow.ErrVendorNotFound
}

func (m *mockVendorRepo) SetStatus(ctx context.Context, vendor *entity.Vendor) error { return nil }

func (m *mockVendorRepo) CountByCodePrefix(ctx context.Context, prefix string) (int, error) {
	return 0, nil
}

func (m *mockVendorRepo) filtered(filter entity.VendorFilter) []*entity.Vendor {
	var out []*entity.Vendor
	for _, v := range m.vendors {
		if filter.Status == nil || v.Status == *filter.Status {
			out = append(out, v)
		}
	}
	return out
}

func (m *mockVendorRepo) List(ctx context.Context, filter entity.VendorFilter) ([]*entity.Vendor, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	all := m.filtered(filter)
	if filter.Offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return all[filter.Offset:end], nil
}

func (m *mockVendorRepo) Count(ctx context.Context, filter entity.VendorFilter) (int, error) {
	return len(m.filtered(filter)), nil
}

type mockCounterpartyRepo struct {
	byRef   map[string]*entity.Counterparty
	updated []*entity.Counterparty
}

func newMockCounterpartyRepo() *mockCounterpartyRepo {
	return &mockCounterpartyRepo{byRef: make(map[string]*entity.Counterparty)}
}

func (m *mockCounterpartyRepo) Create(ctx context.Context, c *entity.Counterparty) error {
	c.ID = int64(len(m.byRef) + 1)
	m.byRef[c.ReferenceID] = c
	return nil
}

func (m *mockCounterpartyRepo) GetByReferenceID(ctx context.Context, referenceID string) (*entity.Counterparty, error) {
	return m.byRef[referenceID], nil
}

func (m *mockCounterpartyRepo) Update(ctx context.Context, c *entity.Counterparty) error {
	m.byRef[c.ReferenceID] = c
	m.updated = append(m.updated, c)
	return nil
}

type mockCommentRepo struct {
	comments []*entity.ReviewComment
}

func (m *mockCommentRepo) Create(ctx context.Context, c *entity.ReviewComment) error {
	c.ID = int64(len(m.comments) + 1)
	m.comments = append(m.comments, c)
	return nil
}

func (m *mockCommentRepo) ListByReference(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error) {
	var out []*entity.ReviewComment
	for _, c := range m.comments {
		if c.ReferenceID == referenceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommentRepo) ListUnemailed(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error) {
	return nil, nil
}

func (m *mockCommentRepo) MarkEmailed(ctx context.Context, ids []int64, at time.Time) error {
	return nil
}

type mockHistoryRepo struct {
	rows []*entity.StatusHistory
}

func (m *mockHistoryRepo) Create(ctx context.Context, h *entity.StatusHistory) error {
	m.rows = append(m.rows, h)
	return nil
}

func (m *mockHistoryRepo) ListBySubject(ctx context.Context, subjectType, subjectKey string) ([]*entity.StatusHistory, error) {
	var out []*entity.StatusHistory
	for _, h := range m.rows {
		if h.SubjectType == subjectType && h.SubjectKey == subjectKey {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockSequenceRepo struct {
	values map[string]int64
}

func (m *mockSequenceRepo) Next(ctx context.Context, name string, floor int64) (int64, error) {
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	next := m.values[name] + 1
	if next <= floor {
		next = floor + 1
	}
	m.values[name] = next
	return next, nil
}

type mockNotificationRepo struct {
	mu          sync.Mutex
	rows        map[int64]*entity.Notification
	createErr   error
	markSentErr error
	claimErr    error
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{rows: make(map[int64]*entity.Notification)}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = int64(len(m.rows) + 1)
	m.rows[n.ID] = n
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *n
	return &copied, nil
}

func (m *mockNotificationRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*entity.Notification
	for id := int64(1); id <= int64(len(m.rows)); id++ {
		n := m.rows[id]
		if n.Claimable(now) && len(due) < limit {
			copied := *n
			due = append(due, &copied)
		}
	}
	return due, nil
}

// Claim mirrors the conditional UPDATE: check and write happen under one lock
func (m *mockNotificationRepo) Claim(ctx context.Context, id int64, now, leaseUntil time.Time) (*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	n, ok := m.rows[id]
	if !ok || !n.Claimable(now) {
		return nil, nil
	}
	n.Status = entity.NotificationStatusSending
	n.Attempts++
	n.NextAttemptAt = leaseUntil
	copied := *n
	return &copied, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markSentErr != nil {
		return m.markSentErr
	}
	n := m.rows[id]
	n.Status = entity.NotificationStatusSent
	n.SentAt = &at
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id int64, status, errorMsg string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.rows[id]
	n.Status = status
	n.LastError = errorMsg
	n.NextAttemptAt = next
	return nil
}

func (m *mockNotificationRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.rows {
		if n.Status == status {
			count++
		}
	}
	return count, nil
}

type mockNotifier struct {
	mu       sync.Mutex
	sendFunc func(ctx context.Context, n *entity.Notification) error
	sent     []*entity.Notification
}

func (m *mockNotifier) Send(ctx context.Context, n *entity.Notification) error {
	if m.sendFunc != nil {
		if err := m.sendFunc(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	return nil
}

type mockOutbox struct {
	enqueued   []port.OutboundMessage
	delivered  []int64
	deliverErr error
}

func (m *mockOutbox) Enqueue(ctx context.Context, msg port.OutboundMessage) (int64, error) {
	m.enqueued = append(m.enqueued, msg)
	return int64(len(m.enqueued)), nil
}

func (m *mockOutbox) Deliver(ctx context.Context, ids ...int64) error {
	m.delivered = append(m.delivered, ids...)
	if m.deliverErr != nil {
		return fmt.Errorf("deliver: %w", m.deliverErr)
	}
	return nil
}
