package workflow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// memStore backs every repository mock; rows are copied in and out like a database
type memStore struct {
	rfqs           map[int64]*entity.RFQ
	vendors        map[int64]*entity.Vendor
	counterparties map[string]*entity.Counterparty
	comments       []*entity.ReviewComment
	history        []*entity.StatusHistory
	sequences      map[string]int64

	historyErr error
	rfqSetErr  error

	// rfqReads counts GetByReferenceID calls per reference id
	rfqReads map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		rfqs:           make(map[int64]*entity.RFQ),
		vendors:        make(map[int64]*entity.Vendor),
		counterparties: make(map[string]*entity.Counterparty),
		sequences:      make(map[string]int64),
		rfqReads:       make(map[string]int),
	}
}

func (s *memStore) repositories() Repositories {
	return Repositories{
		RFQs:           &mockRFQRepo{s},
		Vendors:        &mockVendorRepo{s},
		Counterparties: &mockCounterpartyRepo{s},
		Comments:       &mockCommentRepo{s},
		History:        &mockHistoryRepo{s},
		Sequences:      &mockSequenceRepo{s},
	}
}

func copyRFQ(r *entity.RFQ) *entity.RFQ {
	c := *r
	if r.ExpiryDate != nil {
		d := *r.ExpiryDate
		c.ExpiryDate = &d
	}
	if r.VendorID != nil {
		id := *r.VendorID
		c.VendorID = &id
	}
	return &c
}

func copyVendor(v *entity.Vendor) *entity.Vendor {
	c := *v
	if v.ActiveRFQ != nil {
		id := *v.ActiveRFQ
		c.ActiveRFQ = &id
	}
	return &c
}

// addRFQ seeds a submission and returns its id
func (s *memStore) addRFQ(r *entity.RFQ) int64 {
	r.ID = int64(len(s.rfqs) + 1)
	r.Version = 1
	s.rfqs[r.ID] = copyRFQ(r)
	return r.ID
}

// addVendor seeds a vendor and returns its id
func (s *memStore) addVendor(v *entity.Vendor) int64 {
	v.ID = int64(len(s.vendors) + 1)
	v.Version = 1
	s.vendors[v.ID] = copyVendor(v)
	return v.ID
}

func (s *memStore) rfqByRef(referenceID string) *entity.RFQ {
	for _, r := range s.rfqs {
		if r.ReferenceID == referenceID {
			return r
		}
	}
	return nil
}

func (s *memStore) vendorByCode(code string) *entity.Vendor {
	for _, v := range s.vendors {
		if v.VendorCode == code {
			return v
		}
	}
	return nil
}

func (s *memStore) historyFor(subjectType, key string) []*entity.StatusHistory {
	var out []*entity.StatusHistory
	for _, h := range s.history {
		if h.SubjectType == subjectType && h.SubjectKey == key {
			out = append(out, h)
		}
	}
	return out
}

type mockRFQRepo struct{ s *memStore }

func (m *mockRFQRepo) Create(ctx context.Context, rfq *entity.RFQ) error {
	if m.s.rfqByRef(rfq.ReferenceID) != nil {
		return domainwf.ErrDuplicateReferenceID
	}
	m.s.addRFQ(rfq)
	return nil
}

func (m *mockRFQRepo) GetByID(ctx context.Context, id int64) (*entity.RFQ, error) {
	if r, ok := m.s.rfqs[id]; ok {
		return copyRFQ(r), nil
	}
	return nil, nil
}

func (m *mockRFQRepo) GetByReferenceID(ctx context.Context, referenceID string) (*entity.RFQ, error) {
	m.s.rfqReads[referenceID]++
	if r := m.s.rfqByRef(referenceID); r != nil {
		return copyRFQ(r), nil
	}
	return nil, nil
}

func (m *mockRFQRepo) GetStatus(ctx context.Context, referenceID string) (domainwf.RFQStatus, error) {
	if r := m.s.rfqByRef(referenceID); r != nil {
		return r.Status, nil
	}
	return 0, domainwf.ErrRFQNotFound
}

func (m *mockRFQRepo) GetExpiryDate(ctx context.Context, referenceID string) (*time.Time, error) {
	if r := m.s.rfqByRef(referenceID); r != nil {
		return r.ExpiryDate, nil
	}
	return nil, domainwf.ErrRFQNotFound
}

func (m *mockRFQRepo) write(rfq *entity.RFQ, apply func(stored *entity.RFQ)) error {
	stored, ok := m.s.rfqs[rfq.ID]
	if !ok || stored.Version != rfq.Version {
		return domainwf.ErrConcurrentModification
	}
	apply(stored)
	stored.Version++
	rfq.Version = stored.Version
	return nil
}

func (m *mockRFQRepo) SetStatus(ctx context.Context, rfq *entity.RFQ) error {
	if m.s.rfqSetErr != nil {
		return m.s.rfqSetErr
	}
	return m.write(rfq, func(stored *entity.RFQ) {
		c := copyRFQ(rfq)
		stored.Status = c.Status
		stored.ExpiryDate = c.ExpiryDate
		stored.SubmissionCount = c.SubmissionCount
		stored.IsActive = c.IsActive
	})
}

func (m *mockRFQRepo) LinkVendor(ctx context.Context, rfq *entity.RFQ, vendorID int64) error {
	err := m.write(rfq, func(stored *entity.RFQ) {
		id := vendorID
		stored.VendorID = &id
		stored.IsActive = true
	})
	if err == nil {
		id := vendorID
		rfq.VendorID = &id
		rfq.IsActive = true
	}
	return err
}

func (m *mockRFQRepo) DeactivateOthers(ctx context.Context, vendorID, keepRFQID int64) error {
	for _, r := range m.s.rfqs {
		if r.VendorID != nil && *r.VendorID == vendorID && r.ID != keepRFQID {
			r.IsActive = false
		}
	}
	return nil
}

func (m *mockRFQRepo) ListByVendor(ctx context.Context, vendorID int64) ([]*entity.RFQ, error) {
	var out []*entity.RFQ
	for _, r := range m.s.rfqs {
		if r.VendorID != nil && *r.VendorID == vendorID {
			out = append(out, copyRFQ(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mockRFQRepo) CountInFlightByVendor(ctx context.Context, vendorID int64) (int, error) {
	count := 0
	for _, r := range m.s.rfqs {
		if r.VendorID != nil && *r.VendorID == vendorID && r.Status.IsInFlight() {
			count++
		}
	}
	return count, nil
}

func (m *mockRFQRepo) MaxID(ctx context.Context) (int64, error) {
	var max int64
	for id := range m.s.rfqs {
		if id > max {
			max = id
		}
	}
	return max, nil
}

type mockVendorRepo struct{ s *memStore }

func (m *mockVendorRepo) Create(ctx context.Context, vendor *entity.Vendor) error {
	if m.s.vendorByCode(vendor.VendorCode) != nil {
		return domainwf.ErrDuplicateVendorCode
	}
	m.s.addVendor(vendor)
	return nil
}

func (m *mockVendorRepo) GetByID(ctx context.Context, id int64) (*entity.Vendor, error) {
	if v, ok := m.s.vendors[id]; ok {
		return copyVendor(v), nil
	}
	return nil, nil
}

func (m *mockVendorRepo) GetByCode(ctx context.Context, vendorCode string) (*entity.Vendor, error) {
	if v := m.s.vendorByCode(vendorCode); v != nil {
		return copyVendor(v), nil
	}
	return nil, nil
}

func (m *mockVendorRepo) GetStatus(ctx context.Context, vendorCode string) (domainwf.VendorStatus, error) {
	if v := m.s.vendorByCode(vendorCode); v != nil {
		return v.Status, nil
	}
	return 0, domainwf.ErrVendorNotFound
}

func (m *mockVendorRepo) SetStatus(ctx context.Context, vendor *entity.Vendor) error {
	stored, ok := m.s.vendors[vendor.ID]
	if !ok || stored.Version != vendor.Version {
		return domainwf.ErrConcurrentModification
	}
	c := copyVendor(vendor)
	stored.Status = c.Status
	stored.ActiveRFQ = c.ActiveRFQ
	stored.Version++
	vendor.Version = stored.Version
	return nil
}

func (m *mockVendorRepo) CountByCodePrefix(ctx context.Context, prefix string) (int, error) {
	count := 0
	for _, v := range m.s.vendors {
		if strings.HasPrefix(v.VendorCode, prefix) {
			count++
		}
	}
	return count, nil
}

func (m *mockVendorRepo) List(ctx context.Context, filter entity.VendorFilter) ([]*entity.Vendor, error) {
	return nil, errors.New("not used by the engine")
}

func (m *mockVendorRepo) Count(ctx context.Context, filter entity.VendorFilter) (int, error) {
	return len(m.s.vendors), nil
}

type mockCounterpartyRepo struct{ s *memStore }

func (m *mockCounterpartyRepo) Create(ctx context.Context, c *entity.Counterparty) error {
	c.ID = int64(len(m.s.counterparties) + 1)
	copied := *c
	m.s.counterparties[c.ReferenceID] = &copied
	return nil
}

func (m *mockCounterpartyRepo) GetByReferenceID(ctx context.Context, referenceID string) (*entity.Counterparty, error) {
	if c, ok := m.s.counterparties[referenceID]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (m *mockCounterpartyRepo) Update(ctx context.Context, c *entity.Counterparty) error {
	copied := *c
	m.s.counterparties[c.ReferenceID] = &copied
	return nil
}

type mockCommentRepo struct{ s *memStore }

func (m *mockCommentRepo) Create(ctx context.Context, c *entity.ReviewComment) error {
	c.ID = int64(len(m.s.comments) + 1)
	m.s.comments = append(m.s.comments, c)
	return nil
}

func (m *mockCommentRepo) ListByReference(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error) {
	var out []*entity.ReviewComment
	for _, c := range m.s.comments {
		if c.ReferenceID == referenceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommentRepo) ListUnemailed(ctx context.Context, referenceID string) ([]*entity.ReviewComment, error) {
	var out []*entity.ReviewComment
	for _, c := range m.s.comments {
		if c.ReferenceID == referenceID && !c.Emailed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommentRepo) MarkEmailed(ctx context.Context, ids []int64, at time.Time) error {
	for _, c := range m.s.comments {
		for _, id := range ids {
			if c.ID == id {
				c.Emailed = true
				emailedAt := at
				c.EmailedAt = &emailedAt
			}
		}
	}
	return nil
}

type mockHistoryRepo struct{ s *memStore }

func (m *mockHistoryRepo) Create(ctx context.Context, h *entity.StatusHistory) error {
	if m.s.historyErr != nil {
		return m.s.historyErr
	}
	h.ID = int64(len(m.s.history) + 1)
	m.s.history = append(m.s.history, h)
	return nil
}

func (m *mockHistoryRepo) ListBySubject(ctx context.Context, subjectType, subjectKey string) ([]*entity.StatusHistory, error) {
	return m.s.historyFor(subjectType, subjectKey), nil
}

type mockSequenceRepo struct{ s *memStore }

func (m *mockSequenceRepo) Next(ctx context.Context, name string, floor int64) (int64, error) {
	next := m.s.sequences[name] + 1
	if next <= floor {
		next = floor + 1
	}
	m.s.sequences[name] = next
	return next, nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
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
	return m.deliverErr
}

func (m *mockOutbox) templates() []string {
	out := make([]string, 0, len(m.enqueued))
	for _, msg := range m.enqueued {
		out = append(out, msg.Template)
	}
	return out
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name, description string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) ofType(t event.Type) []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Event
	for _, evt := range m.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

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
