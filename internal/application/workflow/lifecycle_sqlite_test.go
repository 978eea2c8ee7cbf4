package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/application/service"
	"github.com/garyjia/vendor-lifecycle/internal/application/workflow"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/persistence/repository"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/vendor-lifecycle/internal/infrastructure/persistence/sqlitetest"
	"github.com/garyjia/vendor-lifecycle/pkg/database"
)

var clock = time.Date(2025, time.October, 15, 9, 0, 0, 0, time.UTC)

func inDays(n int) time.Time {
	return time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// switchNotifier records sends, fails while down is set and takes delay per send
type switchNotifier struct {
	mu    sync.Mutex
	down  bool
	delay time.Duration
	sent  []string
}

func (n *switchNotifier) Send(ctx context.Context, notification *entity.Notification) error {
	n.mu.Lock()
	delay := n.delay
	n.mu.Unlock()
	time.Sleep(delay)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return errors.New("smtp: 421 service not available")
	}
	n.sent = append(n.sent, notification.Template)
	return nil
}

type lifecycle struct {
	repos         workflow.Repositories
	notifications port.NotificationRepository
	notifier      *switchNotifier
	outbox        service.NotificationService
	engine        workflow.Engine
	registration  service.RegistrationService
}

func newLifecycle(t *testing.T) *lifecycle {
	return newLifecycleOn(t, sqlitetest.Open(t))
}

func newLifecycleOn(t *testing.T, db *database.DB) *lifecycle {
	logger := zap.NewNop()

	repos := workflow.Repositories{
		RFQs:           repository.NewRFQRepository(db.DB, logger),
		Vendors:        repository.NewVendorRepository(db.DB, logger),
		Counterparties: repository.NewCounterpartyRepository(db.DB, logger),
		Comments:       repository.NewCommentRepository(db.DB, logger),
		History:        repository.NewHistoryRepository(db.DB, logger),
		Sequences:      repository.NewSequenceRepository(db.DB, logger),
	}
	notifications := repository.NewNotificationRepository(db.DB, logger)
	tx := sqlite.NewDB(db.DB, logger)
	notifier := &switchNotifier{}
	outbox := service.NewNotificationService(notifications, notifier, nopLogger{},
		service.WithReviewers([]string{"vms@corp.example"}),
		service.WithNotificationClock(func() time.Time { return clock }),
	)

	return &lifecycle{
		repos:         repos,
		notifications: notifications,
		notifier:      notifier,
		outbox:        outbox,
		engine: workflow.NewEngine(repos, tx, outbox,
			workflow.WithClock(func() time.Time { return clock }),
			workflow.WithLogger(nopLogger{}),
		),
		registration: service.NewRegistrationService(repos.RFQs, repos.Counterparties, repos.Comments,
			repos.History, repos.Sequences, tx, outbox, nil, nopLogger{}),
	}
}

func (l *lifecycle) register(t *testing.T, name, state string) string {
	t.Helper()
	result, err := l.registration.Register(context.Background(), service.RegistrationInput{
		VendorName:  name,
		ContactName: "Asha Rao",
		Email:       "ops@" + state + ".example",
		Counterparty: entity.Counterparty{
			LegalName:   name + " Pvt Ltd",
			EntityType:  "private_limited",
			GSTIN:       "29ABCDE1234F1Z5",
			Country:     "IN",
			IndianState: state,
			RegisteredAddress: entity.Address{
				Line1: "12 MG Road", City: "Bengaluru", PostalCode: "560001", Country: "IN",
			},
			Contacts: []entity.ContactPerson{{Name: "Asha Rao", Email: "asha@" + state + ".example"}},
			Bank:     entity.BankDetails{AccountName: name, AccountNumber: "001234567890", IFSC: "HDFC0001234"},
		},
	}, "officer-7")
	require.NoError(t, err)
	return result.RFQ.ReferenceID
}

// approveNew walks a registered submission through review and returns the new vendor code
func (l *lifecycle) approveNew(t *testing.T, referenceID string, expiry time.Time) string {
	t.Helper()
	ctx := context.Background()

	_, err := l.engine.Submit(ctx, referenceID, "vendor-portal")
	require.NoError(t, err)
	_, err = l.engine.Verify(ctx, referenceID, "reviewer-2", inDays(90))
	require.NoError(t, err)
	result, err := l.engine.Approve(ctx, referenceID, "head-vms", expiry)
	require.NoError(t, err)
	return result.VendorCode
}

func (l *lifecycle) rfqStatus(t *testing.T, referenceID string) domainwf.RFQStatus {
	t.Helper()
	status, err := l.repos.RFQs.GetStatus(context.Background(), referenceID)
	require.NoError(t, err)
	return status
}

func (l *lifecycle) vendorStatus(t *testing.T, code string) domainwf.VendorStatus {
	t.Helper()
	status, err := l.repos.Vendors.GetStatus(context.Background(), code)
	require.NoError(t, err)
	return status
}

func TestLifecycle_NewVendor(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()

	ref := l.register(t, "Acme", "Karnataka")
	assert.Equal(t, "RFI-VEN-00001", ref)
	assert.Equal(t, domainwf.RFQInitial, l.rfqStatus(t, ref))

	code := l.approveNew(t, ref, inDays(365))
	assert.Equal(t, "VNDR/KA/25-26/0001", code)
	assert.Equal(t, domainwf.RFQApproved, l.rfqStatus(t, ref))
	assert.Equal(t, domainwf.VendorApproved, l.vendorStatus(t, code))

	expiry, err := l.repos.RFQs.GetExpiryDate(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, expiry)
	assert.Equal(t, "2026-10-15", expiry.Format(time.DateOnly))

	_, err = l.engine.Block(ctx, code, "head-vms")
	require.NoError(t, err)
	assert.Equal(t, domainwf.VendorBlocked, l.vendorStatus(t, code))

	_, err = l.engine.Suspend(ctx, code, "head-vms")
	assert.True(t, errors.Is(err, domainwf.ErrActivateFirst))

	_, err = l.engine.Activate(ctx, code, "head-vms")
	require.NoError(t, err)
	assert.Equal(t, domainwf.VendorApproved, l.vendorStatus(t, code))

	history, err := l.repos.History.ListBySubject(ctx, "rfq", ref)
	require.NoError(t, err)
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{"register", "submit", "verify", "approve"}, actions)

	assert.Equal(t, []string{
		entity.TemplateRegistered, entity.TemplateSubmitted, entity.TemplateVerified,
		entity.TemplateApproved, entity.TemplateBlocked, entity.TemplateActivated,
	}, l.notifier.sent)
	sent, err := l.notifications.CountByStatus(ctx, entity.NotificationStatusSent)
	require.NoError(t, err)
	assert.Equal(t, 6, sent)
}

func TestLifecycle_SubmitRefusedOutsideEditableStates(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()

	ref := l.register(t, "Acme", "Karnataka")
	_, err := l.engine.Submit(ctx, ref, "vendor-portal")
	require.NoError(t, err)

	_, err = l.engine.Submit(ctx, ref, "vendor-portal")
	assert.True(t, errors.Is(err, domainwf.ErrAlreadySubmitted))
	assert.Equal(t, domainwf.RFQSubmitted, l.rfqStatus(t, ref))

	_, err = l.engine.Verify(ctx, ref, "reviewer-2", inDays(90))
	require.NoError(t, err)
	_, err = l.engine.Submit(ctx, ref, "vendor-portal")
	assert.True(t, errors.Is(err, domainwf.ErrAlreadyVerified))
	assert.Equal(t, domainwf.RFQVerified, l.rfqStatus(t, ref))
}

func TestLifecycle_SerialsPerStateAndYear(t *testing.T) {
	l := newLifecycle(t)

	first := l.approveNew(t, l.register(t, "Acme", "Karnataka"), inDays(365))
	other := l.approveNew(t, l.register(t, "Bolt", "Maharashtra"), inDays(365))
	second := l.approveNew(t, l.register(t, "Crux", "Karnataka"), inDays(365))

	assert.Equal(t, "VNDR/KA/25-26/0001", first)
	assert.Equal(t, "VNDR/MH/25-26/0001", other)
	assert.Equal(t, "VNDR/KA/25-26/0002", second)
}

func TestLifecycle_Renewal(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()

	source := l.register(t, "Acme", "Karnataka")
	code := l.approveNew(t, source, inDays(45))

	result, err := l.engine.Reinitiate(ctx, code, "", "officer-7")
	require.NoError(t, err)
	renewal := result.NewReferenceID
	assert.Equal(t, "RFI-VEN-00002", renewal)
	assert.Equal(t, domainwf.RFQInitial, l.rfqStatus(t, renewal))
	assert.Equal(t, domainwf.VendorApproved, l.vendorStatus(t, code))

	original, err := l.repos.Counterparties.GetByReferenceID(ctx, source)
	require.NoError(t, err)
	copied, err := l.repos.Counterparties.GetByReferenceID(ctx, renewal)
	require.NoError(t, err)
	require.NotNil(t, copied)
	assert.Equal(t, renewal, copied.ReferenceID)
	assert.NotEqual(t, original.ID, copied.ID)
	assert.Equal(t, withoutIdentity(original), withoutIdentity(copied))

	_, err = l.engine.Reinitiate(ctx, code, "", "officer-7")
	assert.True(t, errors.Is(err, domainwf.ErrReinitiationInProgress))

	// the renewal goes through review and replaces the source
	_, err = l.engine.Submit(ctx, renewal, "vendor-portal")
	require.NoError(t, err)
	_, err = l.engine.Verify(ctx, renewal, "reviewer-2", inDays(400))
	require.NoError(t, err)
	approved, err := l.engine.Approve(ctx, renewal, "head-vms", inDays(410))
	require.NoError(t, err)
	assert.Equal(t, code, approved.VendorCode)

	vendor, err := l.repos.Vendors.GetByCode(ctx, code)
	require.NoError(t, err)
	renewed, err := l.repos.RFQs.GetByReferenceID(ctx, renewal)
	require.NoError(t, err)
	assert.Equal(t, renewed.ID, *vendor.ActiveRFQ)
	assert.True(t, renewed.IsActive)

	old, err := l.repos.RFQs.GetByReferenceID(ctx, source)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestLifecycle_RejectedRenewalExpiresVendor(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()

	source := l.register(t, "Acme", "Karnataka")
	code := l.approveNew(t, source, inDays(30))

	result, err := l.engine.Reinitiate(ctx, code, "", "officer-7")
	require.NoError(t, err)
	renewal := result.NewReferenceID

	_, err = l.engine.Submit(ctx, renewal, "vendor-portal")
	require.NoError(t, err)
	_, err = l.engine.Reject(ctx, renewal, "head-vms")
	require.NoError(t, err)

	assert.Equal(t, domainwf.RFQRejected, l.rfqStatus(t, renewal))
	assert.Equal(t, domainwf.VendorExpired, l.vendorStatus(t, code))
	vendor, err := l.repos.Vendors.GetByCode(ctx, code)
	require.NoError(t, err)
	assert.Nil(t, vendor.ActiveRFQ)
	rejected, err := l.repos.RFQs.GetByReferenceID(ctx, renewal)
	require.NoError(t, err)
	assert.False(t, rejected.IsActive)
	old, err := l.repos.RFQs.GetByReferenceID(ctx, source)
	require.NoError(t, err)
	assert.False(t, old.IsActive, "an expired vendor keeps no active submission")

	// an expired vendor is renewed from its latest approved submission
	again, err := l.engine.Reinitiate(ctx, code, "", "officer-7")
	require.NoError(t, err)
	assert.Equal(t, source, again.ReferenceID)

	_, err = l.engine.Activate(ctx, code, "head-vms")
	assert.True(t, errors.Is(err, domainwf.ErrReinitiateRequired))
}

func TestLifecycle_NotificationFailureKeepsTransition(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()

	ref := l.register(t, "Acme", "Karnataka")
	l.notifier.down = true

	result, err := l.engine.Submit(ctx, ref, "vendor-portal")
	require.NoError(t, err)
	assert.Error(t, result.NotificationErr)
	assert.NotEmpty(t, result.Warning())
	assert.Equal(t, domainwf.RFQSubmitted, l.rfqStatus(t, ref))

	failed, err := l.notifications.CountByStatus(ctx, entity.NotificationStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	// the retry is scheduled after the backoff
	due, err := l.notifications.ListDue(ctx, clock, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
	due, err = l.notifications.ListDue(ctx, clock.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestLifecycle_PostCommitDeliveryAndWorkerSendOnce(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()
	l.notifier.delay = 50 * time.Millisecond

	id, err := l.outbox.Enqueue(ctx, port.OutboundMessage{
		Template:    entity.TemplateApproved,
		Audience:    entity.AudienceVendor,
		SubjectKey:  "RFI-VEN-00001",
		VendorEmail: "ops@acme.example",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, l.outbox.Deliver(ctx, id))
	}()
	go func() {
		defer wg.Done()
		_, _, err := l.outbox.ProcessDue(ctx, 10)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, []string{entity.TemplateApproved}, l.notifier.sent)
	row, err := l.notifications.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.NotificationStatusSent, row.Status)
	assert.Equal(t, 1, row.Attempts)
}

func TestLifecycle_ParallelApproveCreatesOneVendor(t *testing.T) {
	db := sqlitetest.OpenFile(t, 8)
	l := newLifecycleOn(t, db)
	ctx := context.Background()

	ref := l.register(t, "Acme", "Karnataka")
	_, err := l.engine.Submit(ctx, ref, "vendor-portal")
	require.NoError(t, err)
	_, err = l.engine.Verify(ctx, ref, "reviewer-2", inDays(90))
	require.NoError(t, err)

	const approvers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		mu    sync.Mutex
		codes []string
		errs  []error
	)
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := l.engine.Approve(ctx, ref, "head-vms", inDays(365))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			codes = append(codes, result.VendorCode)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, codes, 1)
	assert.Equal(t, "VNDR/KA/25-26/0001", codes[0])
	assert.Len(t, errs, approvers-1)
	for _, err := range errs {
		kind := domainwf.KindOf(err)
		assert.Contains(t, []domainwf.ErrorKind{domainwf.KindStateConflict, domainwf.KindConcurrency}, kind, "error: %v", err)
	}

	vendors, err := repository.NewVendorRepository(db.DB, zap.NewNop()).Count(ctx, entity.VendorFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, vendors)
	assert.Equal(t, domainwf.RFQApproved, l.rfqStatus(t, ref))
	assert.Equal(t, domainwf.VendorApproved, l.vendorStatus(t, codes[0]))
}

func TestLifecycle_ReferenceIDsSkipExistingRows(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()

	// a row inserted outside the generator pushes the sequence past its id
	require.NoError(t, l.repos.RFQs.Create(ctx, &entity.RFQ{
		ReferenceID: "RFI-VEN-LEGACY",
		Status:      domainwf.RFQRejected,
		CreatedBy:   "import",
	}))

	assert.Equal(t, "RFI-VEN-00002", l.register(t, "Acme", "Karnataka"))
	assert.Equal(t, "RFI-VEN-00003", l.register(t, "Bolt", "Karnataka"))
}

// withoutIdentity drops the fields a snapshot is expected to change
func withoutIdentity(c *entity.Counterparty) entity.Counterparty {
	copied := *c
	copied.ID = 0
	copied.ReferenceID = ""
	copied.CreatedAt = time.Time{}
	copied.UpdatedAt = time.Time{}
	return copied
}
