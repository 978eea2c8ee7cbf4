package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/vendor-lifecycle/internal/application/service"
	"github.com/garyjia/vendor-lifecycle/internal/application/workflow"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

type stubEngine struct {
	workflow.Engine
	requests []workflow.Request
	result   *workflow.Result
	err      error
}

func (e *stubEngine) Execute(ctx context.Context, req workflow.Request) (*workflow.Result, error) {
	e.requests = append(e.requests, req)
	if e.err != nil {
		return nil, e.err
	}
	if e.result != nil {
		return e.result, nil
	}
	return &workflow.Result{Action: req.Action, ReferenceID: req.ReferenceID, VendorCode: req.VendorCode}, nil
}

type stubRegistration struct {
	registerFunc func(ctx context.Context, input service.RegistrationInput, actor string) (*service.RegistrationResult, error)
	updateFunc   func(ctx context.Context, referenceID string, counterparty entity.Counterparty, actor string) (*entity.Counterparty, error)
	commentFunc  func(ctx context.Context, referenceID string, input service.CommentInput, author string) (*entity.ReviewComment, error)
}

func (s *stubRegistration) Register(ctx context.Context, input service.RegistrationInput, actor string) (*service.RegistrationResult, error) {
	return s.registerFunc(ctx, input, actor)
}

func (s *stubRegistration) UpdateCounterparty(ctx context.Context, referenceID string, counterparty entity.Counterparty, actor string) (*entity.Counterparty, error) {
	return s.updateFunc(ctx, referenceID, counterparty, actor)
}

func (s *stubRegistration) AddComment(ctx context.Context, referenceID string, input service.CommentInput, author string) (*entity.ReviewComment, error) {
	return s.commentFunc(ctx, referenceID, input, author)
}

type stubQuery struct {
	rfqs        map[string]*service.RFQView
	vendors     map[string]*service.VendorView
	lastFilter  entity.VendorFilter
	lastSubject event.Subject
	listErr     error
}

func (q *stubQuery) GetRFQ(ctx context.Context, referenceID string) (*service.RFQView, error) {
	if view, ok := q.rfqs[referenceID]; ok {
		return view, nil
	}
	return nil, domainwf.ErrRFQNotFound
}

func (q *stubQuery) GetVendor(ctx context.Context, vendorCode string) (*service.VendorView, error) {
	if view, ok := q.vendors[vendorCode]; ok {
		return view, nil
	}
	return nil, domainwf.ErrVendorNotFound
}

func (q *stubQuery) ListVendors(ctx context.Context, filter entity.VendorFilter) (*service.VendorPage, error) {
	q.lastFilter = filter
	if q.listErr != nil {
		return nil, q.listErr
	}
	return &service.VendorPage{Vendors: []*service.VendorView{}, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (q *stubQuery) History(ctx context.Context, subject event.Subject, key string) ([]*entity.StatusHistory, error) {
	q.lastSubject = subject
	return []*entity.StatusHistory{{SubjectType: string(subject), SubjectKey: key, Action: "submit"}}, nil
}

type stubExport struct {
	err error
}

func (e *stubExport) ExportVendors(ctx context.Context, w io.Writer, filter entity.VendorFilter) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	_, err := w.Write([]byte("PK-xlsx"))
	return 3, err
}

type recordingMetrics struct {
	refusals []string
	routes   []string
}

func (m *recordingMetrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.routes = append(m.routes, fmt.Sprintf("%s %s %d", method, path, status))
}

func (m *recordingMetrics) RecordRefusal(action, reason string) {
	m.refusals = append(m.refusals, action+":"+reason)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type serverFixture struct {
	engine       *stubEngine
	registration *stubRegistration
	query        *stubQuery
	export       *stubExport
	metrics      *recordingMetrics
	server       *Server
}

func newServerFixture(opts ...ServerOption) *serverFixture {
	f := &serverFixture{
		engine:       &stubEngine{},
		registration: &stubRegistration{},
		query: &stubQuery{
			rfqs:    map[string]*service.RFQView{},
			vendors: map[string]*service.VendorView{},
		},
		export:  &stubExport{},
		metrics: &recordingMetrics{},
	}
	opts = append([]ServerOption{WithMetrics(f.metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	}))}, opts...)
	f.server = NewServer(DefaultServerConfig(), Services{
		Engine:       f.engine,
		Registration: f.registration,
		Query:        f.query,
		Export:       f.export,
	}, nopLogger{}, opts...)
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, actor, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestRFQAction_Routes(t *testing.T) {
	f := newServerFixture()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/rfqs/RFI-VEN-00001/actions/verify", "reviewer-1", `{"expiry_date":"2026-10-31"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	require.Len(t, f.engine.requests, 1)

	req := f.engine.requests[0]
	assert.Equal(t, domainwf.ActionVerify, req.Action)
	assert.Equal(t, "RFI-VEN-00001", req.ReferenceID)
	assert.Equal(t, "reviewer-1", req.Actor)
	require.NotNil(t, req.ExpiryDate)
	assert.Equal(t, "2026-10-31", req.ExpiryDate.Format(dateLayout))
	assert.NotEmpty(t, req.CorrelationID)
	assert.Equal(t, req.CorrelationID, rec.Header().Get(RequestIDHeader))
}

func TestRFQAction_EmptyBody(t *testing.T) {
	f := newServerFixture()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/rfqs/RFI-VEN-00001/actions/submit", "vendor", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.engine.requests, 1)
	assert.Nil(t, f.engine.requests[0].ExpiryDate)
}

func TestRFQAction_RequestValidation(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		actor    string
		body     string
		wantCode string
	}{
		{"missing actor", "/api/v1/rfqs/RFI-VEN-00001/actions/submit", "", "", "actor_required"},
		{"vendor action on rfq route", "/api/v1/rfqs/RFI-VEN-00001/actions/block", "ops", "", "unknown_action"},
		{"unknown action", "/api/v1/rfqs/RFI-VEN-00001/actions/archive", "ops", "", "unknown_action"},
		{"bad expiry", "/api/v1/rfqs/RFI-VEN-00001/actions/approve", "ops", `{"expiry_date":"31/10/2026"}`, "invalid_request"},
		{"malformed body", "/api/v1/rfqs/RFI-VEN-00001/actions/approve", "ops", `{"expiry_date":`, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture()

			rec, resp := f.do(t, http.MethodPost, tt.path, tt.actor, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Empty(t, f.engine.requests)
		})
	}
}

func TestRFQAction_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domainwf.ErrExpiryNotInFuture, http.StatusBadRequest, "expiry_not_in_future"},
		{"not found", domainwf.ErrRFQNotFound, http.StatusNotFound, "rfq_not_found"},
		{
			"state conflict",
			&domainwf.TransitionError{Action: domainwf.ActionApprove, Subject: "RFI-VEN-00001", From: "SUBMITTED", Err: domainwf.ErrNotVerified},
			http.StatusConflict, "not_verified",
		},
		{"guard refusal", fmt.Errorf("%w: %w", domainwf.ErrGuardFailed, domainwf.ErrRFQBlocked), http.StatusConflict, "vendor_blocked"},
		{"concurrency", domainwf.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
		{"infrastructure", errors.New("disk I/O error"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture()
			f.engine.err = tt.err

			rec, resp := f.do(t, http.MethodPost, "/api/v1/rfqs/RFI-VEN-00001/actions/approve", "ops", `{"expiry_date":"2026-10-31"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, resp.Error, "disk")
				assert.Empty(t, f.metrics.refusals)
			} else {
				assert.Equal(t, []string{"approve:" + tt.wantCode}, f.metrics.refusals)
			}
		})
	}
}

func TestRFQAction_NotificationWarning(t *testing.T) {
	f := newServerFixture()
	f.engine.result = &workflow.Result{
		Action:          domainwf.ActionSendBack,
		ReferenceID:     "RFI-VEN-00001",
		RFQStatus:       "SENT_BACK",
		NotificationErr: errors.New("dial tcp: connection refused"),
	}

	rec, resp := f.do(t, http.MethodPost, "/api/v1/rfqs/RFI-VEN-00001/actions/send-back", "ops", "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Warning, "it will be retried")
}

func TestVendorAction(t *testing.T) {
	f := newServerFixture()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/vendors/actions/reinitiate", "ops", `{"vendor_code":" VNDR/KA/25-26/0001 "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.engine.requests, 1)
	assert.Equal(t, domainwf.ActionReinitiate, f.engine.requests[0].Action)
	assert.Equal(t, "VNDR/KA/25-26/0001", f.engine.requests[0].VendorCode)

	rec, resp := f.do(t, http.MethodPost, "/api/v1/vendors/actions/approve", "ops", `{"vendor_code":"VNDR/KA/25-26/0001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_action", resp.Code)
}

func TestRegister(t *testing.T) {
	f := newServerFixture()
	var gotActor string
	var gotInput service.RegistrationInput
	f.registration.registerFunc = func(ctx context.Context, input service.RegistrationInput, actor string) (*service.RegistrationResult, error) {
		gotActor, gotInput = actor, input
		return &service.RegistrationResult{RFQ: &entity.RFQ{ReferenceID: "RFI-VEN-00001"}}, nil
	}

	body := `{"vendor_name":"Acme Traders","contact_name":"Asha","email":"asha@acme.example","counterparty":{"legal_name":"Acme Traders Pvt Ltd","indian_state":"Karnataka"}}`
	rec, resp := f.do(t, http.MethodPost, "/api/v1/rfqs", "portal", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, resp.Warning)
	assert.Equal(t, "portal", gotActor)
	assert.Equal(t, "Acme Traders", gotInput.VendorName)
	assert.Equal(t, "Karnataka", gotInput.Counterparty.IndianState)

	f.registration.registerFunc = func(ctx context.Context, input service.RegistrationInput, actor string) (*service.RegistrationResult, error) {
		return nil, fmt.Errorf("%w: Email", domainwf.ErrInvalidRegistration)
	}
	rec, resp = f.do(t, http.MethodPost, "/api/v1/rfqs", "portal", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_registration", resp.Code)
	assert.Equal(t, []string{"register:invalid_registration"}, f.metrics.refusals)
}

func TestUpdateCounterpartyLocked(t *testing.T) {
	f := newServerFixture()
	f.registration.updateFunc = func(ctx context.Context, referenceID string, counterparty entity.Counterparty, actor string) (*entity.Counterparty, error) {
		return nil, domainwf.ErrProfileLocked
	}

	rec, resp := f.do(t, http.MethodPut, "/api/v1/rfqs/RFI-VEN-00001/counterparty", "vendor", `{"legal_name":"Acme"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "profile_locked", resp.Code)
}

func TestAddComment(t *testing.T) {
	f := newServerFixture()
	f.registration.commentFunc = func(ctx context.Context, referenceID string, input service.CommentInput, author string) (*entity.ReviewComment, error) {
		return &entity.ReviewComment{ReferenceID: referenceID, Step: input.Step, Comment: input.Comment, Author: author}, nil
	}

	rec, resp := f.do(t, http.MethodPost, "/api/v1/rfqs/RFI-VEN-00001/comments", "reviewer-1", `{"step":"Bank","comment":"IFSC missing"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Bank", data["step"])
}

func TestReadEndpoints(t *testing.T) {
	f := newServerFixture()
	f.query.rfqs["RFI-VEN-00001"] = &service.RFQView{Status: "SUBMITTED"}
	f.query.vendors["VNDR/KA/25-26/0001"] = &service.VendorView{Status: "ACTIVE"}

	rec, _ := f.do(t, http.MethodGet, "/api/v1/rfqs/RFI-VEN-00001", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/rfqs/RFI-VEN-00404", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "rfq_not_found", resp.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/vendors/lookup?code=VNDR/KA/25-26/0001", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/vendors/lookup", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "vendor_code_required", resp.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/rfqs/RFI-VEN-00001/history", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, event.SubjectRFQ, f.query.lastSubject)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/vendors/history?code=VNDR/KA/25-26/0001", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, event.SubjectVendor, f.query.lastSubject)
}

func TestListVendorsFilter(t *testing.T) {
	f := newServerFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/vendors?status=suspended&limit=10&offset=20", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.query.lastFilter.Status)
	assert.Equal(t, domainwf.VendorSuspended, *f.query.lastFilter.Status)
	assert.Equal(t, 10, f.query.lastFilter.Limit)
	assert.Equal(t, 20, f.query.lastFilter.Offset)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/vendors?status=APPROVED", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/vendors?limit=ten", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportVendors(t *testing.T) {
	f := newServerFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/vendors/export", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))
	assert.Equal(t, "PK-xlsx", rec.Body.String())

	f.export.err = errors.New("database is locked")
	rec, resp := f.do(t, http.MethodGet, "/api/v1/vendors/export", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", resp.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := true
	f := newServerFixture(WithHealth(func() (bool, interface{}) {
		return healthy, map[string]bool{"database": healthy}
	}))

	rec, resp := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	healthy = false
	rec, resp = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	rec, _ = f.do(t, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, f.metrics.routes, "GET /health 200")
	assert.Contains(t, f.metrics.routes, "GET unmatched 404")
}

func TestRequestIDPropagation(t *testing.T) {
	f := newServerFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendors/actions/block", strings.NewReader(`{"vendor_code":"VNDR/KA/25-26/0001"}`))
	req.Header.Set(ActorHeader, "ops")
	req.Header.Set(RequestIDHeader, "req-123")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", f.engine.requests[0].CorrelationID)
}
