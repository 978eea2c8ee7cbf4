package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/vendor-lifecycle/internal/application/service"
	"github.com/garyjia/vendor-lifecycle/internal/application/workflow"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

const (
	dateLayout = "2006-01-02"
	xlsxType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	metrics  Metrics
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, metrics Metrics, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		metrics:  metrics,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Warning string      `json:"warning,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// RFQActionRequest is the optional body of an rfq action
type RFQActionRequest struct {
	ExpiryDate string `json:"expiry_date"`
}

// VendorActionRequest is the body of a vendor action
type VendorActionRequest struct {
	VendorCode  string `json:"vendor_code"`
	ReferenceID string `json:"reference_id"`
}

// actor reads the upstream identity; it writes the 400 itself when missing
func (h *Handlers) actor(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetHeader(ActorHeader))
	if actor == "" {
		h.fail(c, "", domainwf.ErrActorRequired)
		return "", false
	}
	return actor, true
}

// bindOptionalJSON decodes the body when there is one
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Code: "invalid_request"})
}

// Register handles POST /api/v1/rfqs
func (h *Handlers) Register(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var input service.RegistrationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid registration body")
		return
	}

	result, err := h.services.Registration.Register(c.Request.Context(), input, actor)
	if err != nil {
		h.fail(c, "register", err)
		return
	}

	status := http.StatusCreated
	if result.NotificationErr != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, Response{Success: true, Data: result.RFQ, Warning: result.Warning()})
}

// GetRFQ handles GET /api/v1/rfqs/:reference_id
func (h *Handlers) GetRFQ(c *gin.Context) {
	view, err := h.services.Query.GetRFQ(c.Request.Context(), c.Param("reference_id"))
	if err != nil {
		h.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// RFQHistory handles GET /api/v1/rfqs/:reference_id/history
func (h *Handlers) RFQHistory(c *gin.Context) {
	h.history(c, event.SubjectRFQ, c.Param("reference_id"))
}

// VendorHistory handles GET /api/v1/vendors/history?code=
func (h *Handlers) VendorHistory(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		h.fail(c, "", domainwf.ErrVendorCodeRequired)
		return
	}
	h.history(c, event.SubjectVendor, code)
}

func (h *Handlers) history(c *gin.Context, subject event.Subject, key string) {
	rows, err := h.services.Query.History(c.Request.Context(), subject, key)
	if err != nil {
		h.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rows})
}

// UpdateCounterparty handles PUT /api/v1/rfqs/:reference_id/counterparty
func (h *Handlers) UpdateCounterparty(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var counterparty entity.Counterparty
	if err := c.ShouldBindJSON(&counterparty); err != nil {
		h.badRequest(c, "invalid counterparty body")
		return
	}

	updated, err := h.services.Registration.UpdateCounterparty(c.Request.Context(), c.Param("reference_id"), counterparty, actor)
	if err != nil {
		h.fail(c, "update_counterparty", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// AddComment handles POST /api/v1/rfqs/:reference_id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var input service.CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid comment body")
		return
	}

	comment, err := h.services.Registration.AddComment(c.Request.Context(), c.Param("reference_id"), input, actor)
	if err != nil {
		h.fail(c, "comment", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: comment})
}

// RFQAction handles POST /api/v1/rfqs/:reference_id/actions/:action
func (h *Handlers) RFQAction(c *gin.Context) {
	action := domainwf.Action(c.Param("action"))
	if !action.TargetsRFQ() {
		h.fail(c, "", fmt.Errorf("%w: %q", domainwf.ErrUnknownAction, action))
		return
	}

	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body RFQActionRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		h.badRequest(c, "invalid action body")
		return
	}

	req := workflow.Request{
		Action:        action,
		ReferenceID:   c.Param("reference_id"),
		Actor:         actor,
		CorrelationID: c.GetString(requestIDKey),
	}
	if body.ExpiryDate != "" {
		expiry, err := time.Parse(dateLayout, body.ExpiryDate)
		if err != nil {
			h.badRequest(c, "expiry_date must be YYYY-MM-DD")
			return
		}
		req.ExpiryDate = &expiry
	}

	h.execute(c, req)
}

// VendorAction handles POST /api/v1/vendors/actions/:action
func (h *Handlers) VendorAction(c *gin.Context) {
	action := domainwf.Action(c.Param("action"))
	if !action.TargetsVendor() {
		h.fail(c, "", fmt.Errorf("%w: %q", domainwf.ErrUnknownAction, action))
		return
	}

	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body VendorActionRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		h.badRequest(c, "invalid action body")
		return
	}

	h.execute(c, workflow.Request{
		Action:        action,
		VendorCode:    strings.TrimSpace(body.VendorCode),
		ReferenceID:   strings.TrimSpace(body.ReferenceID),
		Actor:         actor,
		CorrelationID: c.GetString(requestIDKey),
	})
}

func (h *Handlers) execute(c *gin.Context, req workflow.Request) {
	result, err := h.services.Engine.Execute(c.Request.Context(), req)
	if err != nil {
		h.fail(c, string(req.Action), err)
		return
	}

	if result.NotificationErr != nil {
		c.JSON(http.StatusAccepted, Response{Success: true, Data: result, Warning: result.Warning()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetVendor handles GET /api/v1/vendors/lookup?code=
func (h *Handlers) GetVendor(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		h.fail(c, "", domainwf.ErrVendorCodeRequired)
		return
	}

	view, err := h.services.Query.GetVendor(c.Request.Context(), code)
	if err != nil {
		h.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ListVendors handles GET /api/v1/vendors
func (h *Handlers) ListVendors(c *gin.Context) {
	filter, ok := h.vendorFilter(c)
	if !ok {
		return
	}

	page, err := h.services.Query.ListVendors(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: page})
}

// ExportVendors handles GET /api/v1/vendors/export
func (h *Handlers) ExportVendors(c *gin.Context) {
	filter, ok := h.vendorFilter(c)
	if !ok {
		return
	}

	// buffered so a failure halfway still gets a JSON error instead of a truncated file
	var buf bytes.Buffer
	count, err := h.services.Export.ExportVendors(c.Request.Context(), &buf, filter)
	if err != nil {
		h.fail(c, "", err)
		return
	}

	filename := fmt.Sprintf("vendors-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Total-Count", strconv.Itoa(count))
	c.Data(http.StatusOK, xlsxType, buf.Bytes())
}

func (h *Handlers) vendorFilter(c *gin.Context) (entity.VendorFilter, bool) {
	var filter entity.VendorFilter

	if name := c.Query("status"); name != "" {
		status, err := domainwf.ParseVendorStatusName(name)
		if err != nil {
			h.badRequest(c, "unknown vendor status")
			return filter, false
		}
		filter.Status = &status
	}

	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(c, key+" must be a number")
			return filter, false
		}
		*dst = n
	}

	return filter, true
}

// fail maps an application error to its status code and records refusals
func (h *Handlers) fail(c *gin.Context, action string, err error) {
	kind := domainwf.KindOf(err)

	if kind == domainwf.KindInfrastructure {
		h.logger.Error("Request failed",
			"path", c.FullPath(),
			"action", action,
			"request_id", c.GetString(requestIDKey),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error", Code: "internal"})
		return
	}

	code := kind.String()
	if reason := domainwf.Reason(err); reason != nil {
		code = reason.Code()
	}
	if action != "" && h.metrics != nil {
		h.metrics.RecordRefusal(action, code)
	}

	c.JSON(statusFor(kind), Response{Success: false, Error: err.Error(), Code: code})
}

func statusFor(kind domainwf.ErrorKind) int {
	switch kind {
	case domainwf.KindValidation:
		return http.StatusBadRequest
	case domainwf.KindNotFound:
		return http.StatusNotFound
	case domainwf.KindStateConflict, domainwf.KindConcurrency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
