/*
handlers.go - HTTP API handlers for the tutoring billing system

PURPOSE:
  Exposes the billing engine and its collaborator stores via REST API.
  Handles HTTP request/response, JSON serialization, and delegates the
  billing computation to roster.Service.

ENDPOINTS:
  Groups:
    GET    /api/groups                        List groups with resolved config
    POST   /api/groups                        Create group from JSON
    GET    /api/groups/{id}                   Get group
    PUT    /api/groups/{id}                   Replace group tariff
    GET    /api/groups/{id}/students          List enrolled students
    POST   /api/groups/{id}/students          Enroll a student

  Students:
    POST   /api/students                      Create student
    GET    /api/students/{id}                 Get student

  Sessions & attendance:
    GET    /api/groups/{id}/sessions          List sessions
    POST   /api/groups/{id}/sessions          Create session
    PUT    /api/sessions/{id}                 Change session date/status
    PUT    /api/sessions/{id}/attendance      Record a mark (upsert)

  Payments (append-only):
    GET    /api/groups/{id}/payments          Ledger, ?student_id= filter
    POST   /api/groups/{id}/payments          Append entry

  Billing:
    GET    /api/groups/{id}/billing                       Whole roster
    GET    /api/groups/{id}/students/{studentID}/billing  One student
    GET    /api/groups/{id}/snapshots                     Last scheduler run
    POST   /api/admin/recompute                           Run scheduler now

    Billing endpoints accept ?as_of= (YYYY-MM-DD or RFC 3339), default now.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Group, student, enrollment or session not found
  - 409: Duplicate payment ID
  - 422: Stored data unusable (tariff config, unparseable dates)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/factory"
	"github.com/warp/tutoring-billing/pkg/logger"
	"github.com/warp/tutoring-billing/roster"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        roster.Store
	Service      *roster.Service
	Scheduler    *BillingScheduler
	GroupFactory *factory.GroupFactory
	Log          *zap.Logger

	// Now is the clock used when a request carries no as_of.
	Now func() time.Time

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store roster.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	service := roster.NewService(store, log)

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})

	return &Handler{
		Store:        store,
		Service:      service,
		Scheduler:    NewBillingScheduler(store, service, log),
		GroupFactory: factory.NewGroupFactory(),
		Log:          log,
		Now:          time.Now,
		validate:     v,
	}
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns all groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list groups", err)
		return
	}

	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = h.toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup creates a group from a GroupJSON body. The tariff must
// resolve to a usable cycle config.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var gj factory.GroupJSON
	if err := json.NewDecoder(r.Body).Decode(&gj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.saveGroup(w, r, gj, http.StatusCreated)
}

// UpdateGroup replaces the name and tariff of an existing group.
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))
	if _, ok := h.loadGroup(w, r, id); !ok {
		return
	}

	var gj factory.GroupJSON
	if err := json.NewDecoder(r.Body).Decode(&gj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if gj.ID != "" && gj.ID != string(id) {
		writeError(w, http.StatusBadRequest, "Group ID cannot change", nil)
		return
	}
	gj.ID = string(id)
	h.saveGroup(w, r, gj, http.StatusOK)
}

func (h *Handler) saveGroup(w http.ResponseWriter, r *http.Request, gj factory.GroupJSON, status int) {
	group, err := h.GroupFactory.FromJSON(gj)
	if err != nil {
		h.fail(w, r, "Invalid group", err)
		return
	}
	if _, err := billing.ResolveConfig(group); err != nil {
		h.fail(w, r, "Invalid tariff", err)
		return
	}
	if err := h.Store.SaveGroup(r.Context(), group); err != nil {
		h.fail(w, r, "Failed to save group", err)
		return
	}
	writeJSON(w, status, h.toGroupDTO(group))
}

// GetGroup returns a single group.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := h.loadGroup(w, r, billing.GroupID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toGroupDTO(*group))
}

func (h *Handler) toGroupDTO(g billing.Group) GroupDTO {
	dto := GroupDTO{GroupJSON: h.GroupFactory.ToJSON(g)}
	cfg, err := billing.ResolveConfig(g)
	if err != nil {
		dto.ConfigError = err.Error()
	} else {
		dto.Config = &cfg
	}
	return dto
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// CreateStudent creates a student. An omitted ID is generated.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = "stu-" + uuid.NewString()
	}

	student := billing.Student{ID: billing.StudentID(req.ID), Name: req.Name}
	if err := h.Store.SaveStudent(r.Context(), student); err != nil {
		h.fail(w, r, "Failed to create student", err)
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

// GetStudent returns a single student.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := billing.StudentID(chi.URLParam(r, "id"))
	student, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get student", err)
		return
	}
	if student == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// ListEnrolled returns the students of a group.
func (h *Handler) ListEnrolled(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))
	if _, ok := h.loadGroup(w, r, id); !ok {
		return
	}
	students, err := h.Store.ListEnrolled(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to list students", err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// EnrollStudent links an existing student to the group.
func (h *Handler) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))
	var req EnrollRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Store.Enroll(r.Context(), id, billing.StudentID(req.StudentID)); err != nil {
		h.fail(w, r, "Failed to enroll student", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"group_id":   string(id),
		"student_id": req.StudentID,
	})
}

// =============================================================================
// SESSION & ATTENDANCE HANDLERS
// =============================================================================

// ListSessions returns the sessions of a group, ordered by date.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))
	if _, ok := h.loadGroup(w, r, id); !ok {
		return
	}
	sessions, err := h.Store.ListSessions(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []billing.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// CreateSession adds a session to a group.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	groupID := billing.GroupID(chi.URLParam(r, "id"))
	if _, ok := h.loadGroup(w, r, groupID); !ok {
		return
	}

	var req SessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseInstant("date", req.Date)
	if err != nil {
		h.fail(w, r, "Invalid session", err)
		return
	}
	if req.ID == "" {
		req.ID = "ses-" + uuid.NewString()
	}

	session := billing.SessionRecord{
		ID:      billing.SessionID(req.ID),
		GroupID: groupID,
		Date:    date,
		Status:  billing.SessionStatus(req.Status),
	}
	if err := h.Store.SaveSession(r.Context(), session); err != nil {
		h.fail(w, r, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// UpdateSession changes the date or status of a session. The group is kept.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id := billing.SessionID(chi.URLParam(r, "id"))
	session, ok := h.loadSession(w, r, id)
	if !ok {
		return
	}

	var req SessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseInstant("date", req.Date)
	if err != nil {
		h.fail(w, r, "Invalid session", err)
		return
	}

	session.Date = date
	session.Status = billing.SessionStatus(req.Status)
	if err := h.Store.SaveSession(r.Context(), *session); err != nil {
		h.fail(w, r, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// RecordAttendance upserts the mark of one student for a session. The
// student must be enrolled in the session's group.
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	id := billing.SessionID(chi.URLParam(r, "id"))
	session, ok := h.loadSession(w, r, id)
	if !ok {
		return
	}

	var req AttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	studentID := billing.StudentID(req.StudentID)
	if !h.requireEnrolled(w, r, session.GroupID, studentID) {
		return
	}

	mark := billing.AttendanceMark{
		SessionID: id,
		StudentID: studentID,
		Status:    billing.AttendanceStatus(req.Status),
	}
	if err := h.Store.RecordAttendance(r.Context(), mark); err != nil {
		h.fail(w, r, "Failed to record attendance", err)
		return
	}
	h.Log.Debug("attendance recorded",
		zap.String(logger.FieldSessionID, string(id)),
		zap.String(logger.FieldStudentID, string(studentID)),
		zap.String("attendance", req.Status),
	)
	writeJSON(w, http.StatusOK, mark)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns the ledger of a group, optionally for one student.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))
	if _, ok := h.loadGroup(w, r, id); !ok {
		return
	}
	entries, err := h.Store.ListPayments(r.Context(), id, billing.StudentID(r.URL.Query().Get("student_id")))
	if err != nil {
		h.fail(w, r, "Failed to list payments", err)
		return
	}
	if entries == nil {
		entries = []billing.PaymentLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// CreatePayment appends a ledger entry. There is no update: a payment that
// changes status is appended again under a new ID.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	groupID := billing.GroupID(chi.URLParam(r, "id"))
	if _, ok := h.loadGroup(w, r, groupID); !ok {
		return
	}

	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Amount.IsNegative() {
		h.fail(w, r, "Invalid payment", &billing.InvalidInputError{Field: "amount", Reason: "must not be negative"})
		return
	}
	due, err := parseInstant("due_date", req.DueDate)
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	var paid *time.Time
	if req.PaidDate != "" {
		t, err := parseInstant("paid_date", req.PaidDate)
		if err != nil {
			h.fail(w, r, "Invalid payment", err)
			return
		}
		paid = &t
	}

	studentID := billing.StudentID(req.StudentID)
	if !h.requireEnrolled(w, r, groupID, studentID) {
		return
	}
	if req.ID == "" {
		req.ID = "pay-" + uuid.NewString()
	}

	entry := billing.PaymentLedgerEntry{
		ID:        billing.PaymentID(req.ID),
		StudentID: studentID,
		GroupID:   groupID,
		Amount:    req.Amount,
		Type:      billing.PaymentType(req.Type),
		Status:    billing.PaymentStatus(req.Status),
		DueDate:   due,
		PaidDate:  paid,
	}
	if err := h.Store.AppendPayment(r.Context(), entry); err != nil {
		h.fail(w, r, "Failed to append payment", err)
		return
	}
	h.Log.Info("payment appended",
		zap.String(logger.FieldGroupID, string(groupID)),
		zap.String(logger.FieldStudentID, string(studentID)),
		zap.String(logger.FieldPaymentID, req.ID),
		zap.String("payment_status", req.Status),
	)
	writeJSON(w, http.StatusCreated, entry)
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

// GetStudentBilling computes the status of one enrolled student.
func (h *Handler) GetStudentBilling(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	groupID := billing.GroupID(chi.URLParam(r, "id"))
	studentID := billing.StudentID(chi.URLParam(r, "studentID"))

	status, err := h.Service.StudentStatus(r.Context(), groupID, studentID, asOf)
	if err != nil {
		h.fail(w, r, "Failed to compute billing status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetGroupBilling computes the status of every enrolled student. Students
// that fail carry their error instead of a status.
func (h *Handler) GetGroupBilling(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	groupID := billing.GroupID(chi.URLParam(r, "id"))

	report, err := h.Service.GroupReport(r.Context(), groupID, asOf)
	if err != nil {
		h.fail(w, r, "Failed to compute group billing", err)
		return
	}

	resp := GroupBillingResponse{
		GroupID:  groupID,
		AsOf:     report.AsOf,
		Students: make([]StudentBillingDTO, len(report.Entries)),
		Summary:  report.Summary,
	}
	for i, e := range report.Entries {
		resp.Students[i] = StudentBillingDTO{Student: e.Student, Billing: e.Status}
		if e.Err != nil {
			resp.Students[i].Error = &ErrorResponse{Error: errorCode(e.Err), Details: e.Err.Error()}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSnapshots returns the last persisted status per student of a group.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))
	if _, ok := h.loadGroup(w, r, id); !ok {
		return
	}
	snaps, err := h.Store.ListSnapshots(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = SnapshotDTO{ID: s.ID, StudentID: s.StudentID, ComputedAt: s.ComputedAt, Billing: s.Status}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Recompute runs the billing scheduler once, synchronously.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	result, err := h.Scheduler.RunOnce(r.Context())
	if err != nil {
		h.fail(w, r, "Recompute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadGroup(w http.ResponseWriter, r *http.Request, id billing.GroupID) (*billing.Group, bool) {
	group, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get group", err)
		return nil, false
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return nil, false
	}
	return group, true
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request, id billing.SessionID) (*billing.SessionRecord, bool) {
	session, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get session", err)
		return nil, false
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return nil, false
	}
	return session, true
}

func (h *Handler) requireEnrolled(w http.ResponseWriter, r *http.Request, groupID billing.GroupID, studentID billing.StudentID) bool {
	enrolled, err := h.Store.ListEnrolled(r.Context(), groupID)
	if err != nil {
		h.fail(w, r, "Failed to list students", err)
		return false
	}
	for _, s := range enrolled {
		if s.ID == studentID {
			return true
		}
	}
	writeError(w, http.StatusNotFound, "Student not enrolled in group", nil)
	return false
}

// decode reads a JSON body into v and validates its tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			err = &billing.InvalidInputError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q validation", fe.Tag())}
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// asOf reads the evaluation instant from ?as_of=, defaulting to h.Now().
func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return h.Now().UTC(), true
	}
	t, err := parseInstant("as_of", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

// parseInstant accepts YYYY-MM-DD (midnight UTC) or RFC 3339.
func parseInstant(field, v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, &billing.InvalidInputError{Field: field, Reason: fmt.Sprintf("unparseable date %q", v)}
}

// errorStatus maps the billing error taxonomy to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrDuplicatePayment):
		return http.StatusConflict
	case billing.IsClientError(err):
		return http.StatusBadRequest
	case billing.IsDataError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case billing.IsNotFound(err):
		return "not_found"
	case errors.Is(err, billing.ErrDuplicatePayment):
		return "duplicate_payment"
	case errors.Is(err, billing.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, billing.ErrConfig):
		return "invalid_config"
	case errors.Is(err, billing.ErrOrdering):
		return "invalid_date"
	default:
		return "internal"
	}
}

// fail writes err with the status its kind maps to. Server-side failures
// are logged; client errors are not.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error(message,
			zap.String(logger.FieldRequestID, requestID(r)),
			zap.Error(err),
		)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
