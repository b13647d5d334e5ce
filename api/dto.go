/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Billing statuses are
  returned as billing.StudentBillingStatus directly; only requests and the
  envelopes around them live here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Groups:     GroupDTO (wraps factory.GroupJSON)
  Students:   CreateStudentRequest, EnrollRequest
  Sessions:   SessionRequest
  Attendance: AttendanceRequest
  Payments:   PaymentRequest
  Billing:    GroupBillingResponse, StudentBillingDTO, SnapshotDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator/v10 tags, checked by Handler.decode.
  Domain rules (tariff semantics, date ordering) stay in the billing engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/group.go: GroupJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/factory"
	"github.com/warp/tutoring-billing/roster"
)

// =============================================================================
// GROUPS & STUDENTS
// =============================================================================

// GroupDTO is a stored group plus its resolved cycle config. ConfigError is
// set instead of Config when the stored tariff cannot be resolved.
type GroupDTO struct {
	factory.GroupJSON
	Config      *billing.CycleConfig `json:"config,omitempty"`
	ConfigError string               `json:"config_error,omitempty"`
}

type CreateStudentRequest struct {
	ID   string `json:"id" validate:"omitempty,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// =============================================================================
// SESSIONS & ATTENDANCE
// =============================================================================

// SessionRequest creates a session or moves it to a new status. Date is
// YYYY-MM-DD or RFC 3339.
type SessionRequest struct {
	ID     string `json:"id" validate:"omitempty,max=64"`
	Date   string `json:"date" validate:"required"`
	Status string `json:"status" validate:"required,oneof=SCHEDULED COMPLETED CANCELLED"`
}

type AttendanceRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=PRESENT ABSENT LATE"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRequest appends a ledger entry. An omitted ID is generated.
type PaymentRequest struct {
	ID        string          `json:"id" validate:"omitempty,max=64"`
	StudentID string          `json:"student_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type" validate:"required,oneof=SESSION_CYCLE REGISTRATION"`
	Status    string          `json:"status" validate:"required,oneof=PENDING PAID CANCELLED"`
	DueDate   string          `json:"due_date" validate:"required"`
	PaidDate  string          `json:"paid_date,omitempty"`
}

// =============================================================================
// BILLING
// =============================================================================

// StudentBillingDTO is one roster line. Exactly one of Billing and Error
// is set.
type StudentBillingDTO struct {
	Student billing.Student               `json:"student"`
	Billing *billing.StudentBillingStatus `json:"billing,omitempty"`
	Error   *ErrorResponse                `json:"error,omitempty"`
}

type GroupBillingResponse struct {
	GroupID  billing.GroupID     `json:"group_id"`
	AsOf     time.Time           `json:"as_of"`
	Students []StudentBillingDTO `json:"students"`
	Summary  roster.Summary      `json:"summary"`
}

type SnapshotDTO struct {
	ID         string                       `json:"id"`
	StudentID  billing.StudentID            `json:"student_id"`
	ComputedAt time.Time                    `json:"computed_at"`
	Billing    billing.StudentBillingStatus `json:"billing"`
}

// RecomputeResponse reports a scheduler run triggered by hand.
type RecomputeResponse struct {
	Groups    int       `json:"groups"`
	Snapshots int       `json:"snapshots"`
	Failed    int       `json:"failed"`
	Due       int       `json:"due"`
	Overdue   int       `json:"overdue"`
	RanAt     time.Time `json:"ran_at"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	GroupID     string `json:"group_id"`
	StudentID   string `json:"student_id"`
	Expected    string `json:"expected_status"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
