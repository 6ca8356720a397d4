/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave package's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Employee:
    EmployeeDTO, CreateEmployeeRequest

  Leave types and balances:
    LeaveTypeDTO, BalanceDTO, EntryDTO, AdjustmentRequest, AdjustmentResponse

  Requests:
    SubmitLeaveRequest, PreviewRequest, QuoteDTO, RejectRequest, LeaveRequestDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags. Handlers run them before
  calling the coordinator; business rules (overlap, balance, scope) stay in
  the leave package.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Team   string `json:"team,omitempty"`
	Office string `json:"office,omitempty"`
}

// CreateEmployeeRequest is the request to register an employee.
type CreateEmployeeRequest struct {
	ID     string `json:"id" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=200"`
	Role   string `json:"role" validate:"required,oneof=systemadmin admin supervisor agent"`
	Team   string `json:"team" validate:"max=100"`
	Office string `json:"office" validate:"max=100"`
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:     string(e.ID),
		Name:   e.Name,
		Role:   string(e.Role),
		Team:   e.Team,
		Office: e.Office,
	}
}

// =============================================================================
// LEAVE TYPES & BALANCES
// =============================================================================

type LeaveTypeDTO struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	AnnualEntitlementDays int    `json:"annual_entitlement_days"`
}

// BalanceDTO is one line of an employee's balance sheet.
type BalanceDTO struct {
	LeaveTypeID   string          `json:"leave_type_id"`
	LeaveTypeName string          `json:"leave_type_name"`
	Entitlement   decimal.Decimal `json:"entitlement"`
	Remaining     decimal.Decimal `json:"remaining"`
}

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Delta       decimal.Decimal `json:"delta"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// AdjustmentRequest credits days to an employee's balance.
type AdjustmentRequest struct {
	EmployeeID  string          `json:"employee_id" validate:"required"`
	LeaveTypeID string          `json:"leave_type_id" validate:"required"`
	Days        decimal.Decimal `json:"days"`
	Reason      string          `json:"reason" validate:"required,max=500"`
}

type AdjustmentResponse struct {
	EmployeeID  string          `json:"employee_id"`
	LeaveTypeID string          `json:"leave_type_id"`
	Balance     decimal.Decimal `json:"balance"`
}

func toLeaveTypeDTO(lt leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:                    string(lt.ID),
		Name:                  lt.Name,
		AnnualEntitlementDays: lt.AnnualEntitlementDays,
	}
}

func toEntryDTO(e leave.Entry) EntryDTO {
	return EntryDTO{
		ID:          string(e.ID),
		Type:        string(e.Type),
		Delta:       e.Delta,
		ReferenceID: e.ReferenceID,
		Reason:      e.Reason,
		CreatedBy:   string(e.CreatedBy),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SubmitLeaveRequest is the body of POST /api/leave-requests.
type SubmitLeaveRequest struct {
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"required,max=1000"`
}

// PreviewRequest asks whether a request would fit the actor's balance.
type PreviewRequest struct {
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type QuoteDTO struct {
	LeaveTypeID string          `json:"leave_type_id"`
	Days        int             `json:"days"`
	Available   decimal.Decimal `json:"available"`
	Sufficient  bool            `json:"sufficient"`
}

// RejectRequest is the body of POST /api/leave-requests/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// LeaveRequestDTO represents a leave request in API responses.
type LeaveRequestDTO struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employee_id"`
	LeaveTypeID     string  `json:"leave_type_id"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	Days            int     `json:"days"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	AppliedAt       string  `json:"applied_at"`
	DecidedBy       *string `json:"decided_by,omitempty"`
	DecidedAt       *string `json:"decided_at,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	UpdatedAt       string  `json:"updated_at"`
}

func toLeaveRequestDTO(r leave.LeaveRequest) LeaveRequestDTO {
	dto := LeaveRequestDTO{
		ID:              string(r.ID),
		EmployeeID:      string(r.EmployeeID),
		LeaveTypeID:     string(r.LeaveTypeID),
		StartDate:       r.Start.String(),
		EndDate:         r.End.String(),
		Days:            r.Days,
		Reason:          r.Reason,
		Status:          string(r.Status),
		AppliedAt:       r.AppliedAt.Format(time.RFC3339),
		RejectionReason: r.RejectionReason,
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
	if r.DecidedBy != nil {
		by := string(*r.DecidedBy)
		dto.DecidedBy = &by
	}
	if r.DecidedAt != nil {
		at := r.DecidedAt.Format(time.RFC3339)
		dto.DecidedAt = &at
	}
	return dto
}

func toLeaveRequestDTOs(reqs []leave.LeaveRequest) []LeaveRequestDTO {
	dtos := make([]LeaveRequestDTO, len(reqs))
	for i, r := range reqs {
		dtos[i] = toLeaveRequestDTO(r)
	}
	return dtos
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// COMMON
// =============================================================================

type HealthResponse struct {
	Status string `json:"status"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
