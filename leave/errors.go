/*
errors.go - Error taxonomy for the leave engine

PURPOSE:
  Every failure the engine reports is one of a handful of kinds, so callers
  can decide how to surface it without string matching:

    validation            bad input, fix and resubmit
    unauthorized          actor lacks permission, never retried
    conflict              overlapping or already-decided request, refresh state
    insufficient_balance  business-rule denial, request stays pending
    not_found             unknown request, leave type or employee

USAGE:
  Sentinels work with errors.Is. Structured errors carry detail and unwrap
  to their sentinel:

    var overlap *leave.OverlapError
    if errors.As(err, &overlap) {
        fmt.Println("conflicts with", overlap.ExistingID)
    }

    switch leave.CodeOf(err) {
    case leave.CodeValidation: ...
    }

SEE ALSO:
  - api/handlers.go: maps codes to HTTP status
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Code string

const (
	CodeValidation          Code = "validation"
	CodeUnauthorized        Code = "unauthorized"
	CodeConflict            Code = "conflict"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeNotFound            Code = "not_found"
	CodeInternal            Code = "internal"
)

// Error is a classified engine error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidDateRange       = newError(CodeValidation, "end date must be on or after start date")
	ErrEmptyReason            = newError(CodeValidation, "reason is required")
	ErrMissingRejectionReason = newError(CodeValidation, "rejection reason is required when rejecting")
	ErrInvalidAction          = newError(CodeValidation, "action must be approve or reject")
	ErrInvalidAmount          = newError(CodeValidation, "days must be positive")

	ErrUnauthorized = newError(CodeUnauthorized, "actor is not allowed to perform this operation")

	ErrOverlappingRequest      = newError(CodeConflict, "leave already requested for an overlapping period")
	ErrAlreadyDecided          = newError(CodeConflict, "leave request has already been decided")
	ErrDuplicateIdempotencyKey = newError(CodeConflict, "duplicate idempotency key")

	ErrInsufficientBalance = newError(CodeInsufficientBalance, "insufficient leave balance")

	ErrRequestNotFound   = newError(CodeNotFound, "leave request not found")
	ErrLeaveTypeNotFound = newError(CodeNotFound, "leave type not found")
	ErrEmployeeNotFound  = newError(CodeNotFound, "employee not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverlapError names the existing request whose dates collide with a new one.
type OverlapError struct {
	EmployeeID     EmployeeID
	Requested      DateRange
	ExistingID     RequestID
	ExistingRange  DateRange
	ExistingStatus Status
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("leave %s overlaps %s request %s (%s)",
		e.Requested, e.ExistingStatus, e.ExistingID, e.ExistingRange)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingRequest }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Available   decimal.Decimal
	Requested   decimal.Decimal
	Shortfall   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %s, requested %s, shortfall %s",
		e.LeaveTypeID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// CodeOf classifies err. Unclassified errors (storage, transport) are internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsClientError returns true if the caller can act on the error by changing
// input or refreshing state.
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeUnauthorized, CodeConflict, CodeInsufficientBalance, CodeNotFound:
		return true
	default:
		return false
	}
}

func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }
