/*
Package leave provides the leave lifecycle engine.

PURPOSE:
  This package owns the rules that matter for leave: balances never go
  negative, requests move through a fixed set of states, only the right
  roles may decide a request, and an employee cannot be on two kinds of
  leave at the same time. Everything else (HTTP, storage engines, event
  delivery) plugs in through the interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee / Role: the acting identity, supplied by a Directory
  - LeaveType: catalog entry with an annual entitlement
  - LeaveRequest: a request and its decision state
  - Entry: an immutable ledger line (grant, debit, credit)

INVARIANTS:
  - remaining days >= 0 for every balance
  - days = (end - start) + 1 >= 1
  - pending -> approved | rejected only; both terminal
  - approving debits exactly Days; rejecting and submitting debit nothing
  - no overlapping pending/approved requests per employee, across types
  - nobody decides their own request

SEE ALSO:
  - statemachine.go: submit / decide transitions
  - ledger.go: balance materialization and debits
  - authz.go: who may do what
  - coordinator.go: the facade callers use
*/
package leave

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type RequestID string
type EntryID string

// =============================================================================
// EMPLOYEE - Owned by the identity system, read-only here
// =============================================================================

type Role string

const (
	RoleSystemAdmin Role = "systemadmin"
	RoleAdmin       Role = "admin"
	RoleSupervisor  Role = "supervisor"
	RoleAgent       Role = "agent"
)

// ParseRole maps a role string onto a known Role. The second result is false
// for anything outside the four product roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSystemAdmin, RoleAdmin, RoleSupervisor, RoleAgent:
		return r, true
	default:
		return "", false
	}
}

func (r Role) IsAdministrative() bool { return r == RoleSystemAdmin || r == RoleAdmin }
func (r Role) IsApprover() bool { return r.IsAdministrative() || r == RoleSupervisor }

type Employee struct {
	ID     EmployeeID
	Name   string
	Role   Role
	Team   string // optional
	Office string // optional
}

// =============================================================================
// LEAVE TYPE - Static reference data
// =============================================================================

type LeaveType struct {
	ID                    LeaveTypeID
	Name                  string
	AnnualEntitlementDays int
}

// Entitlement returns the annual entitlement as a decimal day count.
func (lt LeaveType) Entitlement() decimal.Decimal {
	return decimal.NewFromInt(int64(lt.AnnualEntitlementDays))
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsTerminal() bool { return s == StatusApproved || s == StatusRejected }

// Action is what an approver does to a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type LeaveRequest struct {
	ID          RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID

	// Requester's team and office at submission time. The gate checks
	// supervisor scope against these.
	Team   string
	Office string

	Start Date
	End   Date
	Days  int

	Reason string
	Status Status

	AppliedAt       time.Time
	DecidedBy       *EmployeeID
	DecidedAt       *time.Time
	RejectionReason *string
	UpdatedAt       time.Time
}

// Range returns the inclusive calendar range the request covers.
func (r LeaveRequest) Range() DateRange { return DateRange{Start: r.Start, End: r.End} }

// Blocks reports whether the request still occupies its dates for overlap
// purposes.
func (r LeaveRequest) Blocks() bool {
	return r.Status == StatusPending || r.Status == StatusApproved
}

func (r LeaveRequest) clone() LeaveRequest {
	c := r
	if r.DecidedBy != nil {
		v := *r.DecidedBy
		c.DecidedBy = &v
	}
	if r.DecidedAt != nil {
		v := *r.DecidedAt
		c.DecidedAt = &v
	}
	if r.RejectionReason != nil {
		v := *r.RejectionReason
		c.RejectionReason = &v
	}
	return c
}

// =============================================================================
// LEDGER ENTRY - Append-only balance change
// =============================================================================

type EntryType string

const (
	EntryGrant  EntryType = "grant"  // entitlement materialized on first reference
	EntryDebit  EntryType = "debit"  // approved request
	EntryCredit EntryType = "credit" // administrative credit or reversal
)

type Entry struct {
	ID             EntryID
	EmployeeID     EmployeeID
	LeaveTypeID    LeaveTypeID
	Delta          decimal.Decimal
	Type           EntryType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	CreatedBy      EmployeeID
	CreatedAt      time.Time
}

// BalanceKey identifies one employee's balance for one leave type.
type BalanceKey struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
}
