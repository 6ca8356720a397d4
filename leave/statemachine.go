/*
statemachine.go - Leave request lifecycle

PURPOSE:
  Validates and applies the two transitions a leave request can make.

STATES:
  ┌─────────┐   approve (debit days)   ┌──────────┐
  │ pending │ ───────────────────────▶ │ approved │
  └─────────┘                          └──────────┘
       │        reject (reason)        ┌──────────┐
       └─────────────────────────────▶ │ rejected │
                                       └──────────┘
  approved and rejected are terminal.

SUBMIT CHECKS:
  1. leave type exists
  2. start <= end (days = inclusive count)
  3. reason is not blank
  4. no pending/approved request of the same employee shares a day,
     whatever its leave type

  Submission never touches the ledger. Whether the balance covers the
  request is only advisory at this point (see Coordinator.Preview); the
  real check happens on approval because other approvals can land in
  between.

DECIDE:
  Works on a copy. If the debit fails the caller still holds the untouched
  pending request and nothing was written.

SEE ALSO:
  - ledger.go: ReserveOrDebit
  - coordinator.go: wraps both operations in a unit of work
*/
package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type StateMachine struct {
	Catalog *Catalog
	Ledger  *Ledger
	Now     func() time.Time
	NewID   func() RequestID
}

func NewStateMachine(catalog *Catalog, ledger *Ledger) *StateMachine {
	return &StateMachine{
		Catalog: catalog,
		Ledger:  ledger,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   func() RequestID { return RequestID(uuid.NewString()) },
	}
}

// Submit creates a pending request for employee. The request is returned,
// not saved; persisting it is the caller's job.
func (sm *StateMachine) Submit(
	ctx context.Context,
	tx Tx,
	employee Employee,
	leaveTypeID LeaveTypeID,
	start, end Date,
	reason string,
) (LeaveRequest, error) {
	if _, err := sm.Catalog.Get(leaveTypeID); err != nil {
		return LeaveRequest{}, err
	}

	requested := DateRange{Start: start, End: end}
	if !requested.Valid() {
		return LeaveRequest{}, ErrInvalidDateRange
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return LeaveRequest{}, ErrEmptyReason
	}

	existing, err := tx.Requests().ListByEmployee(ctx, employee.ID)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("failed to load existing requests: %w", err)
	}
	for _, other := range existing {
		if !other.Blocks() {
			continue
		}
		if requested.Overlaps(other.Range()) {
			return LeaveRequest{}, &OverlapError{
				EmployeeID:     employee.ID,
				Requested:      requested,
				ExistingID:     other.ID,
				ExistingRange:  other.Range(),
				ExistingStatus: other.Status,
			}
		}
	}

	now := sm.Now()
	return LeaveRequest{
		ID:          sm.NewID(),
		EmployeeID:  employee.ID,
		LeaveTypeID: leaveTypeID,
		Team:        employee.Team,
		Office:      employee.Office,
		Start:       start,
		End:         end,
		Days:        requested.Days(),
		Reason:      reason,
		Status:      StatusPending,
		AppliedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Decide applies action to a pending request. On approval the ledger is
// debited through tx; on failure the returned error explains why and req is
// unchanged.
func (sm *StateMachine) Decide(
	ctx context.Context,
	tx Tx,
	req LeaveRequest,
	action Action,
	decidedBy EmployeeID,
	rejectionReason string,
) (LeaveRequest, error) {
	if req.Status.IsTerminal() {
		return req, fmt.Errorf("%w: request %s is %s", ErrAlreadyDecided, req.ID, req.Status)
	}

	next := req.clone()
	now := sm.Now()

	switch action {
	case ActionApprove:
		if err := sm.Ledger.ReserveOrDebit(ctx, tx.Entries(), req.EmployeeID, req.LeaveTypeID, req.Days, req.ID, decidedBy); err != nil {
			return req, err
		}
		next.Status = StatusApproved
		next.RejectionReason = nil

	case ActionReject:
		reason := strings.TrimSpace(rejectionReason)
		if reason == "" {
			return req, ErrMissingRejectionReason
		}
		next.Status = StatusRejected
		next.RejectionReason = &reason

	default:
		return req, ErrInvalidAction
	}

	next.DecidedBy = &decidedBy
	next.DecidedAt = &now
	next.UpdatedAt = now
	return next, nil
}
