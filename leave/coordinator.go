/*
coordinator.go - The entry point callers use

PURPOSE:
  Coordinator combines the gate, the state machine, the ledger and the
  store into the operations the product exposes. Every mutation runs in a
  single unit of work:

    RequestLeave:  CanSubmit -> Submit -> save -> enqueue "submitted"
    DecideLeave:   resolve team -> load -> CanDecide -> Decide (debit) -> save -> enqueue

  If any step fails the unit of work rolls back: no request, no debit, no
  event. Events reach the outside world through the outbox relay
  (messaging package), never directly from here.

ACTORS:
  The acting employee is always an explicit parameter. The coordinator
  does not look up sessions or headers.

SEE ALSO:
  - authz.go: Gate
  - statemachine.go: transitions
  - messaging/relay.go: outbox delivery
*/
package leave

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Coordinator struct {
	Store   Store
	Catalog *Catalog
	Ledger  *Ledger
	Machine *StateMachine
	Gate    Gate
	Logger  *zap.Logger
}

// NewCoordinator wires the engine with default clock and id generation.
// The logger is optional and defaults to the global zap logger.
func NewCoordinator(store Store, catalog *Catalog, logger ...*zap.Logger) *Coordinator {
	log := zap.L().Named("leave.coordinator")
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}
	ledger := NewLedger(catalog)
	return &Coordinator{
		Store:   store,
		Catalog: catalog,
		Ledger:  ledger,
		Machine: NewStateMachine(catalog, ledger),
		Logger:  log,
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// RequestLeave files a pending request for actor. Balance is not checked
// here; use Preview for form feedback.
func (c *Coordinator) RequestLeave(
	ctx context.Context,
	actor Employee,
	leaveTypeID LeaveTypeID,
	start, end Date,
	reason string,
) (LeaveRequest, error) {
	log := c.Logger.With(
		zap.String("actor_id", string(actor.ID)),
		zap.String("leave_type", string(leaveTypeID)),
		zap.String("range", DateRange{Start: start, End: end}.String()),
	)
	log.Debug("request leave")

	if !c.Gate.CanSubmit(actor, actor.ID) {
		log.Warn("submit denied")
		return LeaveRequest{}, ErrUnauthorized
	}

	var created LeaveRequest
	err := c.Store.WithTx(ctx, func(tx Tx) error {
		req, err := c.Machine.Submit(ctx, tx, actor, leaveTypeID, start, end, reason)
		if err != nil {
			return err
		}
		if err := tx.Requests().Save(ctx, req); err != nil {
			return fmt.Errorf("failed to save request: %w", err)
		}
		if err := c.enqueue(ctx, tx, EventSubmitted, req, actor.ID); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		c.logFailure(log, "request leave failed", err)
		return LeaveRequest{}, err
	}

	log.Info("leave requested",
		zap.String("request_id", string(created.ID)),
		zap.Int("days", created.Days),
	)
	return created, nil
}

// DecideLeave approves or rejects a pending request. Supervisor scope is
// checked against the requester's current team in the directory. Two
// decisions racing on the same request are serialized by the store; the
// loser sees ErrAlreadyDecided.
func (c *Coordinator) DecideLeave(
	ctx context.Context,
	actor Employee,
	requestID RequestID,
	action Action,
	rejectionReason string,
) (LeaveRequest, error) {
	log := c.Logger.With(
		zap.String("actor_id", string(actor.ID)),
		zap.String("request_id", string(requestID)),
		zap.String("action", string(action)),
	)
	log.Debug("decide leave")

	// The directory is read outside the unit of work.
	current, err := c.Store.Requests().Get(ctx, requestID)
	if err != nil {
		c.logFailure(log, "decide leave failed", err)
		return LeaveRequest{}, err
	}
	team, err := c.currentTeam(ctx, current)
	if err != nil {
		c.logFailure(log, "decide leave failed", err)
		return LeaveRequest{}, err
	}

	var decided LeaveRequest
	err = c.Store.WithTx(ctx, func(tx Tx) error {
		req, err := tx.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		gated := req
		gated.Team = team
		if !c.Gate.CanDecide(actor, gated) {
			return ErrUnauthorized
		}
		next, err := c.Machine.Decide(ctx, tx, req, action, actor.ID, rejectionReason)
		if err != nil {
			return err
		}
		if err := tx.Requests().Save(ctx, next); err != nil {
			return fmt.Errorf("failed to save request: %w", err)
		}
		eventType := EventApproved
		if next.Status == StatusRejected {
			eventType = EventRejected
		}
		if err := c.enqueue(ctx, tx, eventType, next, actor.ID); err != nil {
			return err
		}
		decided = next
		return nil
	})
	if err != nil {
		c.logFailure(log, "decide leave failed", err)
		return LeaveRequest{}, err
	}

	log.Info("leave decided", zap.String("status", string(decided.Status)))
	return decided, nil
}

// currentTeam is the requester's team as the directory has it now. An
// employee removed from the directory keeps the team recorded at submission.
func (c *Coordinator) currentTeam(ctx context.Context, req LeaveRequest) (string, error) {
	emp, err := c.Store.Employee(ctx, req.EmployeeID)
	if IsNotFound(err) {
		return req.Team, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve requester: %w", err)
	}
	return emp.Team, nil
}

func (c *Coordinator) enqueue(ctx context.Context, tx Tx, t EventType, req LeaveRequest, actor EmployeeID) error {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       t,
		RequestID:  req.ID,
		EmployeeID: req.EmployeeID,
		ActorID:    actor,
		OccurredAt: req.UpdatedAt,
	}
	if err := tx.Outbox().Enqueue(ctx, ev); err != nil {
		return fmt.Errorf("failed to enqueue %s event: %w", t, err)
	}
	return nil
}

// logFailure logs business denials at Warn and everything else at Error.
func (c *Coordinator) logFailure(log *zap.Logger, msg string, err error) {
	if IsClientError(err) {
		log.Warn(msg, zap.String("code", string(CodeOf(err))), zap.Error(err))
		return
	}
	log.Error(msg, zap.Error(err))
}

// =============================================================================
// PREVIEW - Advisory balance check for the request form
// =============================================================================

// Quote is the advisory answer to "would this request fit my balance right
// now?". It is not a reservation: approval re-checks.
type Quote struct {
	LeaveTypeID LeaveTypeID
	Days        int
	Available   decimal.Decimal
	Sufficient  bool
}

func (c *Coordinator) Preview(ctx context.Context, actor Employee, leaveTypeID LeaveTypeID, start, end Date) (Quote, error) {
	if !c.Gate.CanSubmit(actor, actor.ID) {
		return Quote{}, ErrUnauthorized
	}
	r := DateRange{Start: start, End: end}
	if !r.Valid() {
		return Quote{}, ErrInvalidDateRange
	}

	var available decimal.Decimal
	err := c.Store.WithTx(ctx, func(tx Tx) error {
		bal, err := c.Ledger.Balance(ctx, tx.Entries(), actor.ID, leaveTypeID)
		if err != nil {
			return err
		}
		available = bal
		return nil
	})
	if err != nil {
		return Quote{}, err
	}

	days := r.Days()
	return Quote{
		LeaveTypeID: leaveTypeID,
		Days:        days,
		Available:   available,
		Sufficient:  available.GreaterThanOrEqual(decimal.NewFromInt(int64(days))),
	}, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// BalanceView is one line of an employee's balance sheet.
type BalanceView struct {
	LeaveType   LeaveType
	Entitlement decimal.Decimal
	Remaining   decimal.Decimal
}

// Balances returns the remaining days for every catalog leave type, in
// catalog order.
func (c *Coordinator) Balances(ctx context.Context, actor Employee, employeeID EmployeeID) ([]BalanceView, error) {
	employee, err := c.Store.Employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if !c.Gate.CanViewBalances(actor, employee) {
		return nil, ErrUnauthorized
	}

	types := c.Catalog.List()
	out := make([]BalanceView, 0, len(types))
	err = c.Store.WithTx(ctx, func(tx Tx) error {
		for _, lt := range types {
			bal, err := c.Ledger.Balance(ctx, tx.Entries(), employee.ID, lt.ID)
			if err != nil {
				return err
			}
			out = append(out, BalanceView{LeaveType: lt, Entitlement: lt.Entitlement(), Remaining: bal})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MyRequests lists the actor's own requests, oldest first.
func (c *Coordinator) MyRequests(ctx context.Context, actor Employee) ([]LeaveRequest, error) {
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	return c.Store.Requests().ListByEmployee(ctx, actor.ID)
}

// PendingForApprover returns the pending requests actor may decide, ordered
// by submission time. Agents always get an empty list.
func (c *Coordinator) PendingForApprover(ctx context.Context, actor Employee) ([]LeaveRequest, error) {
	if !actor.Role.IsApprover() {
		return []LeaveRequest{}, nil
	}
	pending, err := c.Store.Requests().ListPending(ctx)
	if err != nil {
		return nil, err
	}
	employees, err := c.Store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	teams := make(map[EmployeeID]string, len(employees))
	for _, e := range employees {
		teams[e.ID] = e.Team
	}

	out := make([]LeaveRequest, 0, len(pending))
	for _, req := range pending {
		gated := req
		if team, ok := teams[req.EmployeeID]; ok {
			gated.Team = team
		}
		if c.Gate.CanDecide(actor, gated) {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

// AdjustBalance credits days to an employee's balance and returns the new
// remaining amount. Only administrators may adjust.
func (c *Coordinator) AdjustBalance(
	ctx context.Context,
	actor Employee,
	employeeID EmployeeID,
	leaveTypeID LeaveTypeID,
	days decimal.Decimal,
	reason string,
) (decimal.Decimal, error) {
	log := c.Logger.With(
		zap.String("actor_id", string(actor.ID)),
		zap.String("employee_id", string(employeeID)),
		zap.String("leave_type", string(leaveTypeID)),
		zap.String("days", days.String()),
	)

	if !c.Gate.CanAdjust(actor) {
		log.Warn("adjustment denied")
		return decimal.Zero, ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return decimal.Zero, ErrEmptyReason
	}
	if _, err := c.Store.Employee(ctx, employeeID); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := c.Store.WithTx(ctx, func(tx Tx) error {
		ref := "adjustment:" + uuid.NewString()
		if err := c.Ledger.Credit(ctx, tx.Entries(), employeeID, leaveTypeID, days, ref, actor.ID, reason); err != nil {
			return err
		}
		bal, err := c.Ledger.Balance(ctx, tx.Entries(), employeeID, leaveTypeID)
		if err != nil {
			return err
		}
		balance = bal
		return nil
	})
	if err != nil {
		c.logFailure(log, "adjustment failed", err)
		return decimal.Zero, err
	}

	log.Info("balance adjusted", zap.String("balance", balance.String()))
	return balance, nil
}

// RegisterEmployee adds or replaces a directory entry.
func (c *Coordinator) RegisterEmployee(ctx context.Context, actor Employee, e Employee) (Employee, error) {
	if !c.Gate.CanManageEmployees(actor) {
		return Employee{}, ErrUnauthorized
	}
	e.ID = EmployeeID(strings.TrimSpace(string(e.ID)))
	if e.ID == "" {
		return Employee{}, newError(CodeValidation, "employee id is required")
	}
	role, ok := ParseRole(string(e.Role))
	if !ok {
		return Employee{}, newError(CodeValidation, fmt.Sprintf("unknown role %q", e.Role))
	}
	e.Role = role
	if err := c.Store.SaveEmployee(ctx, e); err != nil {
		return Employee{}, fmt.Errorf("failed to save employee: %w", err)
	}
	c.Logger.Info("employee registered",
		zap.String("actor_id", string(actor.ID)),
		zap.String("employee_id", string(e.ID)),
		zap.String("role", string(e.Role)),
	)
	return e, nil
}

// History returns the ledger entries behind one balance.
func (c *Coordinator) History(ctx context.Context, actor Employee, employeeID EmployeeID, leaveTypeID LeaveTypeID) ([]Entry, error) {
	employee, err := c.Store.Employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if !c.Gate.CanViewBalances(actor, employee) {
		return nil, ErrUnauthorized
	}
	return c.Ledger.History(ctx, c.Store.Entries(), employeeID, leaveTypeID)
}
