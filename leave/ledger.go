/*
ledger.go - Per-employee, per-leave-type balance ledger

PURPOSE:
  Balances are never stored as a mutable number. They are the sum of an
  append-only list of entries:

    grant   +entitlement   written the first time a balance is referenced
    debit   -days          written when a request is approved
    credit  +days          administrative credit or reversal

  This keeps every balance explainable ("why do I have 3 days?" -> list
  the entries) and makes debits idempotent per request.

INVARIANT:
  The running sum never goes below zero. ReserveOrDebit checks and appends
  inside the caller's unit of work, so no concurrent debit can slip in
  between the check and the write.

EXAMPLE:
  casual entitlement 5
  [grant +5]                 -> 5
  [grant +5, debit -2]       -> 3   (request r-1 approved)
  debit -4 for r-2           -> InsufficientBalanceError, still 3

SEE ALSO:
  - statemachine.go: the only caller of ReserveOrDebit
  - store.go: EntryStore
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger computes and mutates balances on top of an EntryStore. It holds no
// state of its own; the EntryStore passed to each call decides which unit of
// work the operation belongs to.
type Ledger struct {
	Catalog *Catalog
	Now     func() time.Time
}

func NewLedger(catalog *Catalog) *Ledger {
	return &Ledger{Catalog: catalog, Now: func() time.Time { return time.Now().UTC() }}
}

func grantKey(emp EmployeeID, lt LeaveTypeID) string { return fmt.Sprintf("grant:%s:%s", emp, lt) }
func debitKey(ref string) string { return "debit:" + ref }

// Balance returns remaining days, materializing the balance at the full
// entitlement if it has never been referenced. Calling it again without an
// intervening mutation returns the same value.
func (l *Ledger) Balance(ctx context.Context, entries EntryStore, emp EmployeeID, leaveTypeID LeaveTypeID) (decimal.Decimal, error) {
	txs, err := l.materialize(ctx, entries, emp, leaveTypeID)
	if err != nil {
		return decimal.Zero, err
	}
	return sum(txs), nil
}

// ReserveOrDebit subtracts days from the balance, or fails with an
// InsufficientBalanceError and leaves the balance unchanged. A request is
// debited at most once: repeating the call for the same ref is a no-op.
func (l *Ledger) ReserveOrDebit(ctx context.Context, entries EntryStore, emp EmployeeID, leaveTypeID LeaveTypeID, days int, ref RequestID, actor EmployeeID) error {
	if days <= 0 {
		return ErrInvalidAmount
	}
	done, err := entries.Exists(ctx, debitKey(string(ref)))
	if err != nil {
		return fmt.Errorf("failed to check debit: %w", err)
	}
	if done {
		return nil
	}
	txs, err := l.materialize(ctx, entries, emp, leaveTypeID)
	if err != nil {
		return err
	}

	available := sum(txs)
	requested := decimal.NewFromInt(int64(days))
	if available.LessThan(requested) {
		return &InsufficientBalanceError{
			EmployeeID:  emp,
			LeaveTypeID: leaveTypeID,
			Available:   available,
			Requested:   requested,
			Shortfall:   requested.Sub(available),
		}
	}

	return entries.Append(ctx, Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     emp,
		LeaveTypeID:    leaveTypeID,
		Delta:          requested.Neg(),
		Type:           EntryDebit,
		ReferenceID:    string(ref),
		Reason:         "leave request approved",
		IdempotencyKey: debitKey(string(ref)),
		CreatedBy:      actor,
		CreatedAt:      l.Now(),
	})
}

// Credit adds days back. The entitlement is not a cap: a balance can exceed
// it through explicit credits.
func (l *Ledger) Credit(ctx context.Context, entries EntryStore, emp EmployeeID, leaveTypeID LeaveTypeID, days decimal.Decimal, ref string, actor EmployeeID, reason string) error {
	if !days.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := l.materialize(ctx, entries, emp, leaveTypeID); err != nil {
		return err
	}
	return entries.Append(ctx, Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     emp,
		LeaveTypeID:    leaveTypeID,
		Delta:          days,
		Type:           EntryCredit,
		ReferenceID:    ref,
		Reason:         reason,
		IdempotencyKey: "credit:" + ref,
		CreatedBy:      actor,
		CreatedAt:      l.Now(),
	})
}

// History returns the entries behind a balance without materializing it.
func (l *Ledger) History(ctx context.Context, entries EntryStore, emp EmployeeID, leaveTypeID LeaveTypeID) ([]Entry, error) {
	if _, err := l.Catalog.Get(leaveTypeID); err != nil {
		return nil, err
	}
	return entries.Load(ctx, emp, leaveTypeID)
}

func (l *Ledger) materialize(ctx context.Context, entries EntryStore, emp EmployeeID, leaveTypeID LeaveTypeID) ([]Entry, error) {
	lt, err := l.Catalog.Get(leaveTypeID)
	if err != nil {
		return nil, err
	}
	txs, err := entries.Load(ctx, emp, leaveTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	if len(txs) > 0 {
		return txs, nil
	}

	grant := Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     emp,
		LeaveTypeID:    leaveTypeID,
		Delta:          lt.Entitlement(),
		Type:           EntryGrant,
		Reason:         "annual entitlement",
		IdempotencyKey: grantKey(emp, leaveTypeID),
		CreatedBy:      "system",
		CreatedAt:      l.Now(),
	}
	if err := entries.Append(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to materialize balance: %w", err)
	}
	return []Entry{grant}, nil
}

func sum(txs []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Delta)
	}
	return total
}
