/*
store.go - Persistence contracts the engine depends on

PURPOSE:
  The engine never talks to a database directly. It reads and writes
  through these interfaces, and every mutation happens inside a unit of
  work obtained from Store.WithTx.

KEY INTERFACES:
  RequestStore: leave requests and their state
  EntryStore:   append-only ledger entries (balances are sums of entries)
  Outbox:       events written in the same unit of work as the change
  Directory:    identity source for employees
  Store:        all of the above plus WithTx

UNIT OF WORK:
  WithTx runs fn with exclusive write access and commits only if fn returns
  nil. A failed approval therefore leaves no debit, no status change and
  no event behind. Implementations serialize units of work, which is what
  gives the ledger its per-balance critical section and makes the second
  of two racing decisions observe the first.

IMPLEMENTATIONS:
  - leave/store/memory.go: in-memory, snapshot + rollback
  - store/sqlite/sqlite.go: SQLite, SQL transactions
*/
package leave

import (
	"context"
	"time"
)

// RequestStore owns the authoritative collection of leave requests.
type RequestStore interface {
	// Save inserts or replaces a request by ID.
	Save(ctx context.Context, r LeaveRequest) error

	// Get returns ErrRequestNotFound when the id is unknown.
	Get(ctx context.Context, id RequestID) (LeaveRequest, error)

	// ListByEmployee returns the employee's requests, oldest first.
	ListByEmployee(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error)

	// ListPending returns every pending request, oldest first.
	ListPending(ctx context.Context) ([]LeaveRequest, error)
}

// EntryStore persists ledger entries. Append-only: no update, no delete.
type EntryStore interface {
	// Append fails with ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, e Entry) error

	// Load returns entries for one balance in append order.
	Load(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID) ([]Entry, error)

	// Exists reports whether an entry with this idempotency key was appended.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// OUTBOX - Events committed with the change that caused them
// =============================================================================

type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventApproved  EventType = "approved"
	EventRejected  EventType = "rejected"
)

// Event is emitted for every request state change. Delivery is
// at-least-once; consumers deduplicate on DedupKey.
type Event struct {
	ID         string
	Type       EventType
	RequestID  RequestID
	EmployeeID EmployeeID
	ActorID    EmployeeID
	OccurredAt time.Time
}

func (e Event) DedupKey() string { return string(e.RequestID) + ":" + string(e.Type) }

type Outbox interface {
	Enqueue(ctx context.Context, e Event) error
}

// OutboxReader is the relay's side of the outbox.
type OutboxReader interface {
	// PendingEvents returns undelivered events, oldest first.
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// =============================================================================
// DIRECTORY - Identity source
// =============================================================================

type Directory interface {
	// Employee returns ErrEmployeeNotFound when the id is unknown.
	Employee(ctx context.Context, id EmployeeID) (Employee, error)
	SaveEmployee(ctx context.Context, e Employee) error
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// Tx is the view of the store inside one unit of work.
type Tx interface {
	Requests() RequestStore
	Entries() EntryStore
	Outbox() Outbox
}

// Store is the full persistence collaborator. Its own Requests/Entries are
// for reads outside a unit of work.
type Store interface {
	Tx
	Directory
	OutboxReader

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
