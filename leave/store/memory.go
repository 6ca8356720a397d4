// Package store provides in-process leave.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps guarded by one mutex. WithTx holds the
// write lock for the whole unit of work, so units of work never interleave.
type Memory struct {
	mu sync.RWMutex

	requests    map[leave.RequestID]leave.LeaveRequest
	entries     map[leave.BalanceKey][]leave.Entry
	idempotency map[string]bool
	outbox      []outboxRecord
	employees   map[leave.EmployeeID]leave.Employee
}

type outboxRecord struct {
	event     leave.Event
	delivered bool
	attempts  int
	lastError string
}

func NewMemory() *Memory {
	return &Memory{
		requests:    make(map[leave.RequestID]leave.LeaveRequest),
		entries:     make(map[leave.BalanceKey][]leave.Entry),
		idempotency: make(map[string]bool),
		employees:   make(map[leave.EmployeeID]leave.Employee),
	}
}

var _ leave.Store = (*Memory)(nil)

// Requests, Entries and Outbox outside a unit of work take the lock per call.
func (m *Memory) Requests() leave.RequestStore { return requestView{m: m} }
func (m *Memory) Entries() leave.EntryStore { return entryView{m: m} }
func (m *Memory) Outbox() leave.Outbox { return outboxView{m: m} }

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(txView{m: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// txView reads and writes the maps directly; the caller already holds the lock.
type txView struct {
	m *Memory
}

func (t txView) Requests() leave.RequestStore { return requestView{m: t.m, locked: true} }
func (t txView) Entries() leave.EntryStore { return entryView{m: t.m, locked: true} }
func (t txView) Outbox() leave.Outbox { return outboxView{m: t.m, locked: true} }

type memorySnapshot struct {
	requests    map[leave.RequestID]leave.LeaveRequest
	entries     map[leave.BalanceKey][]leave.Entry
	idempotency map[string]bool
	outbox      []outboxRecord
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		requests:    make(map[leave.RequestID]leave.LeaveRequest, len(m.requests)),
		entries:     make(map[leave.BalanceKey][]leave.Entry, len(m.entries)),
		idempotency: make(map[string]bool, len(m.idempotency)),
		outbox:      append([]outboxRecord(nil), m.outbox...),
	}
	for k, v := range m.requests {
		s.requests[k] = v
	}
	for k, v := range m.entries {
		s.entries[k] = append([]leave.Entry(nil), v...)
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.requests = s.requests
	m.entries = s.entries
	m.idempotency = s.idempotency
	m.outbox = s.outbox
}

// lock acquires the read or write lock unless the caller is inside WithTx.
func (m *Memory) lock(locked, write bool) func() {
	switch {
	case locked:
		return func() {}
	case write:
		m.mu.Lock()
		return m.mu.Unlock
	default:
		m.mu.RLock()
		return m.mu.RUnlock
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

type requestView struct {
	m      *Memory
	locked bool
}

func (v requestView) Save(_ context.Context, r leave.LeaveRequest) error {
	defer v.m.lock(v.locked, true)()
	v.m.requests[r.ID] = r
	return nil
}

func (v requestView) Get(_ context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	defer v.m.lock(v.locked, false)()
	r, ok := v.m.requests[id]
	if !ok {
		return leave.LeaveRequest{}, leave.ErrRequestNotFound
	}
	return r, nil
}

func (v requestView) ListByEmployee(_ context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	defer v.m.lock(v.locked, false)()
	out := []leave.LeaveRequest{}
	for _, r := range v.m.requests {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	sortByApplied(out)
	return out, nil
}

func (v requestView) ListPending(_ context.Context) ([]leave.LeaveRequest, error) {
	defer v.m.lock(v.locked, false)()
	out := []leave.LeaveRequest{}
	for _, r := range v.m.requests {
		if r.Status == leave.StatusPending {
			out = append(out, r)
		}
	}
	sortByApplied(out)
	return out, nil
}

// sortByApplied orders by submission time; ids break ties so map iteration
// order never leaks out.
func sortByApplied(rs []leave.LeaveRequest) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].AppliedAt.Equal(rs[j].AppliedAt) {
			return rs[i].AppliedAt.Before(rs[j].AppliedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

type entryView struct {
	m      *Memory
	locked bool
}

// Append adds a single entry. Append-only.
func (v entryView) Append(_ context.Context, e leave.Entry) error {
	defer v.m.lock(v.locked, true)()
	if e.IdempotencyKey != "" && v.m.idempotency[e.IdempotencyKey] {
		return leave.ErrDuplicateIdempotencyKey
	}
	k := leave.BalanceKey{EmployeeID: e.EmployeeID, LeaveTypeID: e.LeaveTypeID}
	v.m.entries[k] = append(v.m.entries[k], e)
	if e.IdempotencyKey != "" {
		v.m.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (v entryView) Load(_ context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID) ([]leave.Entry, error) {
	defer v.m.lock(v.locked, false)()
	k := leave.BalanceKey{EmployeeID: employeeID, LeaveTypeID: leaveTypeID}
	result := make([]leave.Entry, len(v.m.entries[k]))
	copy(result, v.m.entries[k])
	return result, nil
}

func (v entryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	defer v.m.lock(v.locked, false)()
	return v.m.idempotency[idempotencyKey], nil
}

// =============================================================================
// OUTBOX
// =============================================================================

type outboxView struct {
	m      *Memory
	locked bool
}

func (v outboxView) Enqueue(_ context.Context, e leave.Event) error {
	defer v.m.lock(v.locked, true)()
	v.m.outbox = append(v.m.outbox, outboxRecord{event: e})
	return nil
}

func (m *Memory) PendingEvents(_ context.Context, limit int) ([]leave.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []leave.Event{}
	for _, rec := range m.outbox {
		if rec.delivered {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rec.event)
	}
	return out, nil
}

func (m *Memory) MarkDelivered(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.outbox {
		if m.outbox[i].event.ID == id {
			m.outbox[i].delivered = true
			return nil
		}
	}
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.outbox {
		if m.outbox[i].event.ID == id {
			m.outbox[i].attempts++
			m.outbox[i].lastError = reason
			return nil
		}
	}
	return nil
}

// DeliveryAttempts reports how many times delivery of an event has failed.
func (m *Memory) DeliveryAttempts(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.outbox {
		if rec.event.ID == id {
			return rec.attempts
		}
	}
	return 0
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) Employee(_ context.Context, id leave.EmployeeID) (leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return leave.Employee{}, leave.ErrEmployeeNotFound
	}
	return e, nil
}

func (m *Memory) SaveEmployee(_ context.Context, e leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

// ListEmployees returns the directory ordered by id.
func (m *Memory) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]leave.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
