package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var (
	agent      = leave.Employee{ID: "emp-1", Name: "Ana", Role: leave.RoleAgent, Team: "ops", Office: "lisbon"}
	supervisor = leave.Employee{ID: "sup-1", Name: "Sid", Role: leave.RoleSupervisor, Team: "ops"}
	outsider   = leave.Employee{ID: "sup-2", Name: "Oz", Role: leave.RoleSupervisor, Team: "sales"}
	admin      = leave.Employee{ID: "adm-1", Name: "Ada", Role: leave.RoleAdmin}
)

func newTestCoordinator(t *testing.T) (*leave.Coordinator, *sqlite.Store) {
	t.Helper()
	store := newTestStore(t)
	ctx := context.Background()
	for _, e := range []leave.Employee{agent, supervisor, outsider, admin} {
		require.NoError(t, store.SaveEmployee(ctx, e))
	}
	catalog, err := leave.NewCatalog(
		leave.LeaveType{ID: "casual", AnnualEntitlementDays: 5},
		leave.LeaveType{ID: "sick", AnnualEntitlementDays: 1},
	)
	require.NoError(t, err)
	return leave.NewCoordinator(store, catalog, zap.NewNop()), store
}

func day(d int) leave.Date { return leave.NewDate(2025, time.March, d) }

func remaining(t *testing.T, c *leave.Coordinator, lt leave.LeaveTypeID) decimal.Decimal {
	t.Helper()
	views, err := c.Balances(context.Background(), agent, agent.ID)
	require.NoError(t, err)
	for _, v := range views {
		if v.LeaveType.ID == lt {
			return v.Remaining
		}
	}
	t.Fatalf("no balance for %s", lt)
	return decimal.Zero
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestStore_SaveAndGetRequest_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	applied := time.Date(2025, time.March, 1, 9, 30, 0, 123, time.UTC)
	req := leave.LeaveRequest{
		ID: "r-1", EmployeeID: agent.ID, LeaveTypeID: "casual",
		Team: "ops", Office: "lisbon",
		Start: day(10), End: day(11), Days: 2,
		Reason: "trip", Status: leave.StatusPending,
		AppliedAt: applied, UpdatedAt: applied,
	}
	require.NoError(t, store.Requests().Save(ctx, req))

	got, err := store.Requests().Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, "ops", got.Team)
	assert.Equal(t, "lisbon", got.Office)
	assert.True(t, got.Start.Equal(day(10)))
	assert.True(t, got.End.Equal(day(11)))
	assert.True(t, got.AppliedAt.Equal(applied))
	assert.Nil(t, got.DecidedBy)
	assert.Nil(t, got.DecidedAt)
	assert.Nil(t, got.RejectionReason)

	// Decision columns update in place
	by := supervisor.ID
	at := applied.Add(time.Hour)
	reason := "no cover"
	req.Status = leave.StatusRejected
	req.DecidedBy = &by
	req.DecidedAt = &at
	req.RejectionReason = &reason
	req.UpdatedAt = at
	require.NoError(t, store.Requests().Save(ctx, req))

	got, err = store.Requests().Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, got.Status)
	require.NotNil(t, got.DecidedBy)
	assert.Equal(t, by, *got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(at))
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, reason, *got.RejectionReason)

	_, err = store.Requests().Get(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestStore_Ledger_AppendLoadExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	grant := leave.Entry{
		ID: "e-1", EmployeeID: agent.ID, LeaveTypeID: "casual",
		Delta: decimal.NewFromInt(5), Type: leave.EntryGrant,
		IdempotencyKey: "grant:emp-1:casual", CreatedBy: "system",
		CreatedAt: time.Now(),
	}
	debit := leave.Entry{
		ID: "e-2", EmployeeID: agent.ID, LeaveTypeID: "casual",
		Delta: decimal.NewFromFloat(-1.5), Type: leave.EntryDebit,
		ReferenceID: "r-1", IdempotencyKey: "debit:r-1", CreatedBy: supervisor.ID,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Entries().Append(ctx, grant))
	require.NoError(t, store.Entries().Append(ctx, debit))

	entries, err := store.Entries().Load(ctx, agent.ID, "casual")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, leave.EntryGrant, entries[0].Type)
	assert.True(t, entries[1].Delta.Equal(decimal.NewFromFloat(-1.5)))
	assert.Equal(t, "r-1", entries[1].ReferenceID)

	exists, err := store.Entries().Exists(ctx, "debit:r-1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := debit
	dup.ID = "e-3"
	err = store.Entries().Append(ctx, dup)
	assert.ErrorIs(t, err, leave.ErrDuplicateIdempotencyKey)
}

func TestStore_WithTx_RollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx leave.Tx) error {
		require.NoError(t, tx.Entries().Append(ctx, leave.Entry{
			ID: "e-1", EmployeeID: agent.ID, LeaveTypeID: "casual",
			Delta: decimal.NewFromInt(5), Type: leave.EntryGrant,
			IdempotencyKey: "grant:emp-1:casual", CreatedAt: time.Now(),
		}))
		require.NoError(t, tx.Outbox().Enqueue(ctx, leave.Event{
			ID: "ev-1", Type: leave.EventSubmitted, RequestID: "r-1",
			EmployeeID: agent.ID, ActorID: agent.ID, OccurredAt: time.Now(),
		}))

		// Reads inside the unit of work see its own writes
		entries, err := tx.Entries().Load(ctx, agent.ID, "casual")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := store.Entries().Load(ctx, agent.ID, "casual")
	require.NoError(t, err)
	assert.Empty(t, entries)

	events, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// =============================================================================
// OUTBOX & DIRECTORY
// =============================================================================

func TestStore_Outbox(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		require.NoError(t, store.Outbox().Enqueue(ctx, leave.Event{
			ID: id, Type: leave.EventApproved, RequestID: "r-1",
			EmployeeID: agent.ID, ActorID: admin.ID, OccurredAt: time.Now(),
		}))
	}

	batch, err := store.PendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "ev-1", batch[0].ID)
	assert.Equal(t, leave.EventApproved, batch[0].Type)

	require.NoError(t, store.MarkDelivered(ctx, "ev-1"))
	require.NoError(t, store.MarkFailed(ctx, "ev-2", "broker down"))
	require.NoError(t, store.MarkFailed(ctx, "ev-2", "broker down"))

	attempts, err := store.DeliveryAttempts(ctx, "ev-2")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	rest, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "ev-2", rest[0].ID)
}

func TestStore_Directory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Employee(ctx, agent.ID)
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)

	require.NoError(t, store.SaveEmployee(ctx, agent))
	require.NoError(t, store.SaveEmployee(ctx, admin))

	got, err := store.Employee(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent, got)

	moved := agent
	moved.Team = "sales"
	require.NoError(t, store.SaveEmployee(ctx, moved))
	got, err = store.Employee(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "sales", got.Team)

	all, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, admin.ID, all[0].ID)
}

// =============================================================================
// COORDINATOR ON SQLITE
// =============================================================================

func TestCoordinator_SQLite_ApproveThenOverlap(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	req, err := c.RequestLeave(ctx, agent, "casual", day(10), day(11), "trip")
	require.NoError(t, err)

	_, err = c.DecideLeave(ctx, supervisor, req.ID, leave.ActionApprove, "")
	require.NoError(t, err)
	assert.True(t, remaining(t, c, "casual").Equal(decimal.NewFromInt(3)))

	_, err = c.RequestLeave(ctx, agent, "sick", day(11), day(11), "flu")
	assert.ErrorIs(t, err, leave.ErrOverlappingRequest)
}

func TestCoordinator_SQLite_InsufficientBalanceRollsBack(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	req, err := c.RequestLeave(ctx, agent, "sick", day(10), day(11), "flu")
	require.NoError(t, err)

	_, err = c.DecideLeave(ctx, admin, req.ID, leave.ActionApprove, "")
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	stored, err := store.Requests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
	assert.True(t, remaining(t, c, "sick").Equal(decimal.NewFromInt(1)))

	events, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCoordinator_SQLite_OutOfScopeSupervisor(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	req, err := c.RequestLeave(ctx, agent, "casual", day(10), day(10), "errand")
	require.NoError(t, err)

	_, err = c.DecideLeave(ctx, outsider, req.ID, leave.ActionApprove, "")
	assert.ErrorIs(t, err, leave.ErrUnauthorized)
}

func TestCoordinator_SQLite_ConcurrentDecisions(t *testing.T) {
	// GIVEN: One pending request
	// WHEN: A supervisor and an admin approve concurrently
	// THEN: Exactly one wins; the balance is debited once

	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	req, err := c.RequestLeave(ctx, agent, "casual", day(10), day(11), "trip")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, approver := range []leave.Employee{supervisor, admin} {
		wg.Add(1)
		go func(i int, approver leave.Employee) {
			defer wg.Done()
			_, errs[i] = c.DecideLeave(ctx, approver, req.ID, leave.ActionApprove, "")
		}(i, approver)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, leave.ErrAlreadyDecided)
		}
	}
	assert.Equal(t, 1, failures)
	assert.True(t, remaining(t, c, "casual").Equal(decimal.NewFromInt(3)))
}
