package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

func entry(id, key string, delta int64) leave.Entry {
	return leave.Entry{
		ID:             leave.EntryID(id),
		EmployeeID:     "emp-1",
		LeaveTypeID:    "casual",
		Delta:          decimal.NewFromInt(delta),
		Type:           leave.EntryDebit,
		IdempotencyKey: key,
		CreatedAt:      time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A committed entry
	// WHEN: A unit of work appends an entry, saves a request, enqueues an event, then fails
	// THEN: None of its writes survive

	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Entries().Append(ctx, entry("e-1", "k-1", 5)))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx leave.Tx) error {
		require.NoError(t, tx.Entries().Append(ctx, entry("e-2", "k-2", -2)))
		require.NoError(t, tx.Requests().Save(ctx, leave.LeaveRequest{ID: "r-1", EmployeeID: "emp-1", Status: leave.StatusPending}))
		require.NoError(t, tx.Outbox().Enqueue(ctx, leave.Event{ID: "ev-1", Type: leave.EventSubmitted, RequestID: "r-1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := m.Entries().Load(ctx, "emp-1", "casual")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	exists, err := m.Entries().Exists(ctx, "k-2")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.Requests().Get(ctx, "r-1")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)

	events, err := m.PendingEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemory_WithTx_Commits(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx leave.Tx) error {
		return tx.Entries().Append(ctx, entry("e-1", "k-1", 5))
	})
	require.NoError(t, err)

	exists, err := m.Entries().Exists(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemory_WithTx_CancelledContext(t *testing.T) {
	m := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.WithTx(ctx, func(leave.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemory_Append_DuplicateKey(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Entries().Append(ctx, entry("e-1", "k-1", 5)))
	err := m.Entries().Append(ctx, entry("e-2", "k-1", 5))
	assert.ErrorIs(t, err, leave.ErrDuplicateIdempotencyKey)
}

func TestMemory_Requests_OrderAndFilter(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	reqs := []leave.LeaveRequest{
		{ID: "r-3", EmployeeID: "emp-1", Status: leave.StatusPending, AppliedAt: base.Add(3 * time.Minute)},
		{ID: "r-1", EmployeeID: "emp-1", Status: leave.StatusApproved, AppliedAt: base.Add(1 * time.Minute)},
		{ID: "r-2", EmployeeID: "emp-2", Status: leave.StatusPending, AppliedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range reqs {
		require.NoError(t, m.Requests().Save(ctx, r))
	}

	mine, err := m.Requests().ListByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, leave.RequestID("r-1"), mine[0].ID)
	assert.Equal(t, leave.RequestID("r-3"), mine[1].ID)

	pending, err := m.Requests().ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, leave.RequestID("r-2"), pending[0].ID)
	assert.Equal(t, leave.RequestID("r-3"), pending[1].ID)

	none, err := m.Requests().ListByEmployee(ctx, "emp-9")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemory_Outbox(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		require.NoError(t, m.Outbox().Enqueue(ctx, leave.Event{ID: id, Type: leave.EventSubmitted}))
	}

	batch, err := m.PendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "ev-1", batch[0].ID)

	require.NoError(t, m.MarkDelivered(ctx, "ev-1"))
	require.NoError(t, m.MarkFailed(ctx, "ev-2", "broker down"))
	assert.Equal(t, 1, m.DeliveryAttempts("ev-2"))

	rest, err := m.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "ev-2", rest[0].ID)
	assert.Equal(t, "ev-3", rest[1].ID)
}

func TestMemory_Directory(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	_, err := m.Employee(ctx, "emp-1")
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)

	require.NoError(t, m.SaveEmployee(ctx, leave.Employee{ID: "emp-2", Role: leave.RoleAgent}))
	require.NoError(t, m.SaveEmployee(ctx, leave.Employee{ID: "emp-1", Role: leave.RoleAdmin}))

	all, err := m.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, leave.EmployeeID("emp-1"), all[0].ID)
}
