package leave_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

func newTestLedger(t *testing.T) (*leave.Ledger, leave.EntryStore) {
	t.Helper()
	return leave.NewLedger(testCatalog(t)), store.NewMemory().Entries()
}

func TestLedger_Balance_MaterializesOnce(t *testing.T) {
	// GIVEN: No entries for alice/casual
	// WHEN: Reading the balance twice
	// THEN: Both reads return the entitlement and only one grant exists

	ledger, entries := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Balance(ctx, entries, "alice", "casual")
	require.NoError(t, err)
	second, err := ledger.Balance(ctx, entries, "alice", "casual")
	require.NoError(t, err)

	assert.True(t, first.Equal(decimal.NewFromInt(5)))
	assert.True(t, first.Equal(second))

	history, err := entries.Load(ctx, "alice", "casual")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, leave.EntryGrant, history[0].Type)
	assert.Equal(t, "grant:alice:casual", history[0].IdempotencyKey)
}

func TestLedger_Balance_UnknownType(t *testing.T) {
	ledger, entries := newTestLedger(t)

	_, err := ledger.Balance(context.Background(), entries, "alice", "sabbatical")
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
}

func TestLedger_ReserveOrDebit(t *testing.T) {
	ledger, entries := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.ReserveOrDebit(ctx, entries, "alice", "casual", 2, "r-1", "sam"))

	bal, err := ledger.Balance(ctx, entries, "alice", "casual")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(3)))

	// Exactly the whole remainder is allowed
	require.NoError(t, ledger.ReserveOrDebit(ctx, entries, "alice", "casual", 3, "r-2", "sam"))
	bal, err = ledger.Balance(ctx, entries, "alice", "casual")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestLedger_ReserveOrDebit_Insufficient(t *testing.T) {
	// GIVEN: 5 casual days, 2 already debited
	// WHEN: Debiting 4 more
	// THEN: InsufficientBalanceError with the shortfall, balance unchanged

	ledger, entries := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.ReserveOrDebit(ctx, entries, "alice", "casual", 2, "r-1", "sam"))

	err := ledger.ReserveOrDebit(ctx, entries, "alice", "casual", 4, "r-2", "sam")
	require.Error(t, err)

	var ib *leave.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.True(t, ib.Available.Equal(decimal.NewFromInt(3)))
	assert.True(t, ib.Requested.Equal(decimal.NewFromInt(4)))
	assert.True(t, ib.Shortfall.Equal(decimal.NewFromInt(1)))

	bal, err := ledger.Balance(ctx, entries, "alice", "casual")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(3)))
}

func TestLedger_ReserveOrDebit_IdempotentPerRequest(t *testing.T) {
	ledger, entries := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.ReserveOrDebit(ctx, entries, "alice", "casual", 1, "r-1", "sam"))
	require.NoError(t, ledger.ReserveOrDebit(ctx, entries, "alice", "casual", 1, "r-1", "sam"))

	bal, err := ledger.Balance(ctx, entries, "alice", "casual")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(4)))

	history, err := ledger.History(ctx, entries, "alice", "casual")
	require.NoError(t, err)
	assert.Len(t, history, 2) // grant + one debit
}

func TestLedger_ReserveOrDebit_NonPositive(t *testing.T) {
	ledger, entries := newTestLedger(t)

	err := ledger.ReserveOrDebit(context.Background(), entries, "alice", "casual", 0, "r-1", "sam")
	assert.ErrorIs(t, err, leave.ErrInvalidAmount)
}

func TestLedger_Credit_NoEntitlementCap(t *testing.T) {
	ledger, entries := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Credit(ctx, entries, "alice", "casual", decimal.NewFromFloat(2.5), "adj-1", "adam", "bonus"))

	bal, err := ledger.Balance(ctx, entries, "alice", "casual")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromFloat(7.5)))

	err = ledger.Credit(ctx, entries, "alice", "casual", decimal.Zero, "adj-2", "adam", "nothing")
	assert.ErrorIs(t, err, leave.ErrInvalidAmount)
}

func TestLedger_History_DoesNotMaterialize(t *testing.T) {
	ledger, entries := newTestLedger(t)

	history, err := ledger.History(context.Background(), entries, "alice", "casual")
	require.NoError(t, err)
	assert.Empty(t, history)
}
