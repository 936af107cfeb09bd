package circulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/circulation-engine/circulation"
	"github.com/shelfwise/circulation-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestFines(t *testing.T) (*circulation.FineCalculator, *sqlite.Store) {
	store := newTestStore(t)
	clock := circulation.FixedClock{Day: testDay}
	return circulation.NewFineCalculator(store, clock, circulation.DefaultFineSchedule()), store
}

// lateFine produces an owed fine the normal way: borrow, then return
// overdueDays past the due date.
func lateFine(t *testing.T, store *sqlite.Store, overdueDays int) (*circulation.Fine, circulation.UserID) {
	ctx := context.Background()
	bookID := seedBook(t, store, "Database Internals", 1)
	userID := seedUser(t, store, "Ana")

	loan, err := ledgerAt(store, testDay).CreateLoan(ctx, bookID, userID, circulation.Date{})
	require.NoError(t, err)

	receipt, err := ledgerAt(store, loan.DueDate.AddDays(overdueDays)).ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, receipt.Fine)
	return receipt.Fine, userID
}

// =============================================================================
// COMPUTATION TESTS
// =============================================================================

func TestFineCalculator_ComputeFine_DailyRate(t *testing.T) {
	fines, _ := newTestFines(t)

	assert.Equal(t, "2.00", fines.ComputeFine(1).StringFixed(2))
	assert.Equal(t, "10.00", fines.ComputeFine(5).StringFixed(2))
	assert.Equal(t, "60.00", fines.ComputeFine(30).StringFixed(2))
}

func TestFineCalculator_ComputeFine_NotOverdue_Zero(t *testing.T) {
	fines, _ := newTestFines(t)

	assert.True(t, fines.ComputeFine(0).IsZero())
	assert.True(t, fines.ComputeFine(-3).IsZero())
}

func TestFineCalculator_ComputeFine_CustomRate(t *testing.T) {
	store := newTestStore(t)
	schedule := circulation.FineSchedule{DailyRate: decimal.RequireFromString("0.50")}
	fines := circulation.NewFineCalculator(store, circulation.FixedClock{Day: testDay}, schedule)

	assert.Equal(t, "3.50", fines.ComputeFine(7).StringFixed(2))
}

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestFineCalculator_PayFine_SettlesOwed(t *testing.T) {
	// GIVEN: An owed fine from a late return
	// WHEN: Paying it
	// THEN: Status flips to paid with today's date

	fines, store := newTestFines(t)
	owed, _ := lateFine(t, store, 4)

	paid, err := fines.PayFine(context.Background(), owed.ID)
	require.NoError(t, err)

	assert.Equal(t, circulation.FinePaid, paid.Status)
	require.NotNil(t, paid.PaidOn)
	assert.Equal(t, testDay, *paid.PaidOn)
	assert.Equal(t, "8.00", paid.Amount.StringFixed(2))
}

func TestFineCalculator_PayFine_Twice_Idempotent(t *testing.T) {
	// GIVEN: A fine that was already paid
	// WHEN: Paying it again
	// THEN: Success without effect; the original payment date stands

	store := newTestStore(t)
	owed, _ := lateFine(t, store, 2)

	first := circulation.NewFineCalculator(store, circulation.FixedClock{Day: testDay}, circulation.DefaultFineSchedule())
	_, err := first.PayFine(context.Background(), owed.ID)
	require.NoError(t, err)

	later := circulation.NewFineCalculator(store, circulation.FixedClock{Day: testDay.AddDays(10)}, circulation.DefaultFineSchedule())
	paid, err := later.PayFine(context.Background(), owed.ID)
	require.NoError(t, err)

	assert.Equal(t, circulation.FinePaid, paid.Status)
	require.NotNil(t, paid.PaidOn)
	assert.Equal(t, testDay, *paid.PaidOn, "second payment must not move the payment date")
}

func TestFineCalculator_PayFine_NotFound(t *testing.T) {
	fines, _ := newTestFines(t)

	_, err := fines.PayFine(context.Background(), 404)
	assert.ErrorIs(t, err, circulation.ErrFineNotFound)
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestFineCalculator_ListUserFines_OnlyTheirs(t *testing.T) {
	fines, store := newTestFines(t)
	ctx := context.Background()

	_, debtor := lateFine(t, store, 3)
	bystander := seedUser(t, store, "Bruno")

	owed, err := fines.ListUserFines(ctx, debtor)
	require.NoError(t, err)
	require.Len(t, owed, 1)
	assert.Equal(t, "6.00", owed[0].Amount.StringFixed(2))

	none, err := fines.ListUserFines(ctx, bystander)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFineCalculator_RecordFine_Owed(t *testing.T) {
	fines, store := newTestFines(t)
	ctx := context.Background()

	bookID := seedBook(t, store, "SICP", 1)
	userID := seedUser(t, store, "Carla")
	loan, err := ledgerAt(store, testDay).CreateLoan(ctx, bookID, userID, circulation.Date{})
	require.NoError(t, err)

	fine, err := fines.RecordFine(ctx, loan.ID, decimal.RequireFromString("12.00"))
	require.NoError(t, err)

	assert.Equal(t, circulation.FineOwed, fine.Status)
	assert.Equal(t, testDay, fine.GeneratedOn)
	assert.Nil(t, fine.PaidOn)

	// Round-trips through storage with the exact amount.
	stored, err := store.GetFine(ctx, fine.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Amount.Equal(fine.Amount))

	d := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, circulation.DateOf(d), stored.GeneratedOn)
}
