/*
fines.go - Overdue fine computation, recording, and payment

PURPOSE:
  Derives fine amounts from overdue days and manages the Owed -> Paid
  lifecycle. Amounts are decimal currency units; the per-day rate is injected
  configuration, not a literal in the arithmetic.

INVARIANTS:
  1. A fine exists only for a late return: overdue days > 0.
  2. Amount = overdue days x daily rate, exactly. Decimal arithmetic, no
     floating point.
  3. Owed -> Paid happens at most once. Paying an already-paid fine is an
     idempotent success: no second payment date, no error.
  4. Fines never expire on their own.

SEE ALSO:
  - ledger.go: calls recordForReturn inside the return transaction
  - store.go: FineStore contract
*/
package circulation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FINE SCHEDULE - Injected rate configuration
// =============================================================================

// FineSchedule is the fine pricing configuration. The rate applies uniformly;
// callers cannot override it per fine.
type FineSchedule struct {
	// DailyRate is charged per day overdue, in currency units.
	DailyRate decimal.Decimal
}

// DefaultFineSchedule is the library's standing rate of 2.00 per day.
func DefaultFineSchedule() FineSchedule {
	return FineSchedule{DailyRate: decimal.New(2, 0)}
}

// =============================================================================
// FINE CALCULATOR
// =============================================================================

// FineCalculator computes and records fines and processes payments.
type FineCalculator struct {
	store    TxStore
	clock    Clock
	schedule FineSchedule
}

// NewFineCalculator wires a calculator. A nil clock falls back to the system
// clock.
func NewFineCalculator(store TxStore, clock Clock, schedule FineSchedule) *FineCalculator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &FineCalculator{store: store, clock: clock, schedule: schedule}
}

// Schedule returns the active fine schedule.
func (c *FineCalculator) Schedule() FineSchedule { return c.schedule }

// ComputeFine derives the amount owed for the given overdue days. Pure
// function of the schedule; non-positive overdue yields zero.
func (c *FineCalculator) ComputeFine(overdueDays int) decimal.Decimal {
	if overdueDays <= 0 {
		return decimal.Zero
	}
	return c.schedule.DailyRate.Mul(decimal.NewFromInt(int64(overdueDays)))
}

// RecordFine inserts an Owed fine against the loan, generated today.
func (c *FineCalculator) RecordFine(ctx context.Context, loanID LoanID, amount decimal.Decimal) (*Fine, error) {
	fine := Fine{
		LoanID:      loanID,
		Amount:      amount,
		Status:      FineOwed,
		GeneratedOn: c.clock.Today(),
	}
	id, err := c.store.InsertFine(ctx, fine)
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("insert fine: %w", err))
	}
	fine.ID = id
	return &fine, nil
}

// recordForReturn records a fine on the given store handle, so the fine row
// joins the return's transaction.
func (c *FineCalculator) recordForReturn(ctx context.Context, s Store, loanID LoanID, overdueDays int, today Date) (*Fine, error) {
	fine := Fine{
		LoanID:      loanID,
		Amount:      c.ComputeFine(overdueDays),
		Status:      FineOwed,
		GeneratedOn: today,
	}
	id, err := s.InsertFine(ctx, fine)
	if err != nil {
		return nil, fmt.Errorf("insert fine: %w", err)
	}
	fine.ID = id
	return &fine, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// PayFine settles a fine: Owed -> Paid with today's payment date. Paying a
// fine that is already paid succeeds without effect. Unknown ids fail with
// ErrFineNotFound.
func (c *FineCalculator) PayFine(ctx context.Context, fineID FineID) (*Fine, error) {
	today := c.clock.Today()
	var paid *Fine

	err := c.store.WithTx(ctx, func(s Store) error {
		transitioned, err := s.MarkFinePaid(ctx, fineID, today)
		if err != nil {
			return err
		}
		if transitioned {
			fine, err := s.GetFine(ctx, fineID)
			if err != nil {
				return err
			}
			paid = fine
			return nil
		}

		// No row transitioned: either the fine is unknown or it was paid
		// earlier. The latter is an idempotent success.
		fine, err := s.GetFine(ctx, fineID)
		if err != nil {
			return err
		}
		if fine == nil {
			return ErrFineNotFound
		}
		paid = fine
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return paid, nil
}

// ListUserFines returns all fines tied to the user's loans, newest first.
func (c *FineCalculator) ListUserFines(ctx context.Context, userID UserID) ([]Fine, error) {
	return c.store.ListFinesByUser(ctx, userID)
}
