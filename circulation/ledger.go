/*
ledger.go - Loan ledger and availability coordination

PURPOSE:
  The LoanLedger is the source of truth for "is this book out, and to whom".
  It creates loans, processes returns, and keeps the catalog's available-copy
  counters in lockstep with the loan rows.

CRITICAL INVARIANTS:
  1. SYMMETRY: every loan creation decrements AvailableCopies exactly once;
     every return increments it exactly once.
  2. ATOMICITY: the ledger row change and the counter change are one
     transaction. A loan with no decrement, or a decrement with no loan, is
     never observable.
  3. NO LOST UPDATES: availability is claimed with a conditional update in
     the store, not checked and then written. Two concurrent loans on the
     last copy produce exactly one success and one ErrNoCopiesAvailable.
  4. ONE RETURN: a loan transitions Active -> Returned at most once. The
     second return of the same loan fails with ErrLoanAlreadyReturned.

RETURN FLOW:
  mark loan returned -> restore the copy -> compute overdue days -> record a
  fine when late. All inside one transaction; a failure at any step rolls the
  whole return back.

SEE ALSO:
  - store.go: ClaimCopy/RestoreCopy contracts
  - fines.go: fine computation and recording
  - policy.go: due date window
*/
package circulation

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// LOAN LEDGER
// =============================================================================

// LoanLedger manages the borrowing lifecycle against a transactional store.
type LoanLedger struct {
	store  TxStore
	clock  Clock
	policy LoanPolicy
	fines  *FineCalculator
}

// NewLoanLedger wires a ledger. A nil clock falls back to the system clock.
func NewLoanLedger(store TxStore, clock Clock, policy LoanPolicy, fines *FineCalculator) *LoanLedger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &LoanLedger{store: store, clock: clock, policy: policy, fines: fines}
}

// Policy returns the ledger's loan policy.
func (l *LoanLedger) Policy() LoanPolicy { return l.policy }

// =============================================================================
// LOAN CREATION
// =============================================================================

// CreateLoan grants a loan of the book to the user, due on dueDate. A zero
// dueDate takes the policy default (today + term).
//
// Atomically: inserts an Active loan row and claims one available copy.
// Fails with ErrNoCopiesAvailable when the book has no copy to lend, with
// InvalidDueDateError when the due date is outside the administrative
// window, and with ErrBookNotFound / ErrUserNotFound for dangling
// references.
func (l *LoanLedger) CreateLoan(ctx context.Context, bookID BookID, userID UserID, dueDate Date) (*Loan, error) {
	today := l.clock.Today()
	if dueDate.IsZero() {
		dueDate = l.policy.DefaultDueDate(today)
	}
	if err := l.policy.ValidateDueDate(today, dueDate); err != nil {
		return nil, err
	}

	loan := Loan{
		BookID:   bookID,
		UserID:   userID,
		LoanDate: today,
		DueDate:  dueDate,
		Status:   LoanActive,
	}

	err := l.store.WithTx(ctx, func(s Store) error {
		if u, err := s.GetUser(ctx, userID); err != nil {
			return err
		} else if u == nil {
			return ErrUserNotFound
		}

		// Claim first: the conditional decrement is the availability gate.
		if err := s.ClaimCopy(ctx, bookID); err != nil {
			return err
		}

		id, err := s.InsertLoan(ctx, loan)
		if err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		loan.ID = id
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return &loan, nil
}

// =============================================================================
// RETURNS
// =============================================================================

// ReturnLoan processes the return of an active loan: marks it Returned,
// restores the copy, and records a fine when the return is past due.
//
// Fails with ErrLoanNotFound or ErrLoanAlreadyReturned. All effects are one
// atomic unit; a partially applied return is never observable.
func (l *LoanLedger) ReturnLoan(ctx context.Context, loanID LoanID) (*ReturnReceipt, error) {
	today := l.clock.Today()
	var receipt ReturnReceipt

	err := l.store.WithTx(ctx, func(s Store) error {
		loan, err := s.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return ErrLoanNotFound
		}

		// Conditional transition; losing the race to another return of the
		// same loan surfaces as already-returned.
		returned, err := s.MarkLoanReturned(ctx, loanID, today)
		if err != nil {
			return err
		}
		if !returned {
			return ErrLoanAlreadyReturned
		}

		if err := s.RestoreCopy(ctx, loan.BookID); err != nil {
			return err
		}

		loan.Status = LoanReturned
		loan.ReturnedOn = &today
		receipt.Loan = *loan

		overdue := today.DaysSince(loan.DueDate)
		if overdue < 0 {
			overdue = 0
		}
		receipt.OverdueDays = overdue

		if overdue > 0 {
			fine, err := l.fines.recordForReturn(ctx, s, loanID, overdue, today)
			if err != nil {
				return err
			}
			receipt.Fine = fine
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return &receipt, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListActiveLoans returns the user's outstanding loans, oldest first.
func (l *LoanLedger) ListActiveLoans(ctx context.Context, userID UserID) ([]Loan, error) {
	return l.store.ListActiveLoans(ctx, userID)
}

// ListUserLoans returns the user's full borrowing history, newest first.
func (l *LoanLedger) ListUserLoans(ctx context.Context, userID UserID) ([]Loan, error) {
	return l.store.ListLoansByUser(ctx, userID)
}

// =============================================================================
// STORE ERROR WRAPPING
// =============================================================================

// wrapStoreErr tags unexpected storage failures with ErrTransactionFailed.
// Domain errors pass through untouched so errors.Is keeps working.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsConflict(err) || IsClientError(err) || errors.Is(err, ErrTransactionFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
}
