/*
Package circulation is the borrowing lifecycle engine of the library system.

PURPOSE:
  This package contains the domain types and operations for lending books:
  loan creation, returns, overdue fine generation, fine payment, and
  reservation of unavailable titles. It owns the rules that keep the catalog's
  available-copy counters consistent with the loan ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Book: a catalog record with a mutable AvailableCopies counter
  - Loan: a book lent to a user with an expected due date
  - Fine: a monetary penalty tied to a late return
  - Reservation: declared interest in a currently unavailable book
  - User: the minimal borrower record the engine needs for foreign keys

DESIGN PRINCIPLES:
  1. Precision: fine amounts use decimal.Decimal, never float
  2. Type safety: strong ID types prevent mixing book/user/loan identifiers
  3. Explicit state: loans, fines, and reservations carry small closed
     status enums with one-way transitions
  4. No ambient state: every operation receives its store and clock

SEE ALSO:
  - ledger.go: loan creation and return (the availability coordinator)
  - fines.go: fine computation, recording, and payment
  - reservations.go: reservation queue
  - store.go: persistence interfaces
*/
package circulation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// IDs are integers because the underlying schema uses auto-increment keys.
// Distinct types keep a LoanID from ever being passed where a BookID belongs.

type BookID int64
type UserID int64
type LoanID int64
type FineID int64
type ReservationID int64

// =============================================================================
// BOOK - Catalog record
// =============================================================================

// Book is a catalog entry. AvailableCopies counts physical copies not
// currently on loan.
//
// INVARIANT: AvailableCopies >= 0 at all times. It is decremented exactly
// once per loan creation and incremented exactly once per return; both
// mutations happen through conditional updates in the store, never
// read-then-write.
type Book struct {
	ID              BookID
	Title           string
	ISBN            string
	Year            int
	Publisher       string
	AvailableCopies int
	ShelfLocation   string
}

// =============================================================================
// USER - Minimal borrower record
// =============================================================================

// User is the slice of the borrower record this engine needs. Registration,
// contact details, and validation live in the membership layer.
type User struct {
	ID   UserID
	Name string
}

// =============================================================================
// LOAN - Ledger entry for a lent book
// =============================================================================

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// Loan records one book lent to one user. Loans are created Active and
// mutated exactly once, at return, which sets Status and ReturnedOn.
// Loans are never deleted; the ledger is the history.
type Loan struct {
	ID         LoanID
	BookID     BookID
	UserID     UserID
	LoanDate   Date
	DueDate    Date
	ReturnedOn *Date // nil while Active
	Status     LoanStatus
}

// Overdue reports whether the loan is past due as of the given day.
// A returned loan is never overdue.
func (l Loan) Overdue(today Date) bool {
	return l.Status == LoanActive && today.After(l.DueDate)
}

// =============================================================================
// FINE - Penalty for a late return
// =============================================================================

type FineStatus string

const (
	FineOwed FineStatus = "owed"
	FinePaid FineStatus = "paid"
)

// Fine is created when a loan is returned after its due date. Its only
// transition is Owed -> Paid, via payment. Fines never expire.
type Fine struct {
	ID          FineID
	LoanID      LoanID
	Amount      decimal.Decimal
	Status      FineStatus
	GeneratedOn Date
	PaidOn      *Date // nil while Owed
}

// =============================================================================
// RESERVATION - Declared interest in an unavailable book
// =============================================================================

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation marks that a user wants a book that has no available copies.
//
// INVARIANT: at most one Pending reservation per (BookID, UserID) pair,
// enforced by a partial unique index in the store.
//
// The queue is advisory: a returned copy becomes generally available and any
// eligible user may borrow it through ordinary loan creation. Nothing
// advances Pending reservations automatically.
type Reservation struct {
	ID         ReservationID
	BookID     BookID
	UserID     UserID
	ReservedOn Date
	Status     ReservationStatus
}

// ReservableBook is a zero-availability title annotated with demand, as shown
// in the reservation view.
type ReservableBook struct {
	Book         Book
	PendingCount int
}

// =============================================================================
// RETURN RECEIPT - Outcome of a return
// =============================================================================

// ReturnReceipt summarizes one processed return. Fine is nil when the book
// came back on time.
type ReturnReceipt struct {
	Loan        Loan
	OverdueDays int
	Fine        *Fine
}
