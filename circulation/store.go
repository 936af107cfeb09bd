/*
store.go - Persistence interfaces for the circulation engine

PURPOSE:
  Defines the boundary between the domain logic and the database. The engine
  reaches storage only through these interfaces; implementations exist for
  SQLite (production) and in-memory (tests, demos).

KEY INTERFACES:
  Store:   All catalog/loan/fine/reservation persistence
  TxStore: Store plus WithTx for atomic multi-table operations

WHERE THE INVARIANTS LIVE:
  The counters and uniqueness rules are enforced at the storage layer, not by
  read-then-write application code:
  - ClaimCopy is a conditional decrement that fails when no copy is left, so
    two racing loans on the last copy cannot both succeed.
  - InsertReservation relies on a uniqueness constraint over pending
    (book, user) pairs, so a duplicate reservation fails even if two clients
    pass the application pre-check simultaneously.
  - AvailableCopies can never go negative; implementations reject it.

CONDITIONAL UPDATES:
  MarkLoanReturned, MarkFinePaid, and UpdateReservationStatus report whether
  a row was actually transitioned. Zero rows means the record was missing or
  already in a terminal state; callers probe to tell the two apart.

IMPLEMENTATIONS:
  - store/sqlite: production store, constraints in the schema
  - store/memory: mutex-guarded maps, same contract, for tests

SEE ALSO:
  - ledger.go: composes these calls inside WithTx
  - store/sqlite/sqlite.go: concrete implementation
*/
package circulation

import "context"

// =============================================================================
// STORE - Catalog, loans, fines, reservations
// =============================================================================

// Store is the persistence contract for the engine. All methods operate on
// committed state unless called through WithTx.
type Store interface {
	CatalogStore
	UserStore
	LoanStore
	FineStore
	ReservationStore
}

// CatalogStore owns books and their available-copy counters.
type CatalogStore interface {
	InsertBook(ctx context.Context, b Book) (BookID, error)
	GetBook(ctx context.Context, id BookID) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)

	// ListAvailableBooks returns books with at least one available copy,
	// ordered by title. This backs the loan form's book picker.
	ListAvailableBooks(ctx context.Context) ([]Book, error)

	// ClaimCopy atomically decrements the available-copy counter:
	// conceptually UPDATE ... SET available = available - 1 WHERE id = ? AND
	// available > 0. Returns ErrNoCopiesAvailable when nothing to claim, and
	// ErrBookNotFound when the book does not exist.
	ClaimCopy(ctx context.Context, id BookID) error

	// RestoreCopy is the symmetric increment, applied once per return.
	RestoreCopy(ctx context.Context, id BookID) error
}

// UserStore holds the minimal borrower records the engine references.
// Full membership CRUD lives outside this module.
type UserStore interface {
	InsertUser(ctx context.Context, u User) (UserID, error)
	GetUser(ctx context.Context, id UserID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// LoanStore owns the loan ledger. Loans are inserted Active and transitioned
// at most once; they are never deleted.
type LoanStore interface {
	InsertLoan(ctx context.Context, l Loan) (LoanID, error)
	GetLoan(ctx context.Context, id LoanID) (*Loan, error)

	// MarkLoanReturned transitions Active -> Returned, setting the return
	// date. Reports false when the loan is missing or already returned.
	MarkLoanReturned(ctx context.Context, id LoanID, returnedOn Date) (bool, error)

	// ListActiveLoans returns a user's active loans, oldest first.
	ListActiveLoans(ctx context.Context, userID UserID) ([]Loan, error)

	// ListLoansByUser returns a user's full loan history, newest first.
	ListLoansByUser(ctx context.Context, userID UserID) ([]Loan, error)
}

// FineStore owns fine records.
type FineStore interface {
	InsertFine(ctx context.Context, f Fine) (FineID, error)
	GetFine(ctx context.Context, id FineID) (*Fine, error)

	// MarkFinePaid transitions Owed -> Paid, setting the payment date.
	// Reports false when the fine is missing or already paid.
	MarkFinePaid(ctx context.Context, id FineID, paidOn Date) (bool, error)

	// ListFinesByUser returns all fines for loans held by the user, newest
	// first.
	ListFinesByUser(ctx context.Context, userID UserID) ([]Fine, error)
}

// ReservationStore owns the reservation queue.
type ReservationStore interface {
	// InsertReservation persists a pending reservation. Returns
	// ErrDuplicateReservation when the user already has a pending
	// reservation for the book; the uniqueness check is a storage
	// constraint, not application logic.
	InsertReservation(ctx context.Context, r Reservation) (ReservationID, error)

	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)

	// UpdateReservationStatus transitions Pending -> to. Reports false when
	// the reservation is missing or no longer pending.
	UpdateReservationStatus(ctx context.Context, id ReservationID, to ReservationStatus) (bool, error)

	// ListReservableBooks returns zero-availability books annotated with
	// their pending reservation count, ordered by title.
	ListReservableBooks(ctx context.Context) ([]ReservableBook, error)

	// ListPendingReservations returns pending reservations for a book,
	// oldest first.
	ListPendingReservations(ctx context.Context, bookID BookID) ([]Reservation, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic multi-table operations
// =============================================================================

// TxStore wraps Store with transaction support. Every mutating engine
// operation runs inside WithTx: a loan creation's ledger insert and counter
// decrement either both land or neither does.
type TxStore interface {
	Store

	// WithTx executes fn within one transaction. If fn returns an error the
	// transaction is rolled back and no effect is observable.
	WithTx(ctx context.Context, fn func(Store) error) error
}
