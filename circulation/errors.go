/*
errors.go - Centralized error types for the circulation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes without string matching.

ERROR CATEGORIES:
  1. Availability errors - no copies to lend
  2. Lifecycle errors    - wrong state for the requested transition
  3. Lookup errors       - referenced record does not exist
  4. Store errors        - transaction-level failures (always rolled back)

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, circulation.ErrNoCopiesAvailable) { ... }

    var dup *circulation.DuplicateReservationError
    if errors.As(err, &dup) { ... }

SEE ALSO:
  - ledger.go, fines.go, reservations.go: producers of these errors
  - api/handlers.go: status-code mapping
*/
package circulation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoCopiesAvailable is returned when a loan is requested for a book
	// with no available copies. The check and the decrement are one atomic
	// conditional update, so two racing loans on the last copy yield exactly
	// one of these.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrLoanNotFound is returned when the referenced loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanAlreadyReturned is returned when returning a loan that has
	// already been returned. Loans have exactly one return.
	ErrLoanAlreadyReturned = errors.New("loan already returned")

	// ErrDuplicateReservation is returned when the user already holds a
	// pending reservation for the book.
	ErrDuplicateReservation = errors.New("duplicate reservation")

	// ErrFineNotFound is returned when the referenced fine does not exist.
	ErrFineNotFound = errors.New("fine not found")

	// ErrInvalidDueDate is returned when a due date falls outside the
	// administrative window (today through today+horizon).
	ErrInvalidDueDate = errors.New("invalid due date")

	// ErrBookNotFound is returned when the referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrReservationNotFound is returned when the referenced reservation
	// does not exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationNotPending is returned when cancelling or fulfilling a
	// reservation that has already reached a terminal state.
	ErrReservationNotPending = errors.New("reservation is not pending")

	// ErrTransactionFailed wraps storage-level failures. Every operation that
	// surfaces it has been fully rolled back.
	ErrTransactionFailed = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidDueDateError reports a due date outside the allowed window.
type InvalidDueDateError struct {
	Given    Date
	Earliest Date
	Latest   Date
}

func (e *InvalidDueDateError) Error() string {
	return fmt.Sprintf("invalid due date %s: must be between %s and %s",
		e.Given, e.Earliest, e.Latest)
}

func (e *InvalidDueDateError) Unwrap() error { return ErrInvalidDueDate }

// DuplicateReservationError reports an existing pending reservation for the
// same (book, user) pair.
type DuplicateReservationError struct {
	BookID BookID
	UserID UserID
}

func (e *DuplicateReservationError) Error() string {
	return fmt.Sprintf("user %d already has a pending reservation for book %d",
		e.UserID, e.BookID)
}

func (e *DuplicateReservationError) Unwrap() error { return ErrDuplicateReservation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrFineNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsConflict reports whether the error is a state conflict: the request was
// well-formed but the current state forbids it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNoCopiesAvailable) ||
		errors.Is(err, ErrLoanAlreadyReturned) ||
		errors.Is(err, ErrDuplicateReservation) ||
		errors.Is(err, ErrReservationNotPending)
}

// IsClientError reports whether the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDueDate)
}
