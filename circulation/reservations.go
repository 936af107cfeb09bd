/*
reservations.go - Reservation queue for unavailable titles

PURPOSE:
  Lets users register interest in books that currently have no available
  copies. The queue is advisory: it records demand and feeds the reservation
  view, but it does not hold copies. A returned copy becomes generally
  available and is granted through ordinary loan creation.

INVARIANT:
  At most one Pending reservation per (book, user) pair. The application
  pre-check gives a friendly error on the common path; the storage-layer
  uniqueness constraint is what actually closes the race between two
  simultaneous reserve calls.

STATE MACHINE:
  Pending --cancel--> Cancelled   (terminal)
  Pending --fulfill--> Fulfilled  (terminal)

  Both transitions are explicit librarian actions. Nothing advances a
  Pending reservation automatically when copies reappear.

SEE ALSO:
  - store.go: InsertReservation / UpdateReservationStatus contracts
  - store/sqlite/sqlite.go: the partial unique index behind the invariant
*/
package circulation

import (
	"context"
	"errors"
)

// =============================================================================
// RESERVATION QUEUE
// =============================================================================

// ReservationQueue manages reservations against a transactional store.
type ReservationQueue struct {
	store TxStore
	clock Clock
}

// NewReservationQueue wires a queue. A nil clock falls back to the system
// clock.
func NewReservationQueue(store TxStore, clock Clock) *ReservationQueue {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ReservationQueue{store: store, clock: clock}
}

// Reserve records the user's pending reservation for the book, dated today.
// Fails with DuplicateReservationError when the user already holds a pending
// reservation for it, and with ErrBookNotFound / ErrUserNotFound for
// dangling references.
func (q *ReservationQueue) Reserve(ctx context.Context, bookID BookID, userID UserID) (*Reservation, error) {
	res := Reservation{
		BookID:     bookID,
		UserID:     userID,
		ReservedOn: q.clock.Today(),
		Status:     ReservationPending,
	}

	err := q.store.WithTx(ctx, func(s Store) error {
		if b, err := s.GetBook(ctx, bookID); err != nil {
			return err
		} else if b == nil {
			return ErrBookNotFound
		}
		if u, err := s.GetUser(ctx, userID); err != nil {
			return err
		} else if u == nil {
			return ErrUserNotFound
		}

		id, err := s.InsertReservation(ctx, res)
		if err != nil {
			// The constraint is the authority; dress it with context.
			if errors.Is(err, ErrDuplicateReservation) {
				return &DuplicateReservationError{BookID: bookID, UserID: userID}
			}
			return err
		}
		res.ID = id
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return &res, nil
}

// Cancel transitions a pending reservation to Cancelled and returns the
// updated record. Fails with ErrReservationNotFound or
// ErrReservationNotPending.
func (q *ReservationQueue) Cancel(ctx context.Context, id ReservationID) (*Reservation, error) {
	return q.transition(ctx, id, ReservationCancelled)
}

// Fulfill marks a pending reservation Fulfilled, recording that the user got
// the book. It does not create the loan; that stays an ordinary CreateLoan.
func (q *ReservationQueue) Fulfill(ctx context.Context, id ReservationID) (*Reservation, error) {
	return q.transition(ctx, id, ReservationFulfilled)
}

func (q *ReservationQueue) transition(ctx context.Context, id ReservationID, to ReservationStatus) (*Reservation, error) {
	var updated *Reservation
	err := q.store.WithTx(ctx, func(s Store) error {
		done, err := s.UpdateReservationStatus(ctx, id, to)
		if err != nil {
			return err
		}
		res, err := s.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return ErrReservationNotFound
		}
		if !done {
			return ErrReservationNotPending
		}
		updated = res
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return updated, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListReservableBooks returns the titles shown in the reservation view:
// books with zero available copies, annotated with their pending reservation
// count. The count is informational; no first-come priority is enforced.
func (q *ReservationQueue) ListReservableBooks(ctx context.Context) ([]ReservableBook, error) {
	return q.store.ListReservableBooks(ctx)
}

// ListPendingReservations returns a book's pending reservations, oldest
// first.
func (q *ReservationQueue) ListPendingReservations(ctx context.Context, bookID BookID) ([]Reservation, error) {
	return q.store.ListPendingReservations(ctx, bookID)
}
