// Package memory provides an in-memory circulation.TxStore for testing/dev.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shelfwise/circulation-engine/circulation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps all circulation state in maps. It mirrors the SQLite store's
// behavior exactly: conditional updates, duplicate-hold rejection, and
// transition-at-most-once semantics, so the two are interchangeable in tests.
type Store struct {
	mu           sync.RWMutex
	books        map[circulation.BookID]circulation.Book
	users        map[circulation.UserID]circulation.User
	loans        map[circulation.LoanID]circulation.Loan
	fines        map[circulation.FineID]circulation.Fine
	reservations map[circulation.ReservationID]circulation.Reservation

	nextBookID        circulation.BookID
	nextUserID        circulation.UserID
	nextLoanID        circulation.LoanID
	nextFineID        circulation.FineID
	nextReservationID circulation.ReservationID
}

func New() *Store {
	return &Store{
		books:        make(map[circulation.BookID]circulation.Book),
		users:        make(map[circulation.UserID]circulation.User),
		loans:        make(map[circulation.LoanID]circulation.Loan),
		fines:        make(map[circulation.FineID]circulation.Fine),
		reservations: make(map[circulation.ReservationID]circulation.Reservation),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Store) InsertBook(_ context.Context, b circulation.Book) (circulation.BookID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertBookLocked(b)
}

func (m *Store) insertBookLocked(b circulation.Book) (circulation.BookID, error) {
	m.nextBookID++
	b.ID = m.nextBookID
	m.books[b.ID] = b
	return b.ID, nil
}

func (m *Store) GetBook(_ context.Context, id circulation.BookID) (*circulation.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBookLocked(id)
}

func (m *Store) getBookLocked(id circulation.BookID) (*circulation.Book, error) {
	b, ok := m.books[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Store) ListBooks(_ context.Context) ([]circulation.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBooksLocked(func(circulation.Book) bool { return true }), nil
}

func (m *Store) ListAvailableBooks(_ context.Context) ([]circulation.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBooksLocked(func(b circulation.Book) bool { return b.AvailableCopies > 0 }), nil
}

func (m *Store) listBooksLocked(keep func(circulation.Book) bool) []circulation.Book {
	var out []circulation.Book
	for _, b := range m.books {
		if keep(b) {
			out = append(out, b)
		}
	}
	sortBooks(out)
	return out
}

func sortBooks(books []circulation.Book) {
	sort.Slice(books, func(i, j int) bool {
		if books[i].Title != books[j].Title {
			return books[i].Title < books[j].Title
		}
		return books[i].ID < books[j].ID
	})
}

func (m *Store) ClaimCopy(_ context.Context, id circulation.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimCopyLocked(id)
}

func (m *Store) claimCopyLocked(id circulation.BookID) error {
	b, ok := m.books[id]
	if !ok {
		return circulation.ErrBookNotFound
	}
	if b.AvailableCopies <= 0 {
		return circulation.ErrNoCopiesAvailable
	}
	b.AvailableCopies--
	m.books[id] = b
	return nil
}

func (m *Store) RestoreCopy(_ context.Context, id circulation.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restoreCopyLocked(id)
}

func (m *Store) restoreCopyLocked(id circulation.BookID) error {
	b, ok := m.books[id]
	if !ok {
		return circulation.ErrBookNotFound
	}
	b.AvailableCopies++
	m.books[id] = b
	return nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Store) InsertUser(_ context.Context, u circulation.User) (circulation.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertUserLocked(u)
}

func (m *Store) insertUserLocked(u circulation.User) (circulation.UserID, error) {
	m.nextUserID++
	u.ID = m.nextUserID
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *Store) GetUser(_ context.Context, id circulation.UserID) (*circulation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Store) getUserLocked(id circulation.UserID) (*circulation.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Store) ListUsers(_ context.Context) ([]circulation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersLocked(), nil
}

func (m *Store) listUsersLocked() []circulation.User {
	var out []circulation.User
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// LOANS
// =============================================================================

func (m *Store) InsertLoan(_ context.Context, l circulation.Loan) (circulation.LoanID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLoanLocked(l)
}

func (m *Store) insertLoanLocked(l circulation.Loan) (circulation.LoanID, error) {
	m.nextLoanID++
	l.ID = m.nextLoanID
	m.loans[l.ID] = l
	return l.ID, nil
}

func (m *Store) GetLoan(_ context.Context, id circulation.LoanID) (*circulation.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLoanLocked(id)
}

func (m *Store) getLoanLocked(id circulation.LoanID) (*circulation.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *Store) MarkLoanReturned(_ context.Context, id circulation.LoanID, returnedOn circulation.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markLoanReturnedLocked(id, returnedOn)
}

func (m *Store) markLoanReturnedLocked(id circulation.LoanID, returnedOn circulation.Date) (bool, error) {
	l, ok := m.loans[id]
	if !ok || l.Status != circulation.LoanActive {
		return false, nil
	}
	l.Status = circulation.LoanReturned
	l.ReturnedOn = &returnedOn
	m.loans[id] = l
	return true, nil
}

func (m *Store) ListActiveLoans(_ context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLoansLocked(userID, true), nil
}

func (m *Store) ListLoansByUser(_ context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLoansLocked(userID, false), nil
}

func (m *Store) listLoansLocked(userID circulation.UserID, activeOnly bool) []circulation.Loan {
	var out []circulation.Loan
	for _, l := range m.loans {
		if l.UserID != userID {
			continue
		}
		if activeOnly && l.Status != circulation.LoanActive {
			continue
		}
		out = append(out, l)
	}
	if activeOnly {
		// oldest first, matching the return-desk view
		sort.Slice(out, func(i, j int) bool {
			if !out[i].LoanDate.Equal(out[j].LoanDate) {
				return out[i].LoanDate.Before(out[j].LoanDate)
			}
			return out[i].ID < out[j].ID
		})
	} else {
		// newest first, matching the history view
		sort.Slice(out, func(i, j int) bool {
			if !out[i].LoanDate.Equal(out[j].LoanDate) {
				return out[j].LoanDate.Before(out[i].LoanDate)
			}
			return out[i].ID > out[j].ID
		})
	}
	return out
}

// =============================================================================
// FINES
// =============================================================================

func (m *Store) InsertFine(_ context.Context, f circulation.Fine) (circulation.FineID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertFineLocked(f)
}

func (m *Store) insertFineLocked(f circulation.Fine) (circulation.FineID, error) {
	m.nextFineID++
	f.ID = m.nextFineID
	m.fines[f.ID] = f
	return f.ID, nil
}

func (m *Store) GetFine(_ context.Context, id circulation.FineID) (*circulation.Fine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getFineLocked(id)
}

func (m *Store) getFineLocked(id circulation.FineID) (*circulation.Fine, error) {
	f, ok := m.fines[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *Store) MarkFinePaid(_ context.Context, id circulation.FineID, paidOn circulation.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markFinePaidLocked(id, paidOn)
}

func (m *Store) markFinePaidLocked(id circulation.FineID, paidOn circulation.Date) (bool, error) {
	f, ok := m.fines[id]
	if !ok || f.Status != circulation.FineOwed {
		return false, nil
	}
	f.Status = circulation.FinePaid
	f.PaidOn = &paidOn
	m.fines[id] = f
	return true, nil
}

func (m *Store) ListFinesByUser(_ context.Context, userID circulation.UserID) ([]circulation.Fine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listFinesLocked(userID), nil
}

func (m *Store) listFinesLocked(userID circulation.UserID) []circulation.Fine {
	var out []circulation.Fine
	for _, f := range m.fines {
		l, ok := m.loans[f.LoanID]
		if !ok || l.UserID != userID {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedOn.Equal(out[j].GeneratedOn) {
			return out[j].GeneratedOn.Before(out[i].GeneratedOn)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Store) InsertReservation(_ context.Context, r circulation.Reservation) (circulation.ReservationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertReservationLocked(r)
}

func (m *Store) insertReservationLocked(r circulation.Reservation) (circulation.ReservationID, error) {
	// same uniqueness rule the SQLite partial index enforces
	for _, existing := range m.reservations {
		if existing.BookID == r.BookID && existing.UserID == r.UserID &&
			existing.Status == circulation.ReservationPending {
			return 0, circulation.ErrDuplicateReservation
		}
	}
	m.nextReservationID++
	r.ID = m.nextReservationID
	m.reservations[r.ID] = r
	return r.ID, nil
}

func (m *Store) GetReservation(_ context.Context, id circulation.ReservationID) (*circulation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReservationLocked(id)
}

func (m *Store) getReservationLocked(id circulation.ReservationID) (*circulation.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) UpdateReservationStatus(_ context.Context, id circulation.ReservationID, to circulation.ReservationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateReservationStatusLocked(id, to)
}

func (m *Store) updateReservationStatusLocked(id circulation.ReservationID, to circulation.ReservationStatus) (bool, error) {
	r, ok := m.reservations[id]
	if !ok || r.Status != circulation.ReservationPending {
		return false, nil
	}
	r.Status = to
	m.reservations[id] = r
	return true, nil
}

func (m *Store) ListReservableBooks(_ context.Context) ([]circulation.ReservableBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReservableBooksLocked(), nil
}

func (m *Store) listReservableBooksLocked() []circulation.ReservableBook {
	pending := make(map[circulation.BookID]int)
	for _, r := range m.reservations {
		if r.Status == circulation.ReservationPending {
			pending[r.BookID]++
		}
	}

	var out []circulation.ReservableBook
	for _, b := range m.books {
		if b.AvailableCopies == 0 {
			out = append(out, circulation.ReservableBook{Book: b, PendingCount: pending[b.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Book.Title != out[j].Book.Title {
			return out[i].Book.Title < out[j].Book.Title
		}
		return out[i].Book.ID < out[j].Book.ID
	})
	return out
}

func (m *Store) ListPendingReservations(_ context.Context, bookID circulation.BookID) ([]circulation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPendingReservationsLocked(bookID), nil
}

func (m *Store) listPendingReservationsLocked(bookID circulation.BookID) []circulation.Reservation {
	var out []circulation.Reservation
	for _, r := range m.reservations {
		if r.BookID == bookID && r.Status == circulation.ReservationPending {
			out = append(out, r)
		}
	}
	// oldest first: queue position
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReservedOn.Equal(out[j].ReservedOn) {
			return out[i].ReservedOn.Before(out[j].ReservedOn)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (m *Store) WithTx(_ context.Context, fn func(circulation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	books        map[circulation.BookID]circulation.Book
	users        map[circulation.UserID]circulation.User
	loans        map[circulation.LoanID]circulation.Loan
	fines        map[circulation.FineID]circulation.Fine
	reservations map[circulation.ReservationID]circulation.Reservation

	nextBookID        circulation.BookID
	nextUserID        circulation.UserID
	nextLoanID        circulation.LoanID
	nextFineID        circulation.FineID
	nextReservationID circulation.ReservationID
}

func (m *Store) snapshot() storeSnapshot {
	return storeSnapshot{
		books:             copyMap(m.books),
		users:             copyMap(m.users),
		loans:             copyMap(m.loans),
		fines:             copyMap(m.fines),
		reservations:      copyMap(m.reservations),
		nextBookID:        m.nextBookID,
		nextUserID:        m.nextUserID,
		nextLoanID:        m.nextLoanID,
		nextFineID:        m.nextFineID,
		nextReservationID: m.nextReservationID,
	}
}

func (m *Store) restore(s storeSnapshot) {
	m.books = s.books
	m.users = s.users
	m.loans = s.loans
	m.fines = s.fines
	m.reservations = s.reservations
	m.nextBookID = s.nextBookID
	m.nextUserID = s.nextUserID
	m.nextLoanID = s.nextLoanID
	m.nextFineID = s.nextFineID
	m.nextReservationID = s.nextReservationID
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// txView delegates to the parent's locked methods; the parent's mutex is
// held for the whole transaction, so no locking here.
type txView struct {
	parent *Store
}

func (tv *txView) InsertBook(_ context.Context, b circulation.Book) (circulation.BookID, error) {
	return tv.parent.insertBookLocked(b)
}

func (tv *txView) GetBook(_ context.Context, id circulation.BookID) (*circulation.Book, error) {
	return tv.parent.getBookLocked(id)
}

func (tv *txView) ListBooks(_ context.Context) ([]circulation.Book, error) {
	return tv.parent.listBooksLocked(func(circulation.Book) bool { return true }), nil
}

func (tv *txView) ListAvailableBooks(_ context.Context) ([]circulation.Book, error) {
	return tv.parent.listBooksLocked(func(b circulation.Book) bool { return b.AvailableCopies > 0 }), nil
}

func (tv *txView) ClaimCopy(_ context.Context, id circulation.BookID) error {
	return tv.parent.claimCopyLocked(id)
}

func (tv *txView) RestoreCopy(_ context.Context, id circulation.BookID) error {
	return tv.parent.restoreCopyLocked(id)
}

func (tv *txView) InsertUser(_ context.Context, u circulation.User) (circulation.UserID, error) {
	return tv.parent.insertUserLocked(u)
}

func (tv *txView) GetUser(_ context.Context, id circulation.UserID) (*circulation.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txView) ListUsers(_ context.Context) ([]circulation.User, error) {
	return tv.parent.listUsersLocked(), nil
}

func (tv *txView) InsertLoan(_ context.Context, l circulation.Loan) (circulation.LoanID, error) {
	return tv.parent.insertLoanLocked(l)
}

func (tv *txView) GetLoan(_ context.Context, id circulation.LoanID) (*circulation.Loan, error) {
	return tv.parent.getLoanLocked(id)
}

func (tv *txView) MarkLoanReturned(_ context.Context, id circulation.LoanID, returnedOn circulation.Date) (bool, error) {
	return tv.parent.markLoanReturnedLocked(id, returnedOn)
}

func (tv *txView) ListActiveLoans(_ context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	return tv.parent.listLoansLocked(userID, true), nil
}

func (tv *txView) ListLoansByUser(_ context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	return tv.parent.listLoansLocked(userID, false), nil
}

func (tv *txView) InsertFine(_ context.Context, f circulation.Fine) (circulation.FineID, error) {
	return tv.parent.insertFineLocked(f)
}

func (tv *txView) GetFine(_ context.Context, id circulation.FineID) (*circulation.Fine, error) {
	return tv.parent.getFineLocked(id)
}

func (tv *txView) MarkFinePaid(_ context.Context, id circulation.FineID, paidOn circulation.Date) (bool, error) {
	return tv.parent.markFinePaidLocked(id, paidOn)
}

func (tv *txView) ListFinesByUser(_ context.Context, userID circulation.UserID) ([]circulation.Fine, error) {
	return tv.parent.listFinesLocked(userID), nil
}

func (tv *txView) InsertReservation(_ context.Context, r circulation.Reservation) (circulation.ReservationID, error) {
	return tv.parent.insertReservationLocked(r)
}

func (tv *txView) GetReservation(_ context.Context, id circulation.ReservationID) (*circulation.Reservation, error) {
	return tv.parent.getReservationLocked(id)
}

func (tv *txView) UpdateReservationStatus(_ context.Context, id circulation.ReservationID, to circulation.ReservationStatus) (bool, error) {
	return tv.parent.updateReservationStatusLocked(id, to)
}

func (tv *txView) ListReservableBooks(_ context.Context) ([]circulation.ReservableBook, error) {
	return tv.parent.listReservableBooksLocked(), nil
}

func (tv *txView) ListPendingReservations(_ context.Context, bookID circulation.BookID) ([]circulation.Reservation, error) {
	return tv.parent.listPendingReservationsLocked(bookID), nil
}
