/*
Package sqlite provides a SQLite-backed implementation of the circulation
storage interfaces.

PURPOSE:
  Implements circulation.Store and circulation.TxStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

INVARIANTS PUSHED INTO THE SCHEMA:
  The store enforces the circulation invariants at the database level:
  - available_copies carries a CHECK (>= 0); the counter can never go
    negative no matter what application code does
  - ClaimCopy is a single conditional UPDATE (decrement WHERE copies > 0),
    so the availability check and the decrement cannot interleave with a
    concurrent borrower
  - idx_reservations_pending is a partial UNIQUE index over pending
    (book_id, user_id) pairs: duplicate holds are rejected by the database,
    not by a read-then-write pre-check
  - Loan and fine state transitions are conditional UPDATEs guarded on the
    current status, so each transition happens at most once

KEY TABLES:
  books:        catalog records with the available_copies counter
  users:        borrower records (foreign-key targets for loans/reservations)
  loans:        the borrowing ledger; rows are never deleted
  fines:        overdue penalties; amounts stored as decimal strings
  reservations: the hold queue for exhausted titles

INDEXES:
  Critical indexes for performance:
  - idx_loans_user_status: "this user's active loans" (hot path for returns)
  - idx_reservations_pending: duplicate-hold enforcement (partial unique)
  - idx_reservations_book_status: pending counts per title
  - idx_fines_status: outstanding-fine lookups

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/library.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := circulation.NewLoanLedger(store, nil, policy, fines)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - circulation/store.go: Interface definitions
  - circulation/ledger.go: Higher-level ledger using Store
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/shelfwise/circulation-engine/circulation"
)

// Store implements circulation.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) a SQLite store at the given path. Use ":memory:"
// for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite takes one writer at a time; a single pooled connection also
	// keeps ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		book_id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		isbn TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		publisher TEXT NOT NULL DEFAULT '',
		available_copies INTEGER NOT NULL DEFAULT 0 CHECK (available_copies >= 0),
		shelf_location TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);
	CREATE INDEX IF NOT EXISTS idx_books_available ON books(available_copies);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loans (
		loan_id INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id INTEGER NOT NULL REFERENCES books(book_id),
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		loan_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		returned_on TEXT,
		status TEXT NOT NULL CHECK (status IN ('active', 'returned'))
	);

	CREATE INDEX IF NOT EXISTS idx_loans_user_status ON loans(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_loans_book ON loans(book_id);

	CREATE TABLE IF NOT EXISTS fines (
		fine_id INTEGER PRIMARY KEY AUTOINCREMENT,
		loan_id INTEGER NOT NULL REFERENCES loans(loan_id),
		amount TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('owed', 'paid')),
		generated_on TEXT NOT NULL,
		paid_on TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_fines_loan ON fines(loan_id);
	CREATE INDEX IF NOT EXISTS idx_fines_status ON fines(status);

	CREATE TABLE IF NOT EXISTS reservations (
		reservation_id INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id INTEGER NOT NULL REFERENCES books(book_id),
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		reserved_on TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'fulfilled', 'cancelled'))
	);

	-- CRITICAL: at most one pending hold per (book, user). The partial index
	-- closes the check-then-insert race; terminal holds don't count.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_pending
		ON reservations(book_id, user_id)
		WHERE status = 'pending';

	CREATE INDEX IF NOT EXISTS idx_reservations_book_status
		ON reservations(book_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (circulation.TxStore interface)
// =============================================================================

// WithTx executes fn within a single database transaction. Reads inside fn
// see the transaction's own writes; any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(circulation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every statement on the enclosing transaction. The parent's
// mutex is held for the transaction's whole lifetime, so txStore methods
// take no locks themselves.
type txStore struct {
	q dbtx
}

// =============================================================================
// CATALOG (circulation.CatalogStore interface)
// =============================================================================

func (s *Store) InsertBook(ctx context.Context, b circulation.Book) (circulation.BookID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertBook(ctx, s.db, b)
}

func (t *txStore) InsertBook(ctx context.Context, b circulation.Book) (circulation.BookID, error) {
	return insertBook(ctx, t.q, b)
}

func insertBook(ctx context.Context, q dbtx, b circulation.Book) (circulation.BookID, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO books (title, isbn, year, publisher, available_copies, shelf_location)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.Title, b.ISBN, b.Year, b.Publisher, b.AvailableCopies, b.ShelfLocation,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert book: %w", err)
	}
	id, err := res.LastInsertId()
	return circulation.BookID(id), err
}

func (s *Store) GetBook(ctx context.Context, id circulation.BookID) (*circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBook(ctx, s.db, id)
}

func (t *txStore) GetBook(ctx context.Context, id circulation.BookID) (*circulation.Book, error) {
	return getBook(ctx, t.q, id)
}

func getBook(ctx context.Context, q dbtx, id circulation.BookID) (*circulation.Book, error) {
	row := q.QueryRowContext(ctx, `
		SELECT book_id, title, isbn, year, publisher, available_copies, shelf_location
		FROM books WHERE book_id = ?`, id)

	var b circulation.Book
	err := row.Scan(&b.ID, &b.Title, &b.ISBN, &b.Year, &b.Publisher, &b.AvailableCopies, &b.ShelfLocation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan book: %w", err)
	}
	return &b, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBooks(ctx, s.db)
}

func (t *txStore) ListBooks(ctx context.Context) ([]circulation.Book, error) {
	return listBooks(ctx, t.q)
}

func listBooks(ctx context.Context, q dbtx) ([]circulation.Book, error) {
	return queryBooks(ctx, q, `
		SELECT book_id, title, isbn, year, publisher, available_copies, shelf_location
		FROM books ORDER BY title, book_id`)
}

func (s *Store) ListAvailableBooks(ctx context.Context) ([]circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAvailableBooks(ctx, s.db)
}

func (t *txStore) ListAvailableBooks(ctx context.Context) ([]circulation.Book, error) {
	return listAvailableBooks(ctx, t.q)
}

func listAvailableBooks(ctx context.Context, q dbtx) ([]circulation.Book, error) {
	return queryBooks(ctx, q, `
		SELECT book_id, title, isbn, year, publisher, available_copies, shelf_location
		FROM books WHERE available_copies > 0 ORDER BY title, book_id`)
}

func queryBooks(ctx context.Context, q dbtx, query string, args ...any) ([]circulation.Book, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []circulation.Book
	for rows.Next() {
		var b circulation.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.ISBN, &b.Year, &b.Publisher, &b.AvailableCopies, &b.ShelfLocation); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *Store) ClaimCopy(ctx context.Context, id circulation.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return claimCopy(ctx, s.db, id)
}

func (t *txStore) ClaimCopy(ctx context.Context, id circulation.BookID) error {
	return claimCopy(ctx, t.q, id)
}

// claimCopy is the availability gate: the check and the decrement are one
// statement, so two borrowers can never both take the last copy.
func claimCopy(ctx context.Context, q dbtx, id circulation.BookID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE books SET available_copies = available_copies - 1
		WHERE book_id = ? AND available_copies > 0`, id)
	if err != nil {
		return fmt.Errorf("failed to claim copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// missing book or exhausted copies; probe to tell them apart
		b, err := getBook(ctx, q, id)
		if err != nil {
			return err
		}
		if b == nil {
			return circulation.ErrBookNotFound
		}
		return circulation.ErrNoCopiesAvailable
	}
	return nil
}

func (s *Store) RestoreCopy(ctx context.Context, id circulation.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return restoreCopy(ctx, s.db, id)
}

func (t *txStore) RestoreCopy(ctx context.Context, id circulation.BookID) error {
	return restoreCopy(ctx, t.q, id)
}

func restoreCopy(ctx context.Context, q dbtx, id circulation.BookID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE books SET available_copies = available_copies + 1
		WHERE book_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to restore copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return circulation.ErrBookNotFound
	}
	return nil
}

// =============================================================================
// USERS (circulation.UserStore interface)
// =============================================================================

func (s *Store) InsertUser(ctx context.Context, u circulation.User) (circulation.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertUser(ctx, s.db, u)
}

func (t *txStore) InsertUser(ctx context.Context, u circulation.User) (circulation.UserID, error) {
	return insertUser(ctx, t.q, u)
}

func insertUser(ctx context.Context, q dbtx, u circulation.User) (circulation.UserID, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO users (name) VALUES (?)`, u.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	return circulation.UserID(id), err
}

func (s *Store) GetUser(ctx context.Context, id circulation.UserID) (*circulation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func (t *txStore) GetUser(ctx context.Context, id circulation.UserID) (*circulation.User, error) {
	return getUser(ctx, t.q, id)
}

func getUser(ctx context.Context, q dbtx, id circulation.UserID) (*circulation.User, error) {
	var u circulation.User
	err := q.QueryRowContext(ctx, `SELECT user_id, name FROM users WHERE user_id = ?`, id).
		Scan(&u.ID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]circulation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(ctx, s.db)
}

func (t *txStore) ListUsers(ctx context.Context) ([]circulation.User, error) {
	return listUsers(ctx, t.q)
}

func listUsers(ctx context.Context, q dbtx) ([]circulation.User, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id, name FROM users ORDER BY name, user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []circulation.User
	for rows.Next() {
		var u circulation.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// LOANS (circulation.LoanStore interface)
// =============================================================================

func (s *Store) InsertLoan(ctx context.Context, l circulation.Loan) (circulation.LoanID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertLoan(ctx, s.db, l)
}

func (t *txStore) InsertLoan(ctx context.Context, l circulation.Loan) (circulation.LoanID, error) {
	return insertLoan(ctx, t.q, l)
}

func insertLoan(ctx context.Context, q dbtx, l circulation.Loan) (circulation.LoanID, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO loans (book_id, user_id, loan_date, due_date, returned_on, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.BookID, l.UserID, formatDate(l.LoanDate), formatDate(l.DueDate),
		formatDatePtr(l.ReturnedOn), string(l.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert loan: %w", err)
	}
	id, err := res.LastInsertId()
	return circulation.LoanID(id), err
}

func (s *Store) GetLoan(ctx context.Context, id circulation.LoanID) (*circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLoan(ctx, s.db, id)
}

func (t *txStore) GetLoan(ctx context.Context, id circulation.LoanID) (*circulation.Loan, error) {
	return getLoan(ctx, t.q, id)
}

func getLoan(ctx context.Context, q dbtx, id circulation.LoanID) (*circulation.Loan, error) {
	loans, err := queryLoans(ctx, q, `
		SELECT loan_id, book_id, user_id, loan_date, due_date, returned_on, status
		FROM loans WHERE loan_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, nil
	}
	return &loans[0], nil
}

func (s *Store) MarkLoanReturned(ctx context.Context, id circulation.LoanID, returnedOn circulation.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markLoanReturned(ctx, s.db, id, returnedOn)
}

func (t *txStore) MarkLoanReturned(ctx context.Context, id circulation.LoanID, returnedOn circulation.Date) (bool, error) {
	return markLoanReturned(ctx, t.q, id, returnedOn)
}

func markLoanReturned(ctx context.Context, q dbtx, id circulation.LoanID, returnedOn circulation.Date) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE loans SET status = 'returned', returned_on = ?
		WHERE loan_id = ? AND status = 'active'`,
		formatDate(returnedOn), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark loan returned: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ListActiveLoans(ctx context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveLoans(ctx, s.db, userID)
}

func (t *txStore) ListActiveLoans(ctx context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	return listActiveLoans(ctx, t.q, userID)
}

func listActiveLoans(ctx context.Context, q dbtx, userID circulation.UserID) ([]circulation.Loan, error) {
	return queryLoans(ctx, q, `
		SELECT loan_id, book_id, user_id, loan_date, due_date, returned_on, status
		FROM loans WHERE user_id = ? AND status = 'active'
		ORDER BY loan_date ASC, loan_id ASC`, userID)
}

func (s *Store) ListLoansByUser(ctx context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLoansByUser(ctx, s.db, userID)
}

func (t *txStore) ListLoansByUser(ctx context.Context, userID circulation.UserID) ([]circulation.Loan, error) {
	return listLoansByUser(ctx, t.q, userID)
}

func listLoansByUser(ctx context.Context, q dbtx, userID circulation.UserID) ([]circulation.Loan, error) {
	return queryLoans(ctx, q, `
		SELECT loan_id, book_id, user_id, loan_date, due_date, returned_on, status
		FROM loans WHERE user_id = ?
		ORDER BY loan_date DESC, loan_id DESC`, userID)
}

func queryLoans(ctx context.Context, q dbtx, query string, args ...any) ([]circulation.Loan, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []circulation.Loan
	for rows.Next() {
		var (
			l          circulation.Loan
			loanDate   string
			dueDate    string
			returnedOn sql.NullString
			status     string
		)
		if err := rows.Scan(&l.ID, &l.BookID, &l.UserID, &loanDate, &dueDate, &returnedOn, &status); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		if l.LoanDate, err = parseDate(loanDate); err != nil {
			return nil, err
		}
		if l.DueDate, err = parseDate(dueDate); err != nil {
			return nil, err
		}
		if l.ReturnedOn, err = parseDatePtr(returnedOn); err != nil {
			return nil, err
		}
		l.Status = circulation.LoanStatus(status)
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// =============================================================================
// FINES (circulation.FineStore interface)
// =============================================================================

func (s *Store) InsertFine(ctx context.Context, f circulation.Fine) (circulation.FineID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertFine(ctx, s.db, f)
}

func (t *txStore) InsertFine(ctx context.Context, f circulation.Fine) (circulation.FineID, error) {
	return insertFine(ctx, t.q, f)
}

func insertFine(ctx context.Context, q dbtx, f circulation.Fine) (circulation.FineID, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO fines (loan_id, amount, status, generated_on, paid_on)
		VALUES (?, ?, ?, ?, ?)`,
		f.LoanID, f.Amount.String(), string(f.Status),
		formatDate(f.GeneratedOn), formatDatePtr(f.PaidOn),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fine: %w", err)
	}
	id, err := res.LastInsertId()
	return circulation.FineID(id), err
}

func (s *Store) GetFine(ctx context.Context, id circulation.FineID) (*circulation.Fine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFine(ctx, s.db, id)
}

func (t *txStore) GetFine(ctx context.Context, id circulation.FineID) (*circulation.Fine, error) {
	return getFine(ctx, t.q, id)
}

func getFine(ctx context.Context, q dbtx, id circulation.FineID) (*circulation.Fine, error) {
	fines, err := queryFines(ctx, q, `
		SELECT fine_id, loan_id, amount, status, generated_on, paid_on
		FROM fines WHERE fine_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(fines) == 0 {
		return nil, nil
	}
	return &fines[0], nil
}

func (s *Store) MarkFinePaid(ctx context.Context, id circulation.FineID, paidOn circulation.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markFinePaid(ctx, s.db, id, paidOn)
}

func (t *txStore) MarkFinePaid(ctx context.Context, id circulation.FineID, paidOn circulation.Date) (bool, error) {
	return markFinePaid(ctx, t.q, id, paidOn)
}

func markFinePaid(ctx context.Context, q dbtx, id circulation.FineID, paidOn circulation.Date) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE fines SET status = 'paid', paid_on = ?
		WHERE fine_id = ? AND status = 'owed'`,
		formatDate(paidOn), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark fine paid: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ListFinesByUser(ctx context.Context, userID circulation.UserID) ([]circulation.Fine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listFinesByUser(ctx, s.db, userID)
}

func (t *txStore) ListFinesByUser(ctx context.Context, userID circulation.UserID) ([]circulation.Fine, error) {
	return listFinesByUser(ctx, t.q, userID)
}

func listFinesByUser(ctx context.Context, q dbtx, userID circulation.UserID) ([]circulation.Fine, error) {
	return queryFines(ctx, q, `
		SELECT f.fine_id, f.loan_id, f.amount, f.status, f.generated_on, f.paid_on
		FROM fines f
		JOIN loans l ON f.loan_id = l.loan_id
		WHERE l.user_id = ?
		ORDER BY f.generated_on DESC, f.fine_id DESC`, userID)
}

func queryFines(ctx context.Context, q dbtx, query string, args ...any) ([]circulation.Fine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fines: %w", err)
	}
	defer rows.Close()

	var fines []circulation.Fine
	for rows.Next() {
		var (
			f           circulation.Fine
			amount      string
			status      string
			generatedOn string
			paidOn      sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.LoanID, &amount, &status, &generatedOn, &paidOn); err != nil {
			return nil, fmt.Errorf("failed to scan fine: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid fine amount %q: %w", amount, err)
		}
		f.Amount = d
		f.Status = circulation.FineStatus(status)
		if f.GeneratedOn, err = parseDate(generatedOn); err != nil {
			return nil, err
		}
		if f.PaidOn, err = parseDatePtr(paidOn); err != nil {
			return nil, err
		}
		fines = append(fines, f)
	}
	return fines, rows.Err()
}

// =============================================================================
// RESERVATIONS (circulation.ReservationStore interface)
// =============================================================================

func (s *Store) InsertReservation(ctx context.Context, r circulation.Reservation) (circulation.ReservationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReservation(ctx, s.db, r)
}

func (t *txStore) InsertReservation(ctx context.Context, r circulation.Reservation) (circulation.ReservationID, error) {
	return insertReservation(ctx, t.q, r)
}

func insertReservation(ctx context.Context, q dbtx, r circulation.Reservation) (circulation.ReservationID, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO reservations (book_id, user_id, reserved_on, status)
		VALUES (?, ?, ?, ?)`,
		r.BookID, r.UserID, formatDate(r.ReservedOn), string(r.Status),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, circulation.ErrDuplicateReservation
		}
		return 0, fmt.Errorf("failed to insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	return circulation.ReservationID(id), err
}

func (s *Store) GetReservation(ctx context.Context, id circulation.ReservationID) (*circulation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReservation(ctx, s.db, id)
}

func (t *txStore) GetReservation(ctx context.Context, id circulation.ReservationID) (*circulation.Reservation, error) {
	return getReservation(ctx, t.q, id)
}

func getReservation(ctx context.Context, q dbtx, id circulation.ReservationID) (*circulation.Reservation, error) {
	var (
		r          circulation.Reservation
		reservedOn string
		status     string
	)
	err := q.QueryRowContext(ctx, `
		SELECT reservation_id, book_id, user_id, reserved_on, status
		FROM reservations WHERE reservation_id = ?`, id).
		Scan(&r.ID, &r.BookID, &r.UserID, &reservedOn, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}
	if r.ReservedOn, err = parseDate(reservedOn); err != nil {
		return nil, err
	}
	r.Status = circulation.ReservationStatus(status)
	return &r, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id circulation.ReservationID, to circulation.ReservationStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReservationStatus(ctx, s.db, id, to)
}

func (t *txStore) UpdateReservationStatus(ctx context.Context, id circulation.ReservationID, to circulation.ReservationStatus) (bool, error) {
	return updateReservationStatus(ctx, t.q, id, to)
}

func updateReservationStatus(ctx context.Context, q dbtx, id circulation.ReservationID, to circulation.ReservationStatus) (bool, error) {
	// pending is the only non-terminal status; transitions out of fulfilled
	// or cancelled are silently rejected here and surfaced by the caller
	res, err := q.ExecContext(ctx, `
		UPDATE reservations SET status = ?
		WHERE reservation_id = ? AND status = 'pending'`,
		string(to), id)
	if err != nil {
		return false, fmt.Errorf("failed to update reservation: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ListReservableBooks(ctx context.Context) ([]circulation.ReservableBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReservableBooks(ctx, s.db)
}

func (t *txStore) ListReservableBooks(ctx context.Context) ([]circulation.ReservableBook, error) {
	return listReservableBooks(ctx, t.q)
}

func listReservableBooks(ctx context.Context, q dbtx) ([]circulation.ReservableBook, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT b.book_id, b.title, b.isbn, b.year, b.publisher,
		       b.available_copies, b.shelf_location,
		       COALESCE(r.pending_count, 0)
		FROM books b
		LEFT JOIN (
			SELECT book_id, COUNT(*) AS pending_count
			FROM reservations
			WHERE status = 'pending'
			GROUP BY book_id
		) r ON b.book_id = r.book_id
		WHERE b.available_copies = 0
		ORDER BY b.title, b.book_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservable books: %w", err)
	}
	defer rows.Close()

	var out []circulation.ReservableBook
	for rows.Next() {
		var rb circulation.ReservableBook
		if err := rows.Scan(&rb.Book.ID, &rb.Book.Title, &rb.Book.ISBN, &rb.Book.Year,
			&rb.Book.Publisher, &rb.Book.AvailableCopies, &rb.Book.ShelfLocation,
			&rb.PendingCount); err != nil {
			return nil, fmt.Errorf("failed to scan reservable book: %w", err)
		}
		out = append(out, rb)
	}
	return out, rows.Err()
}

func (s *Store) ListPendingReservations(ctx context.Context, bookID circulation.BookID) ([]circulation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPendingReservations(ctx, s.db, bookID)
}

func (t *txStore) ListPendingReservations(ctx context.Context, bookID circulation.BookID) ([]circulation.Reservation, error) {
	return listPendingReservations(ctx, t.q, bookID)
}

func listPendingReservations(ctx context.Context, q dbtx, bookID circulation.BookID) ([]circulation.Reservation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT reservation_id, book_id, user_id, reserved_on, status
		FROM reservations
		WHERE book_id = ? AND status = 'pending'
		ORDER BY reserved_on ASC, reservation_id ASC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []circulation.Reservation
	for rows.Next() {
		var (
			r          circulation.Reservation
			reservedOn string
			status     string
		)
		if err := rows.Scan(&r.ID, &r.BookID, &r.UserID, &reservedOn, &status); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		if r.ReservedOn, err = parseDate(reservedOn); err != nil {
			return nil, err
		}
		r.Status = circulation.ReservationStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"fines", "loans", "reservations", "books", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatDate(d circulation.Date) string {
	return d.Time.Format("2006-01-02")
}

func formatDatePtr(d *circulation.Date) *string {
	if d == nil {
		return nil
	}
	s := formatDate(*d)
	return &s
}

func parseDate(s string) (circulation.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return circulation.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return circulation.Date{Time: t}, nil
}

func parseDatePtr(s sql.NullString) (*circulation.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := parseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
