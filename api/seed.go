/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:

	Populates the database with a realistic small library: a handful of
	books, a few borrowers, and loans in various states (active, returned,
	overdue with a fine owed). Useful for demos and manual API exploration.

WHAT GETS SEEDED:

	Books:     six titles; one fully lent out so the reservation flow
	           can be exercised immediately
	Users:     four borrowers
	Loans:     a mix of open and returned loans; one past due
	Fines:     one owed fine, generated the normal way (late return)
	Holds:     one pending reservation on the fully-lent title

HOW SEEDING WORKS:
 1. Reset database (handler does this before calling SeedDemoData)
 2. Insert books and users directly through the store
 3. Open loans through the ledger, so copy counters stay consistent
 4. Return the late loan through the ledger, producing the fine

NOTE:

	Seeding resets the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: SeedDemo, ResetDemo handlers
*/
package api

import (
	"context"
	"fmt"

	"github.com/shelfwise/circulation-engine/circulation"
)

// SeedDemoData loads the sample library into the store. The ledger's own
// clock decides loan dates; the overdue case is opened directly through the
// store with dates already in the past.
func SeedDemoData(ctx context.Context, store circulation.TxStore, ledger *circulation.LoanLedger) (map[string]any, error) {
	books := []circulation.Book{
		{Title: "The Go Programming Language", ISBN: "978-0134190440", Year: 2015, Publisher: "Addison-Wesley", AvailableCopies: 3, ShelfLocation: "A1"},
		{Title: "Designing Data-Intensive Applications", ISBN: "978-1449373320", Year: 2017, Publisher: "O'Reilly", AvailableCopies: 2, ShelfLocation: "A2"},
		{Title: "Database Internals", ISBN: "978-1492040347", Year: 2019, Publisher: "O'Reilly", AvailableCopies: 2, ShelfLocation: "A2"},
		{Title: "The Pragmatic Programmer", ISBN: "978-0135957059", Year: 2019, Publisher: "Addison-Wesley", AvailableCopies: 1, ShelfLocation: "B1"},
		{Title: "Structure and Interpretation of Computer Programs", ISBN: "978-0262510875", Year: 1996, Publisher: "MIT Press", AvailableCopies: 4, ShelfLocation: "B3"},
		{Title: "Clean Architecture", ISBN: "978-0134494166", Year: 2017, Publisher: "Prentice Hall", AvailableCopies: 2, ShelfLocation: "B2"},
	}

	bookIDs := make([]circulation.BookID, len(books))
	for i, b := range books {
		id, err := store.InsertBook(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("seed book %q: %w", b.Title, err)
		}
		bookIDs[i] = id
	}

	users := []circulation.User{
		{Name: "Ana Souza"},
		{Name: "Bruno Lima"},
		{Name: "Carla Mendes"},
		{Name: "Diego Ferreira"},
	}

	userIDs := make([]circulation.UserID, len(users))
	for i, u := range users {
		id, err := store.InsertUser(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("seed user %q: %w", u.Name, err)
		}
		userIDs[i] = id
	}

	// Open loans through the ledger so the copy counters stay honest.
	openLoans := []struct {
		book circulation.BookID
		user circulation.UserID
	}{
		{bookIDs[0], userIDs[0]},
		{bookIDs[1], userIDs[1]},
		{bookIDs[3], userIDs[2]}, // takes the single Pragmatic Programmer copy
	}
	loanCount := 0
	var today circulation.Date
	for _, ol := range openLoans {
		loan, err := ledger.CreateLoan(ctx, ol.book, ol.user, circulation.Date{})
		if err != nil {
			return nil, fmt.Errorf("seed loan: %w", err)
		}
		today = loan.LoanDate
		loanCount++
	}

	// One completed lifecycle with a fine: open a loan that is already past
	// due, then return it the normal way.
	lateLoan, err := openBackdatedLoan(ctx, store, bookIDs[4], userIDs[3], today, 5)
	if err != nil {
		return nil, err
	}
	loanCount++
	receipt, err := ledger.ReturnLoan(ctx, lateLoan.ID)
	if err != nil {
		return nil, fmt.Errorf("seed late return: %w", err)
	}

	// A pending hold on the title that is now fully lent out.
	queue := circulation.NewReservationQueue(store, nil)
	if _, err := queue.Reserve(ctx, bookIDs[3], userIDs[0]); err != nil {
		return nil, fmt.Errorf("seed reservation: %w", err)
	}

	summary := map[string]any{
		"status":       "seeded",
		"books":        len(bookIDs),
		"users":        len(userIDs),
		"loans":        loanCount,
		"reservations": 1,
	}
	if receipt.Fine != nil {
		summary["fines"] = 1
		summary["fine_amount"] = receipt.Fine.Amount.StringFixed(2)
	}
	return summary, nil
}

// openBackdatedLoan records an active loan whose due date is already in the
// past, claiming the copy the same way the ledger does. Seeding-only;
// production loans are always opened through the ledger.
func openBackdatedLoan(ctx context.Context, store circulation.TxStore, bookID circulation.BookID, userID circulation.UserID, today circulation.Date, overdueDays int) (*circulation.Loan, error) {
	loan := circulation.Loan{
		BookID:   bookID,
		UserID:   userID,
		LoanDate: today.AddDays(-overdueDays - 14),
		DueDate:  today.AddDays(-overdueDays),
		Status:   circulation.LoanActive,
	}
	err := store.WithTx(ctx, func(s circulation.Store) error {
		if err := s.ClaimCopy(ctx, bookID); err != nil {
			return err
		}
		id, err := s.InsertLoan(ctx, loan)
		if err != nil {
			return err
		}
		loan.ID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed late loan: %w", err)
	}
	return &loan, nil
}
