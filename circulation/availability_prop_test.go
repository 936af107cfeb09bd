package circulation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/shelfwise/circulation-engine/circulation"
	"github.com/shelfwise/circulation-engine/store/memory"
)

// Availability conservation: under any interleaving of borrows and returns,
// every book's available count stays in [0, initial] and always equals
// initial minus its open loans.
func TestAvailability_Conserved_UnderRandomLifecycles(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := memory.New()
		ledger := ledgerOverMemory(store)

		bookCount := rapid.IntRange(1, 4).Draw(rt, "books")
		initial := make(map[circulation.BookID]int)
		var bookIDs []circulation.BookID
		for i := 0; i < bookCount; i++ {
			copies := rapid.IntRange(0, 3).Draw(rt, "copies")
			id, err := store.InsertBook(ctx, circulation.Book{Title: "b", AvailableCopies: copies})
			require.NoError(rt, err)
			initial[id] = copies
			bookIDs = append(bookIDs, id)
		}

		userID, err := store.InsertUser(ctx, circulation.User{Name: "u"})
		require.NoError(rt, err)

		open := make(map[circulation.BookID][]circulation.LoanID)

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			bookID := bookIDs[rapid.IntRange(0, len(bookIDs)-1).Draw(rt, "book")]

			if rapid.Bool().Draw(rt, "borrow") || len(open[bookID]) == 0 {
				loan, err := ledger.CreateLoan(ctx, bookID, userID, circulation.Date{})
				if errors.Is(err, circulation.ErrNoCopiesAvailable) {
					continue
				}
				require.NoError(rt, err)
				open[bookID] = append(open[bookID], loan.ID)
			} else {
				loans := open[bookID]
				idx := rapid.IntRange(0, len(loans)-1).Draw(rt, "loan")
				_, err := ledger.ReturnLoan(ctx, loans[idx])
				require.NoError(rt, err)
				open[bookID] = append(loans[:idx], loans[idx+1:]...)
			}

			for _, id := range bookIDs {
				b, err := store.GetBook(ctx, id)
				require.NoError(rt, err)
				require.NotNil(rt, b)
				require.GreaterOrEqual(rt, b.AvailableCopies, 0)
				require.LessOrEqual(rt, b.AvailableCopies, initial[id])
				require.Equal(rt, initial[id]-len(open[id]), b.AvailableCopies)
			}
		}
	})
}

func ledgerOverMemory(store *memory.Store) *circulation.LoanLedger {
	clock := circulation.FixedClock{Day: testDay}
	fines := circulation.NewFineCalculator(store, clock, circulation.DefaultFineSchedule())
	return circulation.NewLoanLedger(store, clock, circulation.DefaultLoanPolicy(), fines)
}
