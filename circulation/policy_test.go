package circulation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/circulation-engine/circulation"
)

func TestLoanPolicy_DefaultDueDate(t *testing.T) {
	policy := circulation.DefaultLoanPolicy()
	assert.Equal(t, testDay.AddDays(14), policy.DefaultDueDate(testDay))

	custom := circulation.LoanPolicy{TermDays: 21, HorizonDays: 60}
	assert.Equal(t, testDay.AddDays(21), custom.DefaultDueDate(testDay))
}

func TestLoanPolicy_ValidateDueDate_Window(t *testing.T) {
	policy := circulation.DefaultLoanPolicy()

	assert.NoError(t, policy.ValidateDueDate(testDay, testDay))
	assert.NoError(t, policy.ValidateDueDate(testDay, testDay.AddDays(30)))

	err := policy.ValidateDueDate(testDay, testDay.AddDays(-1))
	assert.ErrorIs(t, err, circulation.ErrInvalidDueDate)

	err = policy.ValidateDueDate(testDay, testDay.AddDays(31))
	require.ErrorIs(t, err, circulation.ErrInvalidDueDate)

	var dueErr *circulation.InvalidDueDateError
	require.ErrorAs(t, err, &dueErr)
	assert.Equal(t, testDay.AddDays(31), dueErr.Given)
}

func TestDate_DaysSince(t *testing.T) {
	assert.Equal(t, 0, testDay.DaysSince(testDay))
	assert.Equal(t, 5, testDay.AddDays(5).DaysSince(testDay))
	assert.Equal(t, -5, testDay.DaysSince(testDay.AddDays(5)))

	// Crosses a DST-style month boundary cleanly; dates are UTC midnights.
	feb := circulation.NewDate(2025, time.February, 27)
	mar := circulation.NewDate(2025, time.March, 2)
	assert.Equal(t, 3, mar.DaysSince(feb))
}

func TestDate_ParseAndString_RoundTrip(t *testing.T) {
	d, err := circulation.ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, testDay, d)
	assert.Equal(t, "2025-03-10", d.String())

	_, err = circulation.ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestLoan_Overdue(t *testing.T) {
	loan := circulation.Loan{DueDate: testDay, Status: circulation.LoanActive}

	assert.False(t, loan.Overdue(testDay))
	assert.True(t, loan.Overdue(testDay.AddDays(1)))

	returned := loan
	returned.Status = circulation.LoanReturned
	assert.False(t, returned.Overdue(testDay.AddDays(10)))
}
