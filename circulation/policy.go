package circulation

// =============================================================================
// LOAN POLICY - Administrative bounds on loan terms
// =============================================================================

// LoanPolicy bounds loan due dates. The due date for a new loan must fall in
// [today, today+HorizonDays]; the loan form defaults to today+TermDays.
type LoanPolicy struct {
	// TermDays is the default loan term.
	TermDays int

	// HorizonDays is the latest a due date may be set, counted from today.
	HorizonDays int
}

// DefaultLoanPolicy matches the library's standing rules: a two-week default
// term, capped at thirty days out.
func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{TermDays: 14, HorizonDays: 30}
}

// DefaultDueDate returns the due date the loan form pre-fills.
func (p LoanPolicy) DefaultDueDate(today Date) Date {
	return today.AddDays(p.TermDays)
}

// ValidateDueDate checks the administrative window. Same-day due dates are
// allowed; past dates and dates beyond the horizon are not.
func (p LoanPolicy) ValidateDueDate(today, due Date) error {
	latest := today.AddDays(p.HorizonDays)
	if due.Before(today) || due.After(latest) {
		return &InvalidDueDateError{Given: due, Earliest: today, Latest: latest}
	}
	return nil
}
