package circulation

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granular time (loans, dues, and fines are all dated, not timed)
// =============================================================================

// Date is a calendar day in UTC. The zero value is "no date".
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{Time: t}, nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// DaysSince returns the whole days from other to d. Negative when d is
// earlier. This is the overdue-days computation: today.DaysSince(dueDate).
func (d Date) DaysSince(other Date) int {
	return int(d.Time.Sub(other.Time).Hours() / 24)
}

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// =============================================================================
// CLOCK - Injectable source of "today"
// =============================================================================

// Clock supplies the current day. Operations never call time.Now directly so
// tests can pin the calendar.
type Clock interface {
	Today() Date
}

// SystemClock follows the wall clock.
type SystemClock struct{}

func (SystemClock) Today() Date { return DateOf(time.Now()) }

// FixedClock always reports the same day. For tests.
type FixedClock struct {
	Day Date
}

func (c FixedClock) Today() Date { return c.Day }
