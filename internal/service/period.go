package service

import "time"

// Period is a calendar month in a given location. Start is the first day at local
// midnight, End the last day at local midnight, Next the first day of the next month.
type Period struct {
	Start time.Time
	End   time.Time
	Next  time.Time
}

// MonthWindow returns the period for month's year and month, evaluated in loc.
// A zero month means the month containing now.
func MonthWindow(month, now time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.Local
	}
	if month.IsZero() {
		month = now.In(loc)
	}
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	next := start.AddDate(0, 1, 0)
	return Period{
		Start: start,
		End:   next.AddDate(0, 0, -1),
		Next:  next,
	}
}

// Contains reports whether t falls inside [Start, Next)
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.Next)
}

// Label formats the period as YYYY-MM
func (p Period) Label() string {
	return p.Start.Format("2006-01")
}
