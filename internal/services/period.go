package services

import (
	"time"

	"github.com/rickar/cal/v2"
)

// Period types.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodCustom  = "custom"
)

// Period is a date range with a semantic type used to scope aggregation.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"`
}

// endOfDay returns the last representable instant of t's day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeeklyPeriod returns the ISO week (Monday through Sunday) containing the
// day weeksAgo weeks before now. weeksAgo=0 is the current week.
func WeeklyPeriod(weeksAgo int) Period {
	return weeklyPeriodAt(time.Now(), weeksAgo)
}

func weeklyPeriodAt(now time.Time, weeksAgo int) Period {
	target := now.AddDate(0, 0, -7*weeksAgo)

	weekday := int(target.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started the previous Monday
	}
	monday := startOfDay(target.AddDate(0, 0, -(weekday - 1)))

	return Period{
		Start: monday,
		End:   endOfDay(monday.AddDate(0, 0, 6)),
		Type:  PeriodWeekly,
	}
}

// MonthlyPeriod returns the calendar month monthsAgo months before now.
// monthsAgo=0 is the current month.
func MonthlyPeriod(monthsAgo int) Period {
	return monthlyPeriodAt(time.Now(), monthsAgo)
}

func monthlyPeriodAt(now time.Time, monthsAgo int) Period {
	first := time.Date(now.Year(), now.Month()-time.Month(monthsAgo), 1, 0, 0, 0, 0, now.Location())

	return Period{
		Start: first,
		End:   endOfDay(first.AddDate(0, 1, -1)),
		Type:  PeriodMonthly,
	}
}

// CustomPeriod returns a caller-supplied range, clamped to end-of-day on the
// end date so single-day ranges stay inclusive.
func CustomPeriod(start, end time.Time) Period {
	return Period{
		Start: start,
		End:   endOfDay(end),
		Type:  PeriodCustom,
	}
}

// Previous returns the immediately preceding period of the same type.
// Custom periods have no natural predecessor and return false.
func (p Period) Previous() (Period, bool) {
	switch p.Type {
	case PeriodWeekly:
		return Period{
			Start: p.Start.AddDate(0, 0, -7),
			End:   endOfDay(p.Start.AddDate(0, 0, -1)),
			Type:  PeriodWeekly,
		}, true
	case PeriodMonthly:
		return Period{
			Start: p.Start.AddDate(0, -1, 0),
			End:   endOfDay(p.Start.AddDate(0, 0, -1)),
			Type:  PeriodMonthly,
		}, true
	default:
		return Period{}, false
	}
}

// BusinessDays counts Monday-Friday days in the period, used to give the
// summary prompt a sense of working time covered.
func (p Period) BusinessDays() int {
	c := cal.NewBusinessCalendar()
	return c.WorkdaysInRange(p.Start, p.End)
}
