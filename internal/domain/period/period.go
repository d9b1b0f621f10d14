// Package period resolves reporting-period specifications into concrete
// inclusive date ranges.
package period

import (
	"fmt"
	"time"

	"github.com/ehr/cohort/internal/platform/executor"
	"github.com/ehr/cohort/internal/platform/query"
)

// Spec is an unresolved reporting period.
type Spec struct {
	Year    int     `json:"year"`
	Quarter Quarter `json:"quarter"`
	Month   Month   `json:"month,omitempty"`
}

// Range is an inclusive date range. Both ends are at start of day in UTC;
// EndDate is the last day of the period, not the day after it.
type Range struct {
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	OnOrAfter  time.Time `json:"onOrAfter"`
	OnOrBefore time.Time `json:"onOrBefore"`
}

// Resolve converts a year, quarter and optional quarter-relative month into
// a date range. Without a month the range covers the whole quarter.
func Resolve(year int, quarter Quarter, month Month) (Range, error) {
	if !quarter.IsValid() {
		return Range{}, invalidEnum("quarter", int(quarter))
	}
	if !month.IsValid() {
		return Range{}, invalidEnum("month", int(month))
	}

	first := 3*quarter.ordinal() + 1
	span := 3
	if month != MonthNone {
		first = 3*quarter.ordinal() + int(month)
		span = 1
	}

	start := time.Date(year, time.Month(first), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, span, -1)
	return Range{StartDate: start, EndDate: end, OnOrAfter: start, OnOrBefore: end}, nil
}

// Resolve resolves s.
func (s Spec) Resolve() (Range, error) {
	return Resolve(s.Year, s.Quarter, s.Month)
}

// Contains reports whether t falls on a day within the range.
func (r Range) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(r.StartDate) && !day.After(r.EndDate)
}

// Params returns the range as bound query parameters.
func (r Range) Params() executor.Params {
	return executor.Params{
		"startDate":  r.StartDate,
		"endDate":    r.EndDate,
		"onOrAfter":  r.OnOrAfter,
		"onOrBefore": r.OnOrBefore,
	}
}

// invalidEnum reports a quarter or month outside its range. Values are
// rejected, never clamped.
func invalidEnum(what string, value interface{}) error {
	return &query.ConstructionError{Reason: fmt.Sprintf("invalid %s %q", what, fmt.Sprint(value))}
}
