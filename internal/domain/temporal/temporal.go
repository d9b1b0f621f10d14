// Package temporal derives per-patient facts by comparing a baseline date
// with dates retrieved from several observation windows.
package temporal

import (
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/ehr/cohort/internal/domain/cohort"
)

// Dates holds one retrieved date per patient.
type Dates map[cohort.PatientID]time.Time

// Derive computes the fact for every member of c. A patient qualifies when
// any source date is on or after its baseline date plus offsetDays. Dates
// are compared by calendar day in UTC; the time of day is ignored. A
// missing baseline or source date makes that term false.
func Derive(c cohort.Cohort, baseline Dates, sources []Dates, offsetDays int) map[cohort.PatientID]Fact {
	members := c.Members()
	facts := iter.Map(members, func(id *cohort.PatientID) Fact {
		return derive(*id, baseline, sources, offsetDays)
	})

	out := make(map[cohort.PatientID]Fact, len(members))
	for i, id := range members {
		out[id] = facts[i]
	}
	return out
}

func derive(id cohort.PatientID, baseline Dates, sources []Dates, offsetDays int) Fact {
	b, ok := baseline[id]
	if !ok {
		return Fact{}
	}
	threshold := startOfDay(b).AddDate(0, 0, offsetDays)

	var fact Fact
	for _, src := range sources {
		d, ok := src[id]
		if !ok {
			continue
		}
		d = startOfDay(d)
		if d.Before(threshold) {
			continue
		}
		if fact.Date == nil || d.After(*fact.Date) {
			fact = Fact{Qualified: true, Date: &d}
		}
	}
	return fact
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
