package temporal

import (
	"encoding/json"
	"time"

	"github.com/ehr/cohort/internal/platform/query"
)

// Pick selects which date a window keeps per patient.
type Pick int

const (
	PickLatest Pick = iota
	PickEarliest
)

// Placeholders a window query may reference besides the shared reference
// data. Bound parameters are @startDate, @endDate and @location.
const (
	PlaceholderConceptID      = "conceptId"
	PlaceholderEncounterTypes = "encounterTypes"
	PlaceholderLocation       = "location"
)

// ObservationWindow retrieves one date per patient: the latest (or earliest)
// date the window's two-column query returns between StartDate and EndDate.
type ObservationWindow struct {
	Definition     query.Definition
	ConceptID      int64
	EncounterTypes []int64
	Location       int64
	StartDate      time.Time
	EndDate        time.Time
	Pick           Pick
}

// Fact is the derived value for one patient. Date is the most recent source
// date that satisfied the rule, nil when Qualified is false.
type Fact struct {
	Qualified bool
	Date      *time.Time
}

func (f Fact) MarshalJSON() ([]byte, error) {
	out := struct {
		Qualified bool    `json:"qualified"`
		Date      *string `json:"date"`
	}{Qualified: f.Qualified}
	if f.Date != nil {
		d := f.Date.Format("2006-01-02")
		out.Date = &d
	}
	return json.Marshal(out)
}
