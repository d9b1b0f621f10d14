package reporting

import (
	"fmt"
	"time"

	"github.com/ehr/cohort/internal/domain/period"
	"github.com/ehr/cohort/internal/domain/temporal"
	"github.com/ehr/cohort/internal/platform/query"
)

// Reference data names the library queries expect the provider to bind.
const (
	RefARTProgram                  = "artProgram"
	RefPharmacyEncounterType       = "pharmacyEncounterType"
	RefARTStartConcept             = "artStartConcept"
	RefNextPickupConcept           = "nextPickupConcept"
	RefNextConsultationConcept     = "nextConsultationConcept"
	RefViralLoadConcept            = "viralLoadConcept"
	RefViralLoadQualitativeConcept = "viralLoadQualitativeConcept"
)

// Indicator is a named cohort definition evaluated against the base cohort.
// A composite indicator has no Definition; its members are those of Include
// that are not members of Exclude.
type Indicator struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Definition  query.Definition `json:"-"`
	Include     string           `json:"include,omitempty"`
	Exclude     string           `json:"exclude,omitempty"`
}

func (i *Indicator) Composite() bool {
	return i.Include != ""
}

// FactDefinition is a named per-patient temporal fact over the base cohort.
type FactDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OffsetDays  int    `json:"offset_days"`

	windows func(rng period.Range, location int64, refs query.PlaceholderMap) (temporal.ObservationWindow, []temporal.ObservationWindow, error)
}

// Windows builds the baseline and source windows for a period and location.
func (f *FactDefinition) Windows(rng period.Range, location int64, refs query.PlaceholderMap) (temporal.ObservationWindow, []temporal.ObservationWindow, error) {
	return f.windows(rng, location, refs)
}

// Base is the population every indicator is restricted to: patients enrolled
// in the ART program at the location and not yet exited on the end date.
var Base = query.Templated("active-on-art", `SELECT pp.patient_id FROM patient_program pp
JOIN patient p ON p.patient_id = pp.patient_id
WHERE pp.program_id = ${artProgram} AND pp.location_id = @location
AND pp.date_enrolled <= @endDate
AND (pp.date_completed IS NULL OR pp.date_completed > @endDate)
AND pp.voided = FALSE AND p.voided = FALSE`)

// artStartSources is every record that can mark the start of treatment.
var artStartSources = query.UnionOf("artStart",
	query.Templated("programEnrollment", `SELECT pp.patient_id, pp.date_enrolled AS art_start FROM patient_program pp
WHERE pp.program_id = ${artProgram} AND pp.location_id = @location
AND pp.voided = FALSE AND pp.date_enrolled <= @endDate`),
	query.Templated("firstPickup", `SELECT e.patient_id, e.encounter_datetime AS art_start FROM encounter e
WHERE e.encounter_type = ${pharmacyEncounterType} AND e.location_id = @location
AND e.voided = FALSE AND e.encounter_datetime <= @endDate`),
	query.Templated("recordedStart", `SELECT o.patient_id, o.value_datetime AS art_start FROM obs o
WHERE o.concept_id = ${artStartConcept} AND o.location_id = @location
AND o.voided = FALSE AND o.value_datetime <= @endDate`),
)

var nextScheduled = query.MaxOf(query.UnionOf("nextScheduled",
	query.Templated("nextPickup", `SELECT o.patient_id, o.value_datetime AS next_scheduled FROM obs o
WHERE o.concept_id = ${nextPickupConcept} AND o.location_id = @location
AND o.voided = FALSE AND o.obs_datetime <= @endDate`),
	query.Templated("nextConsultation", `SELECT o.patient_id, o.value_datetime AS next_scheduled FROM obs o
WHERE o.concept_id = ${nextConsultationConcept} AND o.location_id = @location
AND o.voided = FALSE AND o.obs_datetime <= @endDate`),
))

var lastViralLoad = query.MaxOf(query.Templated("lastViralLoad", `SELECT o.patient_id, o.obs_datetime FROM obs o
WHERE o.concept_id = ${viralLoadConcept} AND o.location_id = @location
AND o.voided = FALSE AND o.value_numeric IS NOT NULL AND o.obs_datetime <= @endDate`))

// viralLoadWindow returns the latest result of ${conceptId} in the window.
func viralLoadWindow(name string) query.Definition {
	return query.Templated(name, `SELECT o.patient_id, o.obs_datetime FROM obs o
WHERE o.concept_id = ${conceptId} AND o.location_id = @location
AND o.voided = FALSE AND o.obs_datetime BETWEEN @startDate AND @endDate`)
}

// Indicators is the list of available indicators.
var Indicators = []Indicator{
	{
		ID:          "tx-new",
		Name:        "Newly started on ART",
		Description: "Patients whose earliest treatment start record falls within the period",
		Definition: query.Templated("tx-new", `SELECT s.patient_id FROM (${artStart}) AS s
WHERE s.art_start BETWEEN @startDate AND @endDate`, query.MinOf(artStartSources)),
	},
	{
		ID:          "tx-curr",
		Name:        "Currently on ART",
		Description: "Patients whose most recent scheduled pickup or consultation is on or after the end date",
		Definition: query.Templated("tx-curr", `SELECT s.patient_id FROM (${nextScheduled}) AS s
WHERE s.next_scheduled >= @endDate`, nextScheduled),
	},
	{
		ID:          "vl-suppressed",
		Name:        "Virally suppressed",
		Description: "Patients whose most recent viral load on or before the end date is below 1000 copies/ml",
		Definition: query.Templated("vl-suppressed", `SELECT o.patient_id FROM obs o
JOIN (${lastViralLoad}) AS l ON l.patient_id = o.patient_id AND l.obs_datetime = o.obs_datetime
WHERE o.concept_id = ${viralLoadConcept} AND o.voided = FALSE AND o.value_numeric < 1000`, lastViralLoad),
	},
	{
		ID:          "tx-curr-no-vl",
		Name:        "Currently on ART and not suppressed",
		Description: "Patients currently on ART without a suppressed most recent viral load",
		Include:     "tx-curr",
		Exclude:     "vl-suppressed",
	},
}

// Facts is the list of available temporal facts.
var Facts = []FactDefinition{
	{
		ID:          "vl-after-90-days",
		Name:        "Viral load after 90 days on ART",
		Description: "A viral load result in the last 12 months or the final month of the period, at least 90 days after treatment start",
		OffsetDays:  90,
		windows: func(rng period.Range, location int64, refs query.PlaceholderMap) (temporal.ObservationWindow, []temporal.ObservationWindow, error) {
			vl, ok := refs.Int64(RefViralLoadConcept)
			if !ok {
				return temporal.ObservationWindow{}, nil, fmt.Errorf("reference %q is not configured", RefViralLoadConcept)
			}
			vlQualitative, ok := refs.Int64(RefViralLoadQualitativeConcept)
			if !ok {
				return temporal.ObservationWindow{}, nil, fmt.Errorf("reference %q is not configured", RefViralLoadQualitativeConcept)
			}

			end := rng.EndDate
			baseline := temporal.ObservationWindow{
				Definition: artStartSources,
				Location:   location,
				EndDate:    end,
				Pick:       temporal.PickEarliest,
			}
			sources := []temporal.ObservationWindow{
				{
					Definition: viralLoadWindow("viralLoadLastYear"),
					ConceptID:  vl,
					Location:   location,
					StartDate:  end.AddDate(-1, 0, 1),
					EndDate:    end,
				},
				{
					Definition: viralLoadWindow("viralLoadLastMonth"),
					ConceptID:  vlQualitative,
					Location:   location,
					StartDate:  time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC),
					EndDate:    end,
				},
			}
			return baseline, sources, nil
		},
	},
}

// FindIndicator looks up an indicator by ID.
func FindIndicator(id string) *Indicator {
	for i := range Indicators {
		if Indicators[i].ID == id {
			return &Indicators[i]
		}
	}
	return nil
}

// FindFact looks up a temporal fact by ID.
func FindFact(id string) *FactDefinition {
	for i := range Facts {
		if Facts[i].ID == id {
			return &Facts[i]
		}
	}
	return nil
}
