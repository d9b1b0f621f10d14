package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/cohort/internal/domain/cohort"
	"github.com/ehr/cohort/internal/platform/executor"
	"github.com/ehr/cohort/internal/platform/query"
	"github.com/ehr/cohort/internal/platform/refdata"
)

type Service struct {
	exec executor.Executor
	refs refdata.Provider
}

func NewService(exec executor.Executor, refs refdata.Provider) *Service {
	return &Service{exec: exec, refs: refs}
}

// EvaluateTemporalFact retrieves the baseline and source dates for the
// members of c and derives one fact per member. All queries are composed
// before any is executed; the first retrieval error aborts the call.
func (s *Service) EvaluateTemporalFact(ctx context.Context, c cohort.Cohort, baseline ObservationWindow, sources []ObservationWindow, offsetDays int) (map[cohort.PatientID]Fact, error) {
	refs, err := s.refs.Placeholders(ctx)
	if err != nil {
		return nil, err
	}

	windows := append([]ObservationWindow{baseline}, sources...)
	queries := make([]string, len(windows))
	for i, w := range windows {
		if queries[i], err = w.compose(refs); err != nil {
			return nil, err
		}
	}

	dates := make([]Dates, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	for i := range windows {
		i := i
		g.Go(func() error {
			d, err := s.retrieve(gctx, c, windows[i], queries[i])
			if err != nil {
				return fmt.Errorf("retrieve window %q: %w", windows[i].Definition.Name, err)
			}
			dates[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	facts := Derive(c, dates[0], dates[1:], offsetDays)
	zerolog.Ctx(ctx).Debug().
		Int("patients", c.Len()).
		Int("sources", len(sources)).
		Int("offset_days", offsetDays).
		Msg("temporal fact evaluated")
	return facts, nil
}

// compose wraps the window's definition in the extremum its Pick selects and
// fills the window placeholders over refs.
func (w ObservationWindow) compose(refs query.PlaceholderMap) (string, error) {
	values := refs.Merge(query.PlaceholderMap{
		PlaceholderConceptID:      w.ConceptID,
		PlaceholderEncounterTypes: w.EncounterTypes,
		PlaceholderLocation:       w.Location,
	})
	def := query.MaxOf(w.Definition)
	if w.Pick == PickEarliest {
		def = query.MinOf(w.Definition)
	}
	return query.Compose(def, values)
}

func (w ObservationWindow) params() executor.Params {
	return executor.Params{
		"startDate": w.StartDate,
		"endDate":   w.EndDate,
		"location":  w.Location,
	}
}

func (s *Service) retrieve(ctx context.Context, c cohort.Cohort, w ObservationWindow, q string) (Dates, error) {
	rows, err := s.exec.QueryRows(ctx, q, w.params())
	if err != nil {
		return nil, err
	}
	out := make(Dates, len(rows))
	for _, r := range rows {
		id, ok := executor.AsInt64(r.Key)
		if !ok || !c.Has(cohort.PatientID(id)) {
			continue
		}
		d, ok, err := executor.AsTime(r.Value)
		if err != nil {
			return nil, fmt.Errorf("patient %d: %w", id, err)
		}
		if !ok {
			continue
		}
		if prev, seen := out[cohort.PatientID(id)]; seen && !w.keeps(d, prev) {
			continue
		}
		out[cohort.PatientID(id)] = d
	}
	return out, nil
}

// keeps reports whether d replaces prev under the window's Pick.
func (w ObservationWindow) keeps(d, prev time.Time) bool {
	if w.Pick == PickEarliest {
		return d.Before(prev)
	}
	return d.After(prev)
}
