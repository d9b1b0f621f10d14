// Package cohort evaluates cohort definitions for a reporting period,
// restricted to a base population.
package cohort

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/cohort/internal/domain/period"
	"github.com/ehr/cohort/internal/platform/executor"
	"github.com/ehr/cohort/internal/platform/query"
	"github.com/ehr/cohort/internal/platform/refdata"
)

// Bound parameter names understood by cohort queries.
const (
	ParamEndDate  = "endDate"
	ParamLocation = "location"
)

type Service struct {
	exec executor.Executor
	refs refdata.Provider
}

func NewService(exec executor.Executor, refs refdata.Provider) *Service {
	return &Service{exec: exec, refs: refs}
}

// EvaluateCohort returns the members of derived for the period, restricted
// to the members of base at the period's end date. An empty result is a
// valid answer.
func (s *Service) EvaluateCohort(ctx context.Context, spec period.Spec, base, derived query.Definition, location int64) (Cohort, error) {
	cohorts, err := s.EvaluateCohorts(ctx, spec, base, location, derived)
	if err != nil {
		return Cohort{}, err
	}
	return cohorts[0], nil
}

// EvaluateCohorts evaluates base once and every derived definition against
// it, returning the cohorts in the order of derived.
func (s *Service) EvaluateCohorts(ctx context.Context, spec period.Spec, base query.Definition, location int64, derived ...query.Definition) ([]Cohort, error) {
	rng, err := spec.Resolve()
	if err != nil {
		return nil, err
	}
	refs, err := s.refs.Placeholders(ctx)
	if err != nil {
		return nil, err
	}

	baseQuery, err := query.Compose(base, refs)
	if err != nil {
		return nil, err
	}
	derivedQueries := make([]string, len(derived))
	for i, d := range derived {
		if derivedQueries[i], err = query.Compose(d, refs); err != nil {
			return nil, err
		}
	}

	logger := zerolog.Ctx(ctx).With().
		Str("run_id", uuid.NewString()).
		Str("period_start", rng.StartDate.Format("2006-01-02")).
		Str("period_end", rng.EndDate.Format("2006-01-02")).
		Int64("location", location).
		Logger()

	baseCohort, err := s.evaluate(ctx, baseQuery, executor.Params{
		ParamEndDate:  rng.EndDate,
		ParamLocation: location,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate base cohort %q: %w", base.Name, err)
	}
	logger.Debug().Str("cohort", base.Name).Int("size", baseCohort.Len()).Msg("base cohort evaluated")

	params := rng.Params().Merge(executor.Params{ParamLocation: location})
	out := make([]Cohort, len(derived))
	for i, d := range derived {
		c, err := s.evaluate(ctx, derivedQueries[i], params)
		if err != nil {
			return nil, fmt.Errorf("evaluate cohort %q: %w", d.Name, err)
		}
		out[i] = c.Intersect(baseCohort)
		logger.Debug().
			Str("cohort", d.Name).
			Int("matched", c.Len()).
			Int("size", out[i].Len()).
			Msg("derived cohort evaluated")
	}
	return out, nil
}

// EvaluateBase returns the members of base at the period's end date.
func (s *Service) EvaluateBase(ctx context.Context, spec period.Spec, base query.Definition, location int64) (Cohort, error) {
	rng, err := spec.Resolve()
	if err != nil {
		return Cohort{}, err
	}
	refs, err := s.refs.Placeholders(ctx)
	if err != nil {
		return Cohort{}, err
	}
	q, err := query.Compose(base, refs)
	if err != nil {
		return Cohort{}, err
	}
	c, err := s.evaluate(ctx, q, executor.Params{ParamEndDate: rng.EndDate, ParamLocation: location})
	if err != nil {
		return Cohort{}, fmt.Errorf("evaluate base cohort %q: %w", base.Name, err)
	}
	return c, nil
}

func (s *Service) evaluate(ctx context.Context, q string, params executor.Params) (Cohort, error) {
	rows, err := s.exec.QueryRows(ctx, q, params)
	if err != nil {
		return Cohort{}, err
	}
	return FromRows(rows), nil
}
