package reporting

import (
	"context"
	"fmt"

	"github.com/ehr/cohort/internal/domain/cohort"
	"github.com/ehr/cohort/internal/domain/period"
	"github.com/ehr/cohort/internal/domain/temporal"
	"github.com/ehr/cohort/internal/platform/executor"
	"github.com/ehr/cohort/internal/platform/refdata"
)

// Evaluator runs library indicators and facts against one data store.
type Evaluator struct {
	cohorts *cohort.Service
	facts   *temporal.Service
	refs    refdata.Provider
}

func NewEvaluator(exec executor.Executor, refs refdata.Provider) *Evaluator {
	return &Evaluator{
		cohorts: cohort.NewService(exec, refs),
		facts:   temporal.NewService(exec, refs),
		refs:    refs,
	}
}

// EvaluateIndicator returns the members of ind for the period at location.
func (e *Evaluator) EvaluateIndicator(ctx context.Context, ind *Indicator, spec period.Spec, location int64) (cohort.Cohort, error) {
	if !ind.Composite() {
		return e.cohorts.EvaluateCohort(ctx, spec, Base, ind.Definition, location)
	}

	include, exclude := FindIndicator(ind.Include), FindIndicator(ind.Exclude)
	if include == nil || include.Composite() {
		return cohort.Cohort{}, fmt.Errorf("indicator %q: include %q is not a plain indicator", ind.ID, ind.Include)
	}
	if exclude == nil || exclude.Composite() {
		return cohort.Cohort{}, fmt.Errorf("indicator %q: exclude %q is not a plain indicator", ind.ID, ind.Exclude)
	}

	cohorts, err := e.cohorts.EvaluateCohorts(ctx, spec, Base, location, include.Definition, exclude.Definition)
	if err != nil {
		return cohort.Cohort{}, err
	}
	return cohorts[0].Minus(cohorts[1]), nil
}

// EvaluateFact derives f for every member of the base cohort.
func (e *Evaluator) EvaluateFact(ctx context.Context, f *FactDefinition, spec period.Spec, location int64) (map[cohort.PatientID]temporal.Fact, error) {
	rng, err := spec.Resolve()
	if err != nil {
		return nil, err
	}
	refs, err := e.refs.Placeholders(ctx)
	if err != nil {
		return nil, err
	}
	baseline, sources, err := f.Windows(rng, location, refs)
	if err != nil {
		return nil, err
	}

	members, err := e.cohorts.EvaluateBase(ctx, spec, Base, location)
	if err != nil {
		return nil, err
	}
	return e.facts.EvaluateTemporalFact(ctx, members, baseline, sources, f.OffsetDays)
}
