// Package refdata supplies the reference identifiers (concepts, programs,
// encounter types) that raw report queries name through ${placeholders}.
package refdata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehr/cohort/internal/platform/executor"
	"github.com/ehr/cohort/internal/platform/query"
)

// Provider returns the completed placeholder map for one evaluation.
type Provider interface {
	Placeholders(ctx context.Context) (query.PlaceholderMap, error)
}

// Static serves a fixed map. The map is copied on every call so callers
// cannot alter shared reference data.
type Static struct {
	values query.PlaceholderMap
}

func NewStatic(values query.PlaceholderMap) *Static {
	return &Static{values: query.PlaceholderMap{}.Merge(values)}
}

func (s *Static) Placeholders(_ context.Context) (query.PlaceholderMap, error) {
	return query.PlaceholderMap{}.Merge(s.values), nil
}

// LoadFile reads a YAML mapping of logical name to identifier, e.g.
//
//	artProgram: 2
//	viralLoadConcept: 856
//	clinicalEncounterTypes: [6, 9]
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference data %s: %w", path, err)
	}
	values := query.PlaceholderMap{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse reference data %s: %w", path, err)
	}
	return NewStatic(values), nil
}

const referenceQuery = `SELECT r.name, r.value FROM reference_data r`

// Store reads reference data from the reference_data table on every call.
type Store struct {
	exec executor.Executor
}

func NewStore(exec executor.Executor) *Store {
	return &Store{exec: exec}
}

func (s *Store) Placeholders(ctx context.Context) (query.PlaceholderMap, error) {
	rows, err := s.exec.QueryRows(ctx, referenceQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	values := make(query.PlaceholderMap, len(rows))
	for _, r := range rows {
		name, ok := text(r.Key)
		if !ok {
			continue
		}
		if v, ok := text(r.Value); ok {
			values[name] = v
		}
	}
	return values, nil
}

// Layered consults providers in order; later providers override earlier ones.
type Layered []Provider

func (l Layered) Placeholders(ctx context.Context) (query.PlaceholderMap, error) {
	values := query.PlaceholderMap{}
	for _, p := range l {
		m, err := p.Placeholders(ctx)
		if err != nil {
			return nil, err
		}
		values = values.Merge(m)
	}
	return values, nil
}

func text(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return "", false
	}
}
