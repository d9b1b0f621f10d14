// Package executor runs composed query text against a data store and returns
// its rows as (key, value) tuples.
package executor

import "context"

// Params binds the @name parameters of a query.
type Params map[string]interface{}

// Merge returns a new Params holding p overlaid with other.
func (p Params) Merge(other Params) Params {
	out := make(Params, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Row is one result tuple. Value is nil for single-column queries.
type Row struct {
	Key   interface{}
	Value interface{}
}

// Executor runs a query with bound parameters. Errors from the store are
// returned wrapped, never retried.
type Executor interface {
	QueryRows(ctx context.Context, query string, params Params) ([]Row, error)
}
