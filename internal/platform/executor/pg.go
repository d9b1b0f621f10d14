package executor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type pgExecutor struct {
	db querier
}

// NewPG returns an Executor backed by a pgx pool. Parameters are bound by
// name through pgx.NamedArgs.
func NewPG(pool *pgxpool.Pool) Executor {
	return &pgExecutor{db: pool}
}

func (e *pgExecutor) QueryRows(ctx context.Context, query string, params Params) ([]Row, error) {
	var args []interface{}
	if len(params) > 0 {
		args = append(args, pgx.NamedArgs(params))
	}

	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		result = append(result, toRow(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func toRow(values []interface{}) Row {
	var r Row
	if len(values) > 0 {
		r.Key = values[0]
	}
	if len(values) > 1 {
		r.Value = values[1]
	}
	return r
}
