package executor

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

// DateTimeLayout is how time parameters are bound for database/sql stores
// that keep timestamps as text (SQLite).
const DateTimeLayout = "2006-01-02 15:04:05"

var namedParamPattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)

type sqlExecutor struct {
	db *sql.DB
}

// NewSQL returns an Executor over a database/sql handle. Only parameters the
// query actually references are bound, as sql.Named values.
func NewSQL(db *sql.DB) Executor {
	return &sqlExecutor{db: db}
}

func (e *sqlExecutor) QueryRows(ctx context.Context, query string, params Params) ([]Row, error) {
	rows, err := e.db.QueryContext(ctx, query, namedArgs(query, params)...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, toRow(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func namedArgs(query string, params Params) []interface{} {
	var args []interface{}
	seen := make(map[string]bool)
	for _, m := range namedParamPattern.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		v, ok := params[name]
		if !ok {
			continue
		}
		if t, isTime := v.(time.Time); isTime {
			v = t.Format(DateTimeLayout)
		}
		args = append(args, sql.Named(name, v))
	}
	return args
}
