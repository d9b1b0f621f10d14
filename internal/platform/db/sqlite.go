package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// OpenSQLite opens a SQLite store at path. An in-memory store is limited to
// one connection, since every new connection would see an empty database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == MemoryDSN {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return conn, nil
}

// ApplySQLite runs every migration in fsys against a SQLite store, in
// version order. Migrations must be idempotent (IF NOT EXISTS).
func ApplySQLite(ctx context.Context, conn *sql.DB, fsys fs.FS) (int, error) {
	migrations, err := loadMigrations(fsys)
	if err != nil {
		return 0, err
	}
	for _, mig := range migrations {
		for _, stmt := range splitStatements(mig.SQL) {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return 0, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
			}
		}
	}
	return len(migrations), nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
