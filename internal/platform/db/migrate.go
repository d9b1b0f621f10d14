package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsTable = "schema_migrations"

// Migration is one versioned schema file, e.g. "001_clinical.sql".
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus reports whether a migration has run against a schema.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
	// Modified is set when the file no longer matches the checksum recorded
	// when it was applied.
	Modified bool
}

type appliedMigration struct {
	at       time.Time
	checksum string
}

// Migrator applies the clinical store schema to one PostgreSQL schema.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

// NewMigrator creates a Migrator that reads migration files from fsys, usually
// the embedded migrations.FS.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS) *Migrator {
	return &Migrator{pool: pool, fsys: fsys}
}

func (m *Migrator) LoadMigrations() ([]Migration, error) {
	return loadMigrations(m.fsys)
}

// Up applies every pending migration in version order, each in its own
// transaction, and returns how many ran.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	migs, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	if err := m.ensureTable(ctx, schema); err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migs {
		ran, err := m.apply(ctx, schema, mig)
		if err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if ran {
			count++
		}
	}
	return count, nil
}

// Status lists every known migration with its state in schema.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	migs, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	if err := m.ensureTable(ctx, schema); err != nil {
		return nil, err
	}

	rows, err := m.pool.Query(ctx, fmt.Sprintf(`SELECT version, checksum, applied_at FROM %s`, migrationsTableName(schema)))
	if err != nil {
		return nil, fmt.Errorf("query migration status in %s: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var (
			version int
			a       appliedMigration
		)
		if err := rows.Scan(&version, &a.checksum, &a.at); err != nil {
			return nil, fmt.Errorf("scan migration status: %w", err)
		}
		applied[version] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration status: %w", err)
	}

	return migrationStatuses(migs, applied), nil
}

func (m *Migrator) ensureTable(ctx context.Context, schema string) error {
	ddl := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, pgx.Identifier{schema}.Sanitize(), migrationsTableName(schema))

	if _, err := m.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s in %s: %w", migrationsTable, schema, err)
	}
	return nil
}

// apply runs mig unless it is already recorded. The advisory lock serializes
// concurrent migrators on the same schema, so the recorded check is re-read
// under it.
func (m *Migrator) apply(ctx context.Context, schema string, mig Migration) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, schema); err != nil {
		return false, fmt.Errorf("lock schema: %w", err)
	}

	var done bool
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE version = $1)`, migrationsTableName(schema)),
		mig.Version,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("check applied: %w", err)
	}
	if done {
		return false, nil
	}

	// SET LOCAL ends with the transaction, so the pooled connection keeps
	// its default search_path.
	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return false, fmt.Errorf("set search_path: %w", err)
	}
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return false, fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (version, name, checksum) VALUES ($1, $2, $3)`, migrationsTableName(schema)),
		mig.Version, mig.Name, mig.Checksum,
	); err != nil {
		return false, fmt.Errorf("record migration: %w", err)
	}

	return true, tx.Commit(ctx)
}

func migrationsTableName(schema string) string {
	return pgx.Identifier{schema, migrationsTable}.Sanitize()
}

// loadMigrations reads the *.sql files at the root of fsys whose names start
// with a numeric version, sorted by version. Other files are skipped; two
// files with the same version are an error.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var migs []Migration
	for _, name := range names {
		version, ok := parseVersion(name)
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, name, version)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		migs = append(migs, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migs, func(i, j int) bool {
		return migs[i].Version < migs[j].Version
	})
	return migs, nil
}

func parseVersion(name string) (int, bool) {
	prefix, _, ok := strings.Cut(path.Base(name), "_")
	if !ok {
		return 0, false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version < 1 {
		return 0, false
	}
	return version, true
}

func migrationStatuses(migs []Migration, applied map[int]appliedMigration) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migs))
	for _, mig := range migs {
		status := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if a, ok := applied[mig.Version]; ok {
			at := a.at
			status.Applied = true
			status.AppliedAt = &at
			status.Modified = a.checksum != mig.Checksum
		}
		statuses = append(statuses, status)
	}
	return statuses
}
