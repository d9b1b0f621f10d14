package db

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/ehr/cohort/migrations"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"001_clinical.sql":       {Data: []byte("CREATE TABLE obs (obs_id BIGINT PRIMARY KEY);")},
		"002_reference_data.sql": {Data: []byte("CREATE TABLE reference_data (name TEXT);")},
		"003_indexes.sql":        {Data: []byte("CREATE INDEX obs_idx ON obs (obs_id);")},
	}

	migrator := NewMigrator(nil, fsys)
	migs, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 {
		t.Errorf("expected version 1, got %d", migs[0].Version)
	}
	if migs[0].Name != "001_clinical.sql" {
		t.Errorf("expected name 001_clinical.sql, got %s", migs[0].Name)
	}
	if migs[0].SQL != "CREATE TABLE obs (obs_id BIGINT PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migs[0].SQL)
	}
	if migs[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migs[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	migs, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	expectedVersions := []int{1, 2, 5, 10}
	if len(migs) != len(expectedVersions) {
		t.Fatalf("expected %d migrations, got %d", len(expectedVersions), len(migs))
	}
	for i, expected := range expectedVersions {
		if migs[i].Version != expected {
			t.Errorf("migration[%d]: expected version %d, got %d", i, expected, migs[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	fsys := fstest.MapFS{
		"001_valid.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":         {Data: []byte("-- no version prefix")},
		"notes.txt":          {Data: []byte("not a sql file")},
		"abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"002_also_valid.sql": {Data: []byte("SELECT 2;")},
	}

	migs, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migs))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_clinical.sql": {Data: []byte("SELECT 1;")},
		"001_other.sql":    {Data: []byte("SELECT 2;")},
	}

	_, err := NewMigrator(nil, fsys).LoadMigrations()
	if err == nil || !strings.Contains(err.Error(), "share version 1") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestLoadMigrations_Checksum(t *testing.T) {
	a := fstest.MapFS{"001_clinical.sql": {Data: []byte("SELECT 1;")}}
	b := fstest.MapFS{"001_clinical.sql": {Data: []byte("SELECT 2;")}}

	ma, err := loadMigrations(a)
	if err != nil {
		t.Fatal(err)
	}
	mb, err := loadMigrations(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(ma[0].Checksum) != 64 {
		t.Errorf("expected hex sha256 checksum, got %q", ma[0].Checksum)
	}
	if ma[0].Checksum == mb[0].Checksum {
		t.Error("different content must produce different checksums")
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		ok      bool
	}{
		{"001_clinical.sql", 1, true},
		{"010_indexes.sql", 10, true},
		{"000_zero.sql", 0, false},
		{"readme.sql", 0, false},
		{"v1_clinical.sql", 0, false},
	}
	for _, tt := range tests {
		version, ok := parseVersion(tt.name)
		if version != tt.version || ok != tt.ok {
			t.Errorf("parseVersion(%q) = %d, %v; want %d, %v", tt.name, version, ok, tt.version, tt.ok)
		}
	}
}

func TestMigrationsTableName_QuotesSchema(t *testing.T) {
	if got := migrationsTableName("public"); got != `"public"."schema_migrations"` {
		t.Errorf("unexpected table name: %s", got)
	}
	if got := migrationsTableName(`x"; DROP TABLE obs; --`); got != `"x""; DROP TABLE obs; --"."schema_migrations"` {
		t.Errorf("schema must be quoted as one identifier, got %s", got)
	}
}

func TestMigrationStatuses(t *testing.T) {
	migs := []Migration{
		{Version: 1, Name: "001_clinical.sql", Checksum: "aaa"},
		{Version: 2, Name: "002_reference_data.sql", Checksum: "bbb"},
		{Version: 3, Name: "003_indexes.sql", Checksum: "ccc"},
	}
	at := time.Date(2019, 4, 1, 8, 0, 0, 0, time.UTC)
	applied := map[int]appliedMigration{
		1: {at: at, checksum: "aaa"},
		2: {at: at, checksum: "old"},
	}

	statuses := migrationStatuses(migs, applied)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].Modified || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("migration 1: unexpected status %+v", statuses[0])
	}
	if !statuses[1].Applied || !statuses[1].Modified {
		t.Errorf("migration 2: expected applied and modified, got %+v", statuses[1])
	}
	if statuses[2].Applied || statuses[2].AppliedAt != nil {
		t.Errorf("migration 3: expected pending, got %+v", statuses[2])
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) < 2 {
		t.Fatalf("expected embedded clinical and reference migrations, got %d", len(migs))
	}
	if migs[0].Name != "001_clinical.sql" {
		t.Errorf("expected 001_clinical.sql first, got %s", migs[0].Name)
	}
}

func TestApplySQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := OpenSQLite(ctx, MemoryDSN)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer conn.Close()

	n, err := ApplySQLite(ctx, conn, migrations.FS)
	if err != nil {
		t.Fatalf("ApplySQLite() error: %v", err)
	}
	if n < 2 {
		t.Errorf("expected at least 2 migrations applied, got %d", n)
	}

	// Migrations are idempotent.
	if _, err := ApplySQLite(ctx, conn, migrations.FS); err != nil {
		t.Fatalf("second ApplySQLite() error: %v", err)
	}

	for _, table := range []string{"patient", "patient_program", "encounter", "obs", "reference_data"} {
		var name string
		err := conn.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x INT);\n\nCREATE TABLE b (y INT);\n")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(stmts), stmts)
	}
	if stmts[1] != "CREATE TABLE b (y INT)" {
		t.Errorf("unexpected statement: %q", stmts[1])
	}
}

func TestNewMigrator(t *testing.T) {
	m := NewMigrator(nil, migrations.FS)
	if m == nil {
		t.Fatal("expected non-nil Migrator")
	}
	if m.pool != nil {
		t.Error("expected nil pool")
	}
}
