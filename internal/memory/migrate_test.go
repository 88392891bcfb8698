package memory

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRunMigrations_FreshDB(t *testing.T) {
	db := testDB(t)

	if v, err := GetSchemaVersion(db); err != nil || v != 0 {
		t.Fatalf("fresh db should be version 0, got %d (%v)", v, err)
	}
	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_artifacts_%'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 artifact indexes, got %d", n)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != len(migrations) {
		t.Errorf("expected %d recorded migrations, got %d", len(migrations), rows)
	}
}

func TestRunMigrations_UpgradesFromV1(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, description TEXT, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		t.Fatal(err)
	}
	if err := applyMigration(db, migrations[0]); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if v, _ := GetSchemaVersion(db); v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}

	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if v, _ := GetSchemaVersion(db); v != schemaVersion {
		t.Fatalf("expected version %d, got %d", schemaVersion, v)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x);\n\n  CREATE INDEX i ON a(x);\n")
	if len(got) != 2 || got[0] != "CREATE TABLE a (x)" || got[1] != "CREATE INDEX i ON a(x)" {
		t.Fatalf("unexpected split %q", got)
	}
}
