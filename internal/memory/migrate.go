package memory

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the version the migrations below bring a database to.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// Each migration is applied once and recorded in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "artifacts table",
		SQL: `
		CREATE TABLE IF NOT EXISTS artifacts (
			id            TEXT PRIMARY KEY,
			question_kind TEXT NOT NULL,
			question      TEXT NOT NULL,
			answer        TEXT NOT NULL,
			name          TEXT NOT NULL,
			markdown_path TEXT NOT NULL,
			pdf_path      TEXT NOT NULL,
			created_at    DATETIME NOT NULL
		);
		`,
	},
	{
		Version:     2,
		Description: "lookup indexes on creation time and name",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_at);
		CREATE INDEX IF NOT EXISTS idx_artifacts_name ON artifacts(name);
		`,
	},
}

// RunMigrations applies every migration newer than the recorded version.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v%d: %w\nSQL: %s", m.Version, err, stmt)
		}
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", m.Version, err)
	}
	return nil
}

// splitStatements splits on semicolons. None of the migrations contain
// semicolons inside literals.
func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetSchemaVersion returns the highest applied migration, or 0 for a fresh
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}
