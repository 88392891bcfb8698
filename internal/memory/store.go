// Package memory persists the artifact ledger in SQLite.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"docbot/internal/domain"
)

const defaultListLimit = 20

// SQLiteLedger implements domain.ArtifactLedger.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteLedger(dbPath string, logger *slog.Logger) (*SQLiteLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteLedger{db: db, logger: logger}, nil
}

func (l *SQLiteLedger) RecordArtifact(ctx context.Context, rec domain.ArtifactRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: artifact record without id", domain.ErrInvalidInput)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, question_kind, question, answer, name, markdown_path, pdf_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.QuestionKind, rec.Question, rec.Answer, rec.Name, rec.MarkdownPath, rec.PDFPath, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	l.logger.Debug("artifact recorded", "id", rec.ID, "name", rec.Name)
	return nil
}

// ListArtifacts returns the newest records first.
func (l *SQLiteLedger) ListArtifacts(ctx context.Context, limit int) ([]domain.ArtifactRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, question_kind, question, answer, name, markdown_path, pdf_path, created_at
		 FROM artifacts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []domain.ArtifactRecord
	for rows.Next() {
		var r domain.ArtifactRecord
		if err := rows.Scan(&r.ID, &r.QuestionKind, &r.Question, &r.Answer, &r.Name, &r.MarkdownPath, &r.PDFPath, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarises the ledger for status output.
type Stats struct {
	Count         int
	LastCreatedAt time.Time
	SchemaVersion int
}

func (l *SQLiteLedger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&s.Count); err != nil {
		return Stats{}, fmt.Errorf("count artifacts: %w", err)
	}
	if s.Count > 0 {
		if err := l.db.QueryRowContext(ctx,
			`SELECT created_at FROM artifacts ORDER BY created_at DESC LIMIT 1`).Scan(&s.LastCreatedAt); err != nil {
			return Stats{}, fmt.Errorf("last artifact: %w", err)
		}
	}
	v, err := GetSchemaVersion(l.db)
	if err != nil {
		return Stats{}, err
	}
	s.SchemaVersion = v
	return s, nil
}

// Ping verifies the database is reachable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
