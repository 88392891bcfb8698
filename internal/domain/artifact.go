package domain

import (
	"context"
	"time"
)

// ArtifactRecord describes one answered question and the files produced for it.
type ArtifactRecord struct {
	ID           string    `json:"id"`
	QuestionKind string    `json:"question_kind"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Name         string    `json:"name"`
	MarkdownPath string    `json:"markdown_path"`
	PDFPath      string    `json:"pdf_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// ArtifactLedger is an append-only audit log of produced artifacts.
type ArtifactLedger interface {
	RecordArtifact(ctx context.Context, rec ArtifactRecord) error
	ListArtifacts(ctx context.Context, limit int) ([]ArtifactRecord, error)
	Close() error
}
