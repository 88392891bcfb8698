package domain

import (
	"context"
	"time"
)

// ChatSurface is the rendered conversation being watched and replied to.
type ChatSurface interface {
	// LastMessage returns the newest self-authored entry. ok is false when
	// there is nothing actionable (no entries, lookup timeout, or an entry
	// that is neither text nor a downloadable image).
	LastMessage(ctx context.Context) (msg Message, ok bool, err error)

	// Send posts a text message or attaches a file.
	Send(ctx context.Context, msg Message) error

	// WaitForChange blocks until the conversation DOM changes or timeout elapses.
	WaitForChange(ctx context.Context, timeout time.Duration) (changed bool, err error)
}

// Converter renders a markdown file on disk into a PDF file on disk.
type Converter interface {
	Convert(ctx context.Context, markdownPath, pdfPath string, options ...string) error
}
