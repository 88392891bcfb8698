package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"docbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider answers by model name and records every request.
type fakeProvider struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	requests []domain.ChatRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{replies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeProvider) Name() string                  { return "fake" }
func (f *fakeProvider) Healthy(context.Context) error { return nil }

func (f *fakeProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Model]; err != nil {
		return nil, err
	}
	reply, ok := f.replies[req.Model]
	if !ok {
		return nil, errors.New("no reply configured for model " + req.Model)
	}
	return &domain.ChatResponse{Content: reply, FinishReason: "stop"}, nil
}

func (f *fakeProvider) calls() []domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatRequest(nil), f.requests...)
}

// fakeConverter copies the markdown into the PDF path, or fails.
type fakeConverter struct {
	err   error
	calls int
}

func (c *fakeConverter) Convert(_ context.Context, md, pdf string, _ ...string) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	data, err := os.ReadFile(md)
	if err != nil {
		return err
	}
	return os.WriteFile(pdf, data, 0o644)
}

// fakeSurface serves a fixed sequence of LastMessage results and records sends.
type fakeSurface struct {
	mu       sync.Mutex
	messages []domain.Message
	readErrs []error
	sent     []domain.Message
	reads    int
	onIdle   func()
}

func (s *fakeSurface) LastMessage(context.Context) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	s.reads++
	if i < len(s.readErrs) && s.readErrs[i] != nil {
		return domain.Message{}, false, s.readErrs[i]
	}
	if i >= len(s.messages) {
		if s.onIdle != nil {
			s.onIdle()
		}
		return domain.Message{}, false, nil
	}
	return s.messages[i], true, nil
}

func (s *fakeSurface) Send(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSurface) WaitForChange(context.Context, time.Duration) (bool, error) {
	return false, nil
}

func (s *fakeSurface) sentMessages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.sent...)
}

// fakeLedger keeps records in memory.
type fakeLedger struct {
	records []domain.ArtifactRecord
	err     error
}

func (l *fakeLedger) RecordArtifact(_ context.Context, rec domain.ArtifactRecord) error {
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) ListArtifacts(context.Context, int) ([]domain.ArtifactRecord, error) {
	return l.records, nil
}

func (l *fakeLedger) Close() error { return nil }

// wordCounter counts whitespace-separated words as tokens.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }
