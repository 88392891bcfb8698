package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docbot/internal/domain"
)

func TestBuildRequest_TextIncludesContextQuestionAndRules(t *testing.T) {
	w := NewContextWindow(ContextWindowConfig{})
	w.Append("Earlier answer.")
	a := NewAnswerer(AnswererConfig{
		Window:   w,
		Model:    "vl-model",
		Thinking: &domain.ThinkingOptions{Enabled: true, Budget: 100},
		Logger:   testLogger(),
	})

	req, err := a.BuildRequest(domain.TextMessage("What is 2+2?"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Model != "vl-model" {
		t.Fatalf("expected vl-model, got %q", req.Model)
	}
	if req.Thinking == nil || req.Thinking.Budget != 100 {
		t.Fatalf("thinking options not carried: %+v", req.Thinking)
	}
	if len(req.Messages) != 1 || len(req.Messages[0].Parts) != 1 {
		t.Fatalf("expected one message with one part, got %+v", req.Messages)
	}
	text := req.Messages[0].Parts[0].Text
	ctxAt := strings.Index(text, "Earlier answer.")
	qAt := strings.Index(text, "What is 2+2?")
	rulesAt := strings.Index(text, "Formatting rules:")
	if ctxAt < 0 || qAt < 0 || rulesAt < 0 {
		t.Fatalf("prompt missing a section:\n%s", text)
	}
	if !(ctxAt < qAt && qAt < rulesAt) {
		t.Fatalf("sections out of order:\n%s", text)
	}
	if !strings.Contains(text, "Never use $") {
		t.Fatal("rules should forbid dollar delimiters")
	}
}

func TestBuildRequest_ImageComesFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.JPG")
	os.WriteFile(path, []byte("jpegbytes"), 0o644)

	a := NewAnswerer(AnswererConfig{Logger: testLogger()})
	req, err := a.BuildRequest(domain.ImageMessage(path))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	parts := req.Messages[0].Parts
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Type != domain.PartImage {
		t.Fatalf("expected image part first, got %s", parts[0].Type)
	}
	want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpegbytes"))
	if parts[0].ImageURL != want {
		t.Fatalf("unexpected data url %q", parts[0].ImageURL)
	}
	if parts[1].Type != domain.PartText || !strings.Contains(parts[1].Text, imageQuestion) {
		t.Fatalf("unexpected text part %+v", parts[1])
	}
	if strings.Contains(parts[1].Text, path) {
		t.Fatal("image path should not leak into the prompt")
	}
}

func TestBuildRequest_MissingImage(t *testing.T) {
	a := NewAnswerer(AnswererConfig{Logger: testLogger()})
	_, err := a.BuildRequest(domain.ImageMessage(filepath.Join(t.TempDir(), "gone.png")))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildRequest_RejectsFile(t *testing.T) {
	a := NewAnswerer(AnswererConfig{Logger: testLogger()})
	_, err := a.BuildRequest(domain.FileMessage("/tmp/a.pdf"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnswer_ReturnsContent(t *testing.T) {
	p := newFakeProvider()
	p.replies["vl-model"] = "The answer is 4."
	a := NewAnswerer(AnswererConfig{Provider: p, Model: "vl-model", Counter: wordCounter{}, Logger: testLogger()})

	got, err := a.Answer(context.Background(), domain.TextMessage("What is 2+2?"))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got != "The answer is 4." {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestAnswer_PropagatesBackendError(t *testing.T) {
	p := newFakeProvider()
	p.errs["vl-model"] = domain.ErrBackendRequest
	a := NewAnswerer(AnswererConfig{Provider: p, Model: "vl-model", Logger: testLogger()})

	_, err := a.Answer(context.Background(), domain.TextMessage("q"))
	if !errors.Is(err, domain.ErrBackendRequest) {
		t.Fatalf("expected ErrBackendRequest, got %v", err)
	}
}
