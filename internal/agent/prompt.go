package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docbot/internal/domain"
)

// formattingRules is appended to every question. The renderer only
// understands backslash math delimiters reliably.
const formattingRules = `Formatting rules:
- Wrap inline formulas in \(...\), for example \(\mathbf{E}\).
- Wrap display formulas in \[...\] on a line of their own.
- Never use $, $$ or any other formula delimiters.
- Make sure the LaTeX is valid.`

const imageQuestion = "Answer the question shown in the image."

var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

// Answerer turns a question message plus the context window into a single
// multimodal completion request and returns the answer text.
type Answerer struct {
	provider domain.Provider
	window   *ContextWindow
	model    string
	thinking *domain.ThinkingOptions
	counter  TokenCounter
	logger   *slog.Logger
}

type AnswererConfig struct {
	Provider domain.Provider
	Window   *ContextWindow
	Model    string
	Thinking *domain.ThinkingOptions
	Counter  TokenCounter // optional, enables prompt token logging
	Logger   *slog.Logger
}

func NewAnswerer(cfg AnswererConfig) *Answerer {
	if cfg.Window == nil {
		cfg.Window = NewContextWindow(ContextWindowConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Answerer{
		provider: cfg.Provider,
		window:   cfg.Window,
		model:    cfg.Model,
		thinking: cfg.Thinking,
		counter:  cfg.Counter,
		logger:   cfg.Logger,
	}
}

// BuildRequest assembles the request body for msg. Image questions carry the
// image inline as a data URL ahead of the text part.
func (a *Answerer) BuildRequest(msg domain.Message) (domain.ChatRequest, error) {
	if !msg.Answerable() {
		return domain.ChatRequest{}, fmt.Errorf("%w: cannot answer a %s message", domain.ErrInvalidInput, msg.Kind)
	}

	var parts []domain.ContentPart
	question := msg.Content
	if msg.Kind == domain.KindImage {
		url, err := imageDataURL(msg.Content)
		if err != nil {
			return domain.ChatRequest{}, err
		}
		parts = append(parts, domain.ContentPart{Type: domain.PartImage, ImageURL: url})
		question = imageQuestion
	}

	parts = append(parts, domain.ContentPart{Type: domain.PartText, Text: a.promptText(question)})

	return domain.ChatRequest{
		Model:    a.model,
		Messages: []domain.ChatMessage{{Role: "user", Parts: parts}},
		Thinking: a.thinking,
	}, nil
}

func (a *Answerer) promptText(question string) string {
	var sb strings.Builder
	for _, entry := range a.window.Entries() {
		sb.WriteString(entry)
		sb.WriteString("\n\n")
	}
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(formattingRules)
	return sb.String()
}

// Answer sends msg to the backend and returns the first choice's content.
func (a *Answerer) Answer(ctx context.Context, msg domain.Message) (string, error) {
	req, err := a.BuildRequest(msg)
	if err != nil {
		return "", err
	}

	if a.counter != nil {
		text := req.Messages[0].Parts[len(req.Messages[0].Parts)-1].Text
		a.logger.Debug("prompt prepared", "kind", msg.Kind, "prompt_tokens", a.counter.Count(text), "context_entries", a.window.Len())
	}

	resp, err := a.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: image %s", domain.ErrNotFound, path)
		}
		return "", fmt.Errorf("read image: %w", err)
	}
	mime, ok := imageMIMETypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
