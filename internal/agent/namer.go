package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"docbot/internal/domain"
)

const (
	maxFilenameRunes = 80
	fallbackFilename = "output"
	namingPrompt     = "Generate a short filename for the following content. Do not include any special characters: "
)

// Namer asks the backend for a short descriptive filename for an answer.
type Namer struct {
	provider domain.Provider
	model    string
	logger   *slog.Logger
}

type NamerConfig struct {
	Provider domain.Provider
	Model    string
	Logger   *slog.Logger
}

func NewNamer(cfg NamerConfig) *Namer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Namer{provider: cfg.Provider, model: cfg.Model, logger: cfg.Logger}
}

// Name returns a filesystem-safe base name (no extension) for answer.
func (n *Namer) Name(ctx context.Context, answer string) (string, error) {
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty answer", domain.ErrInvalidInput)
	}

	resp, err := n.provider.Chat(ctx, domain.ChatRequest{
		Model: n.model,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: "You are a helpful assistant."},
			{Role: "user", Content: namingPrompt + answer},
		},
	})
	if err != nil {
		return "", fmt.Errorf("name artifact: %w", err)
	}

	name := SanitizeFilename(resp.Content)
	n.logger.Debug("artifact named", "raw", resp.Content, "name", name)
	return name, nil
}

// SanitizeFilename strips characters that are illegal in paths on common
// filesystems, caps the length, and falls back to "output" when nothing is left.
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		switch r {
		case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	if r := []rune(s); len(r) > maxFilenameRunes {
		s = strings.TrimSpace(string(r[:maxFilenameRunes]))
	}
	if s == "" || s == "." || s == ".." {
		return fallbackFilename
	}
	return s
}
