// Package render converts markdown answers into PDF documents with pandoc.
package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"docbot/internal/domain"
)

// inputFormat enables both $...$ and \(...\) math in the source.
const inputFormat = "markdown+tex_math_dollars+tex_math_single_backslash"

const (
	defaultTimeout   = 2 * time.Minute
	maxOutputInError = 4096
)

// Pandoc implements domain.Converter by shelling out to the pandoc binary.
type Pandoc struct {
	binary   string
	defaults []string
	timeout  time.Duration
	logger   *slog.Logger
}

type PandocConfig struct {
	Binary   string   // default "pandoc"
	Defaults []string // used when Convert is called without options
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewPandoc(cfg PandocConfig) *Pandoc {
	if cfg.Binary == "" {
		cfg.Binary = "pandoc"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pandoc{
		binary:   cfg.Binary,
		defaults: append([]string(nil), cfg.Defaults...),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Args returns the full argument list for one conversion.
func (p *Pandoc) Args(markdownPath, pdfPath string, options ...string) []string {
	if len(options) == 0 {
		options = p.defaults
	}
	args := []string{markdownPath, "--from=" + inputFormat, "--output=" + pdfPath}
	return append(args, options...)
}

// Convert renders markdownPath into pdfPath. A missing source is reported as
// domain.ErrNotFound; any renderer failure as domain.ErrConversion carrying
// the renderer's output.
func (p *Pandoc) Convert(ctx context.Context, markdownPath, pdfPath string, options ...string) error {
	if _, err := os.Stat(markdownPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: markdown file %s", domain.ErrNotFound, markdownPath)
		}
		return fmt.Errorf("%w: stat %s: %v", domain.ErrConversion, markdownPath, err)
	}
	if dir := filepath.Dir(pdfPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", domain.ErrConversion, dir, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := p.Args(markdownPath, pdfPath, options...)
	cmd := exec.CommandContext(ctx, p.binary, args...)
	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := strings.TrimSpace(string(output))
		if len(out) > maxOutputInError {
			out = out[:maxOutputInError] + "... (truncated)"
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s timed out or was cancelled: %s", domain.ErrConversion, p.binary, out)
		}
		return fmt.Errorf("%w: %s: %v: %s", domain.ErrConversion, p.binary, err, out)
	}

	p.logger.Info("pdf generated", "pdf", pdfPath, "elapsed", time.Since(start))
	return nil
}

// Version returns the first line of `pandoc --version`.
func (p *Pandoc) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, p.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", p.binary, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", fmt.Errorf("%s --version: empty output", p.binary)
}
