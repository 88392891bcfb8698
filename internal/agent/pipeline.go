package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docbot/internal/domain"
	"docbot/internal/metrics"
)

const (
	markdownDir = "markdown"
	pdfDir      = "pdf"
)

// Pipeline turns one question into one PDF reply: answer, normalize math,
// name, write markdown, convert, then remember the answer.
type Pipeline struct {
	answerer  *Answerer
	namer     *Namer
	converter domain.Converter
	window    *ContextWindow
	ledger    domain.ArtifactLedger
	outputDir string
	logger    *slog.Logger
}

type PipelineConfig struct {
	Answerer  *Answerer
	Namer     *Namer
	Converter domain.Converter
	Window    *ContextWindow        // must be the window the Answerer reads
	Ledger    domain.ArtifactLedger // optional
	OutputDir string
	Logger    *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	return &Pipeline{
		answerer:  cfg.Answerer,
		namer:     cfg.Namer,
		converter: cfg.Converter,
		window:    cfg.Window,
		ledger:    cfg.Ledger,
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
	}
}

// MarkdownDir and PDFDir are where artifacts are written.
func (p *Pipeline) MarkdownDir() string { return filepath.Join(p.outputDir, markdownDir) }
func (p *Pipeline) PDFDir() string      { return filepath.Join(p.outputDir, pdfDir) }

// HandleQuestion runs the full pipeline for msg and returns a File message
// pointing at the produced PDF. Any failing step aborts the rest; the context
// window only grows when the PDF was produced.
func (p *Pipeline) HandleQuestion(ctx context.Context, msg domain.Message) (domain.Message, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run", runID, "kind", msg.Kind)
	start := time.Now()
	metrics.QuestionsTotal.Inc()

	out, err := p.handle(ctx, runID, logger, msg)
	if err != nil {
		metrics.QuestionFailures.Inc()
		logger.Error("question failed", "err", err, "elapsed", time.Since(start))
		return domain.Message{}, err
	}
	logger.Info("question answered", "pdf", out.Content, "elapsed", time.Since(start))
	return out, nil
}

func (p *Pipeline) handle(ctx context.Context, runID string, logger *slog.Logger, msg domain.Message) (domain.Message, error) {
	if err := p.ensureDirs(); err != nil {
		return domain.Message{}, err
	}

	answer, err := p.answerer.Answer(ctx, msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("request answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return domain.Message{}, fmt.Errorf("request answer: %w: backend returned an empty answer", domain.ErrInvalidInput)
	}

	normalized := NormalizeMath(answer)

	name, err := p.namer.Name(ctx, normalized)
	if err != nil {
		return domain.Message{}, fmt.Errorf("derive filename: %w", err)
	}
	logger.Debug("filename derived", "name", name)

	name = p.freeName(name, runID)
	mdPath := filepath.Join(p.MarkdownDir(), name+".md")
	pdfPath := filepath.Join(p.PDFDir(), name+".pdf")

	if err := os.WriteFile(mdPath, []byte(normalized), 0o644); err != nil {
		return domain.Message{}, fmt.Errorf("persist markdown: %w", err)
	}

	convStart := time.Now()
	if err := p.converter.Convert(ctx, mdPath, pdfPath); err != nil {
		return domain.Message{}, fmt.Errorf("convert to pdf: %w", err)
	}
	metrics.ConversionLatency.Observe(time.Since(convStart).Seconds())

	p.window.Append(answer)

	if p.ledger != nil {
		rec := domain.ArtifactRecord{
			ID:           runID,
			QuestionKind: msg.Kind.String(),
			Question:     msg.Content,
			Answer:       answer,
			Name:         name,
			MarkdownPath: mdPath,
			PDFPath:      pdfPath,
			CreatedAt:    time.Now().UTC(),
		}
		if err := p.ledger.RecordArtifact(ctx, rec); err != nil {
			logger.Warn("ledger write failed", "err", err)
		}
	}

	return domain.FileMessage(pdfPath), nil
}

// freeName keeps earlier artifacts intact: when name is already taken by a
// markdown or PDF file, the run id's first block is appended.
func (p *Pipeline) freeName(name, runID string) string {
	if !exists(filepath.Join(p.MarkdownDir(), name+".md")) && !exists(filepath.Join(p.PDFDir(), name+".pdf")) {
		return name
	}
	suffix, _, _ := strings.Cut(runID, "-")
	return name + "-" + suffix
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (p *Pipeline) ensureDirs() error {
	for _, dir := range []string{p.MarkdownDir(), p.PDFDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
