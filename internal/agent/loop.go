package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docbot/internal/domain"
	"docbot/internal/metrics"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultErrorBackoff = 2 * time.Second
	defaultEchoMarker   = "bot"
)

// QuestionHandler answers one question with one reply message.
type QuestionHandler interface {
	HandleQuestion(ctx context.Context, msg domain.Message) (domain.Message, error)
}

// Watcher polls the chat surface, dispatches new questions one at a time and
// posts each reply back.
type Watcher struct {
	surface      domain.ChatSurface
	handler      QuestionHandler
	dedup        *Deduper
	echoMarker   string
	pollInterval time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
}

type WatcherConfig struct {
	Surface      domain.ChatSurface
	Handler      QuestionHandler
	EchoMarker   string // messages containing it are ignored; default "bot"
	PollInterval time.Duration
	ErrorBackoff time.Duration
	Logger       *slog.Logger
}

func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.EchoMarker == "" {
		cfg.EchoMarker = defaultEchoMarker
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		surface:      cfg.Surface,
		handler:      cfg.Handler,
		dedup:        NewDeduper(),
		echoMarker:   cfg.EchoMarker,
		pollInterval: cfg.PollInterval,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger,
	}
}

// Eligible reports whether msg should be answered. The checks short-circuit
// in order, and the duplicate check records msg as seen, so calling Eligible
// twice with the same message returns false the second time.
func (w *Watcher) Eligible(msg domain.Message) bool {
	if !msg.Answerable() {
		return false
	}
	if msg.Content == "" {
		return false
	}
	if !w.dedup.HasNew(msg) {
		return false
	}
	// Image content is a download path, which says nothing about the author.
	return msg.Kind != domain.KindText || !strings.Contains(msg.Content, w.echoMarker)
}

// Run polls until ctx is cancelled. A failing cycle is logged and followed by
// a short pause; it never stops the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started", "poll_interval", w.pollInterval, "echo_marker", w.echoMarker)
	for {
		if ctx.Err() != nil {
			w.logger.Info("watcher stopping")
			return nil
		}
		if err := w.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("watcher stopping")
				return nil
			}
			metrics.CycleErrors.Inc()
			w.logger.Error("watch cycle failed", "err", err, "backoff", w.errorBackoff)
			select {
			case <-ctx.Done():
			case <-time.After(w.errorBackoff):
			}
		}
	}
}

func (w *Watcher) cycle(ctx context.Context) error {
	metrics.PollCycles.Inc()

	msg, ok, err := w.surface.LastMessage(ctx)
	if err != nil {
		return fmt.Errorf("read last message: %w", err)
	}

	if ok && w.Eligible(msg) {
		w.logger.Info("new question", "kind", msg.Kind)
		reply, err := w.handler.HandleQuestion(ctx, msg)
		if err != nil {
			return fmt.Errorf("handle question: %w", err)
		}
		if err := w.surface.Send(ctx, reply); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
		metrics.RepliesSent.Inc()
		w.logger.Info("reply sent", "path", reply.Content)
	}

	if _, err := w.surface.WaitForChange(ctx, w.pollInterval); err != nil {
		return fmt.Errorf("wait for change: %w", err)
	}
	return nil
}
