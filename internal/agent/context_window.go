package agent

import (
	"sync"

	"docbot/internal/metrics"
)

const defaultContextEntries = 5

// ContextWindow is a bounded, oldest-first history of prior answers.
// Appends go to the tail; once the bound is exceeded the head is dropped.
type ContextWindow struct {
	mu         sync.Mutex
	entries    []string
	maxEntries int
	maxTokens  int
	counter    TokenCounter
}

type ContextWindowConfig struct {
	MaxEntries int          // default 5
	MaxTokens  int          // 0 disables the token budget
	Counter    TokenCounter // required when MaxTokens > 0, otherwise ignored
}

func NewContextWindow(cfg ContextWindowConfig) *ContextWindow {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultContextEntries
	}
	if cfg.Counter == nil {
		cfg.MaxTokens = 0
	}
	return &ContextWindow{
		maxEntries: cfg.MaxEntries,
		maxTokens:  cfg.MaxTokens,
		counter:    cfg.Counter,
	}
}

// Append adds an answer and enforces the entry bound, then the token budget.
// The newest entry is always kept, even when it alone exceeds the budget.
func (w *ContextWindow) Append(answer string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, answer)
	if over := len(w.entries) - w.maxEntries; over > 0 {
		w.entries = append([]string(nil), w.entries[over:]...)
	}

	if w.maxTokens > 0 {
		total := 0
		counts := make([]int, len(w.entries))
		for i, e := range w.entries {
			counts[i] = w.counter.Count(e)
			total += counts[i]
		}
		drop := 0
		for total > w.maxTokens && len(w.entries)-drop > 1 {
			total -= counts[drop]
			drop++
		}
		if drop > 0 {
			w.entries = append([]string(nil), w.entries[drop:]...)
		}
	}

	metrics.ContextEntries.Set(int64(len(w.entries)))
}

// Entries returns a copy of the current window, oldest first.
func (w *ContextWindow) Entries() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.entries...)
}

func (w *ContextWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
