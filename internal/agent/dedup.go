package agent

import (
	"sync"

	"docbot/internal/domain"
)

// Deduper remembers the fingerprint of the last message it was shown.
type Deduper struct {
	mu   sync.Mutex
	last string
	seen bool
}

func NewDeduper() *Deduper { return &Deduper{} }

// HasNew reports whether msg differs from the previously seen message and
// records it as seen. A second call with the same message returns false.
func (d *Deduper) HasNew(msg domain.Message) bool {
	fp := msg.Fingerprint()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen && d.last == fp {
		return false
	}
	d.last = fp
	d.seen = true
	return true
}
