package agent

import (
	"fmt"
	"testing"

	"docbot/internal/domain"
)

func TestContextWindow_KeepsLastFiveInOrder(t *testing.T) {
	w := NewContextWindow(ContextWindowConfig{})
	for i := 1; i <= 7; i++ {
		w.Append(fmt.Sprintf("a%d", i))
	}
	got := w.Entries()
	want := []string{"a3", "a4", "a5", "a6", "a7"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestContextWindow_CustomBound(t *testing.T) {
	w := NewContextWindow(ContextWindowConfig{MaxEntries: 1})
	w.Append("first")
	w.Append("second")
	if got := w.Entries(); len(got) != 1 || got[0] != "second" {
		t.Fatalf("expected [second], got %v", got)
	}
}

func TestContextWindow_EntriesIsACopy(t *testing.T) {
	w := NewContextWindow(ContextWindowConfig{})
	w.Append("a")
	got := w.Entries()
	got[0] = "mutated"
	if w.Entries()[0] != "a" {
		t.Fatal("Entries must not expose internal storage")
	}
}

func TestContextWindow_TokenBudgetDropsOldest(t *testing.T) {
	w := NewContextWindow(ContextWindowConfig{MaxTokens: 5, Counter: wordCounter{}})
	w.Append("one two three")
	w.Append("four five")
	if w.Len() != 2 {
		t.Fatalf("5 tokens fit the budget, expected 2 entries, got %d", w.Len())
	}
	w.Append("six")
	got := w.Entries()
	if len(got) != 2 || got[0] != "four five" || got[1] != "six" {
		t.Fatalf("expected [four five, six], got %v", got)
	}
}

func TestContextWindow_TokenBudgetKeepsNewest(t *testing.T) {
	w := NewContextWindow(ContextWindowConfig{MaxTokens: 2, Counter: wordCounter{}})
	w.Append("a")
	w.Append("this entry alone is over budget")
	got := w.Entries()
	if len(got) != 1 || got[0] != "this entry alone is over budget" {
		t.Fatalf("expected only the newest entry, got %v", got)
	}
}

func TestContextWindow_BudgetIgnoredWithoutCounter(t *testing.T) {
	w := NewContextWindow(ContextWindowConfig{MaxTokens: 1})
	w.Append("one two")
	w.Append("three four")
	if w.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", w.Len())
	}
}

func TestDeduper_SecondCallFalse(t *testing.T) {
	d := NewDeduper()
	msg := domain.TextMessage("What is 2+2?")
	if !d.HasNew(msg) {
		t.Fatal("first sighting should be new")
	}
	if d.HasNew(msg) {
		t.Fatal("second sighting should not be new")
	}
}

func TestDeduper_KindIsPartOfIdentity(t *testing.T) {
	d := NewDeduper()
	d.HasNew(domain.TextMessage("/tmp/q.png"))
	if !d.HasNew(domain.ImageMessage("/tmp/q.png")) {
		t.Fatal("same content with a different kind should be new")
	}
}

func TestDeduper_OnlyRemembersLast(t *testing.T) {
	d := NewDeduper()
	a, b := domain.TextMessage("a"), domain.TextMessage("b")
	d.HasNew(a)
	d.HasNew(b)
	if !d.HasNew(a) {
		t.Fatal("a should be new again after b was seen")
	}
}
