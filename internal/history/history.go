package history

import (
	"sync"

	"github.com/PhucNguyen204/logwarden/pkg/matches"
)

// History keeps the most recent triggers in memory with concurrent access
// protection
type History struct {
	mu    sync.RWMutex
	items []matches.Trigger
	next  int
	full  bool
}

// New creates a history holding up to size triggers (100 when size <= 0)
func New(size int) *History {
	if size <= 0 {
		size = 100
	}
	return &History{items: make([]matches.Trigger, size)}
}

// Record stores t, evicting the oldest trigger when full. Its signature
// fits matches.Matches.OnTrigger.
func (h *History) Record(t matches.Trigger) {
	h.mu.Lock()
	h.items[h.next] = t
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

// Len returns the number of stored triggers
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.items)
	}
	return h.next
}

// List returns up to limit triggers, newest first. limit <= 0 returns all.
// An optional rule name filters the result.
func (h *History) List(limit int, rule string) []matches.Trigger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := h.next
	if h.full {
		n = len(h.items)
	}
	out := make([]matches.Trigger, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - 1 - i + len(h.items)) % len(h.items)
		t := h.items[idx]
		if rule != "" && t.Rule != rule {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
