package matches

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/pkg/rule"
)

// Trigger records one firing of a rule's action.
type Trigger struct {
	ID       uuid.UUID         `json:"id"`
	Rule     string            `json:"rule"`
	Action   string            `json:"action"`
	Key      Key               `json:"key"`
	Count    int64             `json:"count"`
	Captures map[string]string `json:"captures,omitempty"`
	At       time.Time         `json:"at"`
}

// CounterSnapshot is a point in time copy of one rule's counters.
type CounterSnapshot struct {
	Rule   string           `json:"rule"`
	Limit  int              `json:"limit"`
	Counts map[string]int64 `json:"counts"`
}

// Matches holds one Counter per rule and fires actions every limit-th
// match of a key.
type Matches struct {
	mu        sync.RWMutex
	counters  map[string]*Counter
	limits    map[string]int
	observers []func(Trigger)
	log       zerolog.Logger
	now       func() time.Time
}

func New(log zerolog.Logger) *Matches {
	return &Matches{
		counters: make(map[string]*Counter),
		limits:   make(map[string]int),
		log:      log.With().Str("component", "matches").Logger(),
		now:      time.Now,
	}
}

// OnTrigger registers fn to be called after each trigger. Observers run on
// the matching goroutine and must not block.
func (m *Matches) OnTrigger(fn func(Trigger)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// counterFor returns the counter of r, creating it on first use.
func (m *Matches) counterFor(r *rule.Rule) *Counter {
	m.mu.RLock()
	c, ok := m.counters[r.Name()]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[r.Name()]; ok {
		return c
	}
	c = NewCounter(r.MaxKeys())
	m.counters[r.Name()] = c
	m.limits[r.Name()] = r.Limit()
	return c
}

// Add records a match of r with captures and runs r's action when the new
// count is a multiple of the rule limit. It returns the new count and
// whether the action was triggered.
func (m *Matches) Add(ctx context.Context, r *rule.Rule, captures map[string]string) (int64, bool) {
	key := KeyOf(captures)
	count, fire := m.counterFor(r).incrementAndCheck(key, int64(r.Limit()))
	m.log.Debug().Str("rule", r.Name()).Stringer("key", key).Int64("count", count).Msg("match")
	if !fire {
		return count, false
	}

	m.log.Info().Str("rule", r.Name()).Stringer("key", key).Int64("count", count).
		Str("action", r.Action().String()).Msg("limit reached, triggering action")
	r.Action().Run(ctx, captures)

	t := Trigger{
		ID:       uuid.New(),
		Rule:     r.Name(),
		Action:   r.Action().Name(),
		Key:      key,
		Count:    count,
		Captures: copyCaptures(captures),
		At:       m.now().UTC(),
	}
	m.mu.RLock()
	observers := slices.Clone(m.observers)
	m.mu.RUnlock()
	for _, fn := range observers {
		fn(t)
	}
	return count, true
}

// Count returns the current count of captures for the named rule.
func (m *Matches) Count(ruleName string, captures map[string]string) int64 {
	m.mu.RLock()
	c, ok := m.counters[ruleName]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.Get(KeyOf(captures))
}

// Snapshot copies every counter, sorted by rule name.
func (m *Matches) Snapshot() []CounterSnapshot {
	m.mu.RLock()
	names := make([]string, 0, len(m.counters))
	for n := range m.counters {
		names = append(names, n)
	}
	counters := make(map[string]*Counter, len(m.counters))
	limits := make(map[string]int, len(m.limits))
	for n, c := range m.counters {
		counters[n] = c
		limits[n] = m.limits[n]
	}
	m.mu.RUnlock()

	sort.Strings(names)
	out := make([]CounterSnapshot, 0, len(names))
	for _, n := range names {
		counts := counters[n].Counts()
		rendered := make(map[string]int64, len(counts))
		for k, v := range counts {
			rendered[k.String()] = v
		}
		out = append(out, CounterSnapshot{Rule: n, Limit: limits[n], Counts: rendered})
	}
	return out
}

func copyCaptures(c map[string]string) map[string]string {
	if len(c) == 0 {
		return nil
	}
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
