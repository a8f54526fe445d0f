package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/PhucNguyen204/logwarden/internal/source"
	"github.com/PhucNguyen204/logwarden/pkg/matches"
	"github.com/PhucNguyen204/logwarden/pkg/rule"
	"github.com/PhucNguyen204/logwarden/pkg/search"
)

// Hit is one pattern of a rule matching an entry.
type Hit struct {
	Rule   *rule.Rule
	Result search.Result
}

// Stats counts engine activity since start.
type Stats struct {
	Entries  int64 `json:"entries"`
	Matches  int64 `json:"matches"`
	Triggers int64 `json:"triggers"`
	Errors   int64 `json:"errors"`
}

// Engine dispatches log entries to rules: every entry is searched by every
// applicable rule and each match is counted, possibly triggering the rule's
// action.
type Engine struct {
	rules       []*rule.Rule
	matches     *matches.Matches
	exec        search.Submitter
	maxInFlight int
	log         zerolog.Logger

	entries  atomic.Int64
	hits     atomic.Int64
	triggers atomic.Int64
	errs     atomic.Int64
}

type Option func(*Engine)

// WithMaxInFlight bounds the number of entries processed concurrently.
func WithMaxInFlight(n int) Option { return func(e *Engine) { e.maxInFlight = n } }

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// New builds an engine. exec runs the pattern evaluations; nil evaluates
// them on the entry's goroutine.
func New(rules []*rule.Rule, m *matches.Matches, exec search.Submitter, opts ...Option) *Engine {
	e := &Engine{
		rules:       rules,
		matches:     m,
		exec:        exec,
		maxInFlight: 64,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.maxInFlight <= 0 {
		e.maxInFlight = 1
	}
	e.log = e.log.With().Str("component", "engine").Logger()
	m.OnTrigger(func(matches.Trigger) { e.triggers.Add(1) })
	return e
}

// Rules returns the rules in configuration order.
func (e *Engine) Rules() []*rule.Rule { return append([]*rule.Rule(nil), e.rules...) }

// Matches returns the counters fed by the engine.
func (e *Engine) Matches() *matches.Matches { return e.matches }

func (e *Engine) Stats() Stats {
	return Stats{
		Entries:  e.entries.Load(),
		Matches:  e.hits.Load(),
		Triggers: e.triggers.Load(),
		Errors:   e.errs.Load(),
	}
}

// Run reads src until it is exhausted or ctx ends, processing entries
// concurrently. In-flight entries are waited for and src is closed before
// Run returns. Cancellation and exhaustion are not errors; a failing
// source is.
func (e *Engine) Run(ctx context.Context, src source.Source) error {
	defer src.Close()

	var g errgroup.Group
	g.SetLimit(e.maxInFlight)

	var runErr error
read:
	for {
		entry, err := src.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				e.log.Info().Msg("stopping: context done")
			case errors.Is(err, io.EOF):
				e.log.Info().Msg("stopping: source exhausted")
			default:
				e.log.Error().Err(err).Msg("stopping: source failed")
				runErr = fmt.Errorf("read entries: %w", err)
			}
			break read
		}
		g.Go(func() error {
			e.handle(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()
	return runErr
}

func (e *Engine) handle(ctx context.Context, entry source.Entry) {
	if _, err := e.Process(ctx, entry); err != nil && ctx.Err() == nil {
		e.log.Warn().Err(err).Msg("entry processing failed")
	}
}

// Process runs one entry through every rule and counts the matches. It
// returns the hits.
func (e *Engine) Process(ctx context.Context, entry source.Entry) ([]Hit, error) {
	hits, err := e.Evaluate(ctx, entry)
	for _, h := range hits {
		e.matches.Add(ctx, h.Rule, h.Result.Captures)
	}
	return hits, err
}

// Evaluate runs one entry through every rule without counting anything.
func (e *Engine) Evaluate(ctx context.Context, entry source.Entry) ([]Hit, error) {
	e.entries.Add(1)
	var hits []Hit
	for _, r := range e.rules {
		if !r.AppliesTo(entry.Unit) {
			continue
		}
		results, err := search.New(r.Filter(), entry.Message, e.exec).All(ctx)
		for _, res := range results {
			hits = append(hits, Hit{Rule: r, Result: res})
		}
		if err != nil {
			e.errs.Add(1)
			e.hits.Add(int64(len(hits)))
			return hits, fmt.Errorf("rule %s: %w", r.Name(), err)
		}
	}
	e.hits.Add(int64(len(hits)))
	return hits, nil
}
