package search

import (
	"context"
	"errors"

	"github.com/PhucNguyen204/logwarden/pkg/filter"
)

// ErrExhausted is returned by Next once every pattern has been evaluated.
var ErrExhausted = errors.New("search exhausted")

// Submitter runs a task on another goroutine. *pool.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task func(context.Context)) error
}

// Result is the outcome of one pattern against the line.
type Result struct {
	Pattern  string
	Captures map[string]string
	Matched  bool
}

// Scheduler evaluates the patterns of a filter against one line, one
// pattern per Next call, in filter order. Evaluations run on the
// Submitter so regular expressions never block the caller's goroutine.
type Scheduler struct {
	line     string
	patterns []*filter.Pattern
	next     int
	exec     Submitter
}

// New prepares the search of line with f. A nil exec evaluates inline. When
// the filter's prefilter rejects the line the scheduler starts exhausted.
func New(f *filter.Filter, line string, exec Submitter) *Scheduler {
	s := &Scheduler{line: line, exec: exec}
	if f.Allows(line) {
		s.patterns = f.Patterns()
	}
	return s
}

// Next evaluates the next pattern. It returns ErrExhausted when there is
// none left, ctx's error when ctx ends while waiting, or the Submitter's
// error when the evaluation could not be scheduled.
func (s *Scheduler) Next(ctx context.Context) (Result, error) {
	if s.next >= len(s.patterns) {
		return Result{}, ErrExhausted
	}
	p := s.patterns[s.next]
	s.next++

	if s.exec == nil {
		return evaluate(p, s.line), nil
	}
	done := make(chan Result, 1)
	line := s.line
	if err := s.exec.Submit(ctx, func(context.Context) { done <- evaluate(p, line) }); err != nil {
		return Result{}, err
	}
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Remaining returns the number of patterns not evaluated yet.
func (s *Scheduler) Remaining() int { return len(s.patterns) - s.next }

// All drains the scheduler and returns the matching results.
func (s *Scheduler) All(ctx context.Context) ([]Result, error) {
	var out []Result
	for {
		r, err := s.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if r.Matched {
			out = append(out, r)
		}
	}
}

func evaluate(p *filter.Pattern, line string) Result {
	caps, ok := p.Search(line)
	return Result{Pattern: p.Raw(), Captures: caps, Matched: ok}
}
