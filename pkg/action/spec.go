package action

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Executor runs tasks off the caller's goroutine.
type Executor interface {
	Submit(ctx context.Context, task func(context.Context)) error
}

// Spec is a resolved action: a parsed reference bound to its implementation.
type Spec struct {
	Reference

	fn   Func
	exec Executor
	log  zerolog.Logger
}

type Option func(*Spec)

// WithExecutor makes Run schedule invocations on e instead of running inline.
func WithExecutor(e Executor) Option { return func(s *Spec) { s.exec = e } }

func WithLogger(l zerolog.Logger) Option { return func(s *Spec) { s.log = l } }

// New parses ref and resolves it against reg.
func New(ref string, reg *Registry, opts ...Option) (*Spec, error) {
	parsed, err := Parse(ref)
	if err != nil {
		return nil, err
	}
	fn, err := reg.Lookup(parsed.Provider, parsed.Function)
	if err != nil {
		return nil, err
	}
	s := &Spec{Reference: parsed, fn: fn, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("action", parsed.Name()).Logger()
	return s, nil
}

// Prepare returns the literal arguments overlaid with kwargs. The stored
// arguments are never modified.
func (s *Spec) Prepare(kwargs map[string]string) Args {
	return s.Args.Merge(Strings(kwargs))
}

// Invoke runs the action synchronously. A panicking action is reported as
// an error.
func (s *Spec) Invoke(ctx context.Context, kwargs map[string]string) (err error) {
	args := s.Prepare(kwargs)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", s.Name(), r)
		}
	}()
	return s.fn(ctx, args)
}

// Run schedules the action and returns immediately when an executor is
// configured. Failures are logged, never returned: one failing action must
// not stop log processing.
func (s *Spec) Run(ctx context.Context, kwargs map[string]string) {
	task := func(ctx context.Context) {
		if err := s.Invoke(ctx, kwargs); err != nil {
			s.log.Error().Err(err).Msg("action failed")
			return
		}
		s.log.Debug().Msg("action done")
	}
	if s.exec == nil {
		task(ctx)
		return
	}
	if err := s.exec.Submit(ctx, task); err != nil {
		s.log.Warn().Err(err).Msg("action not scheduled")
	}
}
