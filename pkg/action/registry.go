package action

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func is an invocable action. Args carries the reference's literal
// arguments merged with the captures of the triggering line.
type Func func(ctx context.Context, args Args) error

// Registry maps provider and function names to implementations.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]map[string]Func)}
}

// Register adds fn as provider.function, replacing any previous entry.
func (r *Registry) Register(provider, function string, fn Func) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	fns, ok := r.providers[provider]
	if !ok {
		fns = make(map[string]Func)
		r.providers[provider] = fns
	}
	fns[function] = fn
	return r
}

// Lookup resolves provider.function.
func (r *Registry) Lookup(provider, function string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unable to load provider %q: %w", provider, ErrActionNotFound)
	}
	fn, ok := fns[function]
	if !ok {
		return nil, fmt.Errorf("provided action (%s.%s): %w", provider, function, ErrActionNotFound)
	}
	if fn == nil {
		return nil, fmt.Errorf("provided action (%s.%s): %w", provider, function, ErrActionInvalid)
	}
	return fn, nil
}

// Names lists every registered "provider.function", sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for p, fns := range r.providers {
		for f := range fns {
			out = append(out, p+"."+f)
		}
	}
	sort.Strings(out)
	return out
}
