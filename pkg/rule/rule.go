package rule

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/pkg/action"
	"github.com/PhucNguyen204/logwarden/pkg/filter"
)

var (
	// ErrInvalidLimit is returned for limits lower than one.
	ErrInvalidLimit = errors.New("rule limit must be a positive integer")
	// ErrNoRule is returned by Load when no rule survived validation.
	ErrNoRule = errors.New("no valid rule to apply")
)

// Rule binds a filter to an action: every limit-th match of the filter for
// a given set of captures triggers the action.
type Rule struct {
	name      string
	filter    *filter.Filter
	filterRaw string
	limit     int
	action    *action.Spec
	unit      string
	maxKeys   int
}

// Option configures New.
type Option func(*options)

type options struct {
	log      zerolog.Logger
	exec     action.Executor
	keywords []string
	unit     string
	maxKeys  int
}

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithExecutor sets the executor the rule's action is scheduled on.
func WithExecutor(e action.Executor) Option { return func(o *options) { o.exec = e } }

// WithKeywords adds a literal prefilter to the rule's filter.
func WithKeywords(keywords ...string) Option {
	return func(o *options) { o.keywords = append(o.keywords, keywords...) }
}

// WithUnit restricts the rule to entries of a systemd unit.
func WithUnit(unit string) Option { return func(o *options) { o.unit = unit } }

// WithMaxKeys bounds the number of distinct match keys tracked for the rule.
// Zero means unbounded.
func WithMaxKeys(n int) Option { return func(o *options) { o.maxKeys = n } }

// New compiles the filter and resolves the action of a rule.
func New(name, filterSrc string, limit int, actionSrc string, reg *action.Registry, opts ...Option) (*Rule, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if limit < 1 {
		return nil, fmt.Errorf("rule %s: %w (got %d)", name, ErrInvalidLimit, limit)
	}
	log := o.log.With().Str("rule", name).Logger()

	f, err := filter.Compile(filterSrc, limit, filter.WithLogger(log), filter.WithKeywords(o.keywords...))
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}
	aopts := []action.Option{action.WithLogger(log)}
	if o.exec != nil {
		aopts = append(aopts, action.WithExecutor(o.exec))
	}
	a, err := action.New(actionSrc, reg, aopts...)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}
	if o.maxKeys < 0 {
		o.maxKeys = 0
	}
	return &Rule{
		name:      name,
		filter:    f,
		limit:     limit,
		action:    a,
		unit:      normalizeUnit(o.unit),
		maxKeys:   o.maxKeys,
		filterRaw: filterSrc,
	}, nil
}

func (r *Rule) Name() string           { return r.name }
func (r *Rule) Filter() *filter.Filter { return r.filter }
func (r *Rule) Limit() int             { return r.limit }
func (r *Rule) Action() *action.Spec   { return r.action }
func (r *Rule) Unit() string           { return r.unit }
func (r *Rule) MaxKeys() int           { return r.maxKeys }

// FilterSource returns the filter as configured, before tag expansion.
func (r *Rule) FilterSource() string { return r.filterRaw }

// AppliesTo reports whether entries of unit are evaluated by the rule. A
// rule without a unit applies to every entry.
func (r *Rule) AppliesTo(unit string) bool {
	return r.unit == "" || unit == "" || r.unit == unit
}

func (r *Rule) String() string {
	return fmt.Sprintf("Rule(name=%s, limit=%d, action=%s, patterns=%d)",
		r.name, r.limit, r.action, r.filter.Len())
}
