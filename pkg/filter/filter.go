package filter

import (
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoValidPattern is returned when none of the lines of a filter could be
// turned into a usable pattern.
var ErrNoValidPattern = errors.New("unable to build a filter without at least one valid pattern")

// Pattern is one compiled line of a Filter.
type Pattern struct {
	re    *regexp.Regexp
	raw   string
	names []string
}

// Raw returns the pattern as written in the configuration, tags expanded.
func (p *Pattern) Raw() string { return p.raw }

// Names returns the named capture groups of the pattern.
func (p *Pattern) Names() []string { return append([]string(nil), p.names...) }

// Search looks for the pattern in line. On a match it returns the values of
// the named groups that took part in the match.
func (p *Pattern) Search(line string) (map[string]string, bool) {
	idx := p.re.FindStringSubmatchIndex(line)
	if idx == nil {
		return nil, false
	}
	captures := make(map[string]string, len(p.names))
	for i, name := range p.re.SubexpNames() {
		if name == "" || idx[2*i] < 0 {
			continue
		}
		captures[name] = line[idx[2*i]:idx[2*i+1]]
	}
	return captures, true
}

// Filter is an ordered set of patterns used to detect events in log entries.
// It is immutable once compiled and safe for concurrent use.
type Filter struct {
	patterns  []*Pattern
	prefilter *Prefilter
}

// Option configures Compile.
type Option func(*compileOptions)

type compileOptions struct {
	log      zerolog.Logger
	keywords []string
}

// WithLogger sets the logger receiving warnings about dropped patterns.
func WithLogger(l zerolog.Logger) Option {
	return func(o *compileOptions) { o.log = l }
}

// WithKeywords attaches a literal prefilter: lines containing none of the
// keywords are never handed to the regular expressions.
func WithKeywords(keywords ...string) Option {
	return func(o *compileOptions) { o.keywords = append(o.keywords, keywords...) }
}

// Compile builds a Filter from raw, one pattern per line.
//
// Lines that fail to compile are dropped with a warning. When limit is
// greater than one every pattern needs a named capture group (it is used to
// key the match counters); patterns without one are dropped as well.
func Compile(raw string, limit int, opts ...Option) (*Filter, error) {
	o := compileOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	expanded := ExpandTags(raw)
	var patterns []*Pattern
	for _, line := range splitLines(expanded) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		re, err := regexp.Compile("(?im)" + line)
		if err != nil {
			o.log.Warn().Str("pattern", line).Err(err).Msg("unable to compile pattern, it will be ignored")
			continue
		}
		names := namedGroups(re)
		if limit > 1 && len(names) == 0 {
			o.log.Warn().Str("pattern", line).Int("limit", limit).
				Msg("pattern has no named capturing group but needs one, it will be ignored")
			continue
		}
		patterns = append(patterns, &Pattern{re: re, raw: line, names: names})
	}
	if len(patterns) == 0 {
		return nil, ErrNoValidPattern
	}
	return &Filter{patterns: patterns, prefilter: NewPrefilter(o.keywords)}, nil
}

// Patterns returns the compiled patterns in configuration order.
func (f *Filter) Patterns() []*Pattern { return append([]*Pattern(nil), f.patterns...) }

// Len returns the number of patterns.
func (f *Filter) Len() int { return len(f.patterns) }

// HasNamedGroups reports whether at least one pattern exposes a named group.
func (f *Filter) HasNamedGroups() bool {
	for _, p := range f.patterns {
		if len(p.names) > 0 {
			return true
		}
	}
	return false
}

// Prefilter returns the literal prefilter, nil when none is configured.
func (f *Filter) Prefilter() *Prefilter { return f.prefilter }

// Allows reports whether line must be evaluated against the patterns.
func (f *Filter) Allows(line string) bool { return f.prefilter.Allows(line) }

func namedGroups(re *regexp.Regexp) []string {
	var names []string
	for _, n := range re.SubexpNames() {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// splitLines splits on \n, \r\n and \r.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
