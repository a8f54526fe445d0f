package rule

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/PhucNguyen204/logwarden/pkg/action"
)

// Config is the declarative form of a rule, as found in configuration
// files.
type Config struct {
	Name        string   `yaml:"name" mapstructure:"name" json:"name"`
	Filter      string   `yaml:"filter" mapstructure:"filter" json:"filter"`
	Action      string   `yaml:"action" mapstructure:"action" json:"action"`
	Limit       any      `yaml:"limit" mapstructure:"limit" json:"limit,omitempty"`
	SystemdUnit string   `yaml:"systemd_unit" mapstructure:"systemd_unit" json:"systemd_unit,omitempty"`
	Keywords    []string `yaml:"keywords" mapstructure:"keywords" json:"keywords,omitempty"`
	MaxKeys     int      `yaml:"max_keys" mapstructure:"max_keys" json:"max_keys,omitempty"`
}

// Load builds every valid rule of configs. Broken entries are skipped with
// a warning; ErrNoRule is returned when nothing is left.
func Load(configs []Config, reg *action.Registry, log zerolog.Logger, opts ...Option) ([]*Rule, error) {
	var rules []*Rule
	seen := map[string]bool{}
	for i, c := range configs {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
			log.Warn().Str("rule", name).Msg("rule has no name, using its position")
		}
		if seen[name] {
			log.Warn().Str("rule", name).Msg("duplicate rule name, it will be skipped")
			continue
		}
		if strings.TrimSpace(c.Filter) == "" {
			log.Warn().Str("rule", name).Msg("rule has no filter, it will be skipped")
			continue
		}
		if strings.TrimSpace(c.Action) == "" {
			log.Warn().Str("rule", name).Msg("rule has no action, it will be skipped")
			continue
		}
		limit, err := parseLimit(c.Limit)
		if err != nil {
			log.Warn().Str("rule", name).Err(err).Msg("invalid limit, falling back to 1")
			limit = 1
		}

		ropts := append([]Option{
			WithLogger(log),
			WithKeywords(c.Keywords...),
			WithUnit(c.SystemdUnit),
			WithMaxKeys(c.MaxKeys),
		}, opts...)
		r, err := New(name, c.Filter, limit, strings.TrimSpace(c.Action), reg, ropts...)
		if err != nil {
			log.Warn().Str("rule", name).Err(err).Msg("rule is invalid, it will be skipped")
			continue
		}
		seen[name] = true
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		return nil, ErrNoRule
	}
	return rules, nil
}

var errNoLimit = errors.New("limit is missing")

// parseLimit accepts integers, integral floats and decimal strings.
func parseLimit(v any) (int, error) {
	var n int64
	switch l := v.(type) {
	case nil:
		return 0, errNoLimit
	case int:
		n = int64(l)
	case int64:
		n = l
	case uint64:
		if l > math.MaxInt32 {
			return 0, fmt.Errorf("limit %d out of range", l)
		}
		n = int64(l)
	case float64:
		if l != math.Trunc(l) {
			return 0, fmt.Errorf("limit %v is not an integer", l)
		}
		n = int64(l)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(l), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("limit %q is not an integer", l)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("limit of type %T is not supported", v)
	}
	if n < 1 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w (got %d)", ErrInvalidLimit, n)
	}
	return int(n), nil
}

// ParseYAML decodes rule configurations. A document is either a list of
// rules, a mapping with a "rules" list, or a single rule mapping.
func ParseYAML(b []byte) ([]Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var out []Config
		if err := root.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	case yaml.MappingNode:
		var wrapped struct {
			Rules []Config `yaml:"rules"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, err
		}
		if wrapped.Rules != nil {
			return wrapped.Rules, nil
		}
		var single Config
		if err := root.Decode(&single); err != nil {
			return nil, err
		}
		return []Config{single}, nil
	default:
		return nil, fmt.Errorf("rules document must be a list or a mapping, line %d", root.Line)
	}
}

// Units returns the systemd units watched by rules. An empty result means
// every entry must be read: it happens as soon as one rule has no unit.
func Units(rules []*Rule) []string {
	set := map[string]struct{}{}
	for _, r := range rules {
		if r.unit == "" {
			return nil
		}
		set[r.unit] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// unitTypes are the systemd unit suffixes kept as given.
var unitTypes = []string{
	".service", ".socket", ".device", ".mount", ".automount", ".swap",
	".target", ".path", ".timer", ".slice", ".scope",
}

// normalizeUnit appends ".service" unless u already ends with a unit type,
// the way systemctl completes unit names.
func normalizeUnit(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	for _, t := range unitTypes {
		if strings.HasSuffix(u, t) {
			return u
		}
	}
	return u + ".service"
}
