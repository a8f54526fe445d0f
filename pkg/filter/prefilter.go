package filter

import (
	"strings"

	ac "github.com/petar-dambovaliev/aho-corasick"
)

// Prefilter is a literal keyword gate evaluated before any regular
// expression. A nil *Prefilter lets everything through.
type Prefilter struct {
	ac       *ac.AhoCorasick
	keywords []string
}

// NewPrefilter builds an ASCII case-insensitive Aho-Corasick automaton over
// keywords. Blank and duplicate keywords are ignored; nil is returned when
// nothing is left.
func NewPrefilter(keywords []string) *Prefilter {
	seen := make(map[string]struct{}, len(keywords))
	var kept []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, k)
	}
	if len(kept) == 0 {
		return nil
	}
	builder := ac.NewAhoCorasickBuilder(ac.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ac.LeftMostLongestMatch,
	})
	automaton := builder.Build(kept)
	return &Prefilter{ac: &automaton, keywords: kept}
}

// Keywords returns the deduplicated keyword list.
func (p *Prefilter) Keywords() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keywords...)
}

// Allows reports whether line contains at least one keyword.
func (p *Prefilter) Allows(line string) bool {
	if p == nil || p.ac == nil {
		return true
	}
	return len(p.ac.FindAll(line)) > 0
}
