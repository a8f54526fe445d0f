package filter

import "strings"

// Tags usable inside rule filters. They are replaced by their regular
// expression before compilation.
const (
	TagIP   = "<IP>"
	TagPort = "<PORT>"
)

// portPattern matches a port number in 1..65534.
const portPattern = `([1-9]` + // 1..9
	`|[1-9][0-9]{1,3}` + // 10..9999
	`|[1-5][0-9]{4}` + // 10000..59999
	`|6[0-4][0-9]{3}` + // 60000..64999
	`|65[0-4][0-9]{2}` + // 65000..65499
	`|655[0-2][0-9]` + // 65500..65529
	`|6553[0-4])` // 65530..65534

var knownTags = map[string]string{
	TagIP:   `\S+`,
	TagPort: portPattern,
}

var tagReplacer = newTagReplacer()

func newTagReplacer() *strings.Replacer {
	pairs := make([]string, 0, 2*len(knownTags))
	for tag, re := range knownTags {
		pairs = append(pairs, tag, re)
	}
	return strings.NewReplacer(pairs...)
}

// KnownTags returns a copy of the tag table.
func KnownTags() map[string]string {
	out := make(map[string]string, len(knownTags))
	for k, v := range knownTags {
		out[k] = v
	}
	return out
}

// ExpandTags replaces every known tag in raw with its regular expression.
func ExpandTags(raw string) string {
	return tagReplacer.Replace(raw)
}
