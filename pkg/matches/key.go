package matches

import (
	"sort"
	"strconv"
	"strings"
)

// Key identifies the captures of a match. Two matches with the same named
// groups and values share a Key whatever the order the groups were found in.
type Key string

// NoKey is the Key of matches without any captured group.
const NoKey Key = ""

// KeyOf builds the canonical Key of captures.
func KeyOf(captures map[string]string) Key {
	if len(captures) == 0 {
		return NoKey
	}
	names := make([]string, 0, len(captures))
	for n := range captures {
		names = append(names, n)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, n := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(captures[n]))
	}
	return Key(sb.String())
}

func (k Key) String() string {
	if k == NoKey {
		return "-"
	}
	return string(k)
}
