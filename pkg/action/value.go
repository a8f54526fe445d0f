package action

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the type of a literal argument value.
type Kind int

const (
	KindInt Kind = iota + 1
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a literal action argument: an integer, a float or a string.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(v int64) Value     { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }

func (v Value) Kind() Kind { return v.kind }

// Int returns the integer value; floats are truncated and strings parsed.
func (v Value) Int() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindFloat:
		return int64(v.f), nil
	case KindString:
		return strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
	default:
		return 0, fmt.Errorf("empty value")
	}
}

// Float returns the value as a float64; strings are parsed.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindInt:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	case KindString:
		return strconv.ParseFloat(strings.TrimSpace(v.s), 64)
	default:
		return 0, fmt.Errorf("empty value")
	}
}

// String returns the value as plain text, the way it is handed to commands.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return v.s
	}
}

// Literal renders the value in action reference syntax.
func (v Value) Literal() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.String()
}

// Args maps argument names to literal values.
type Args map[string]Value

// Clone returns a shallow copy; nil stays nil.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge returns a copy of a overlaid with every key of b.
func (a Args) Merge(b Args) Args {
	out := make(Args, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Keys returns the argument names, sorted.
func (a Args) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Str returns the textual value of key, or fallback when absent.
func (a Args) Str(key, fallback string) string {
	if v, ok := a[key]; ok {
		return v.String()
	}
	return fallback
}

// IntOr returns the integer value of key, or fallback when absent.
func (a Args) IntOr(key string, fallback int64) (int64, error) {
	v, ok := a[key]
	if !ok {
		return fallback, nil
	}
	n, err := v.Int()
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return n, nil
}

// Strings converts plain key/value pairs (typically regex captures) to Args.
func Strings(m map[string]string) Args {
	out := make(Args, len(m))
	for k, v := range m {
		out[k] = String(v)
	}
	return out
}

// Render formats args as "k1=v1, k2=v2" with sorted keys.
func (a Args) Render() string {
	parts := make([]string, 0, len(a))
	for _, k := range a.Keys() {
		parts = append(parts, k+"="+a[k].Literal())
	}
	return strings.Join(parts, ", ")
}
