package action

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokBytes
	tokPunct
)

type token struct {
	kind tokenKind
	text string // raw text
	str  string // decoded content of string/bytes tokens
	pos  int
}

const punctChars = ".,()=[]{}:+-*/%"

// lex splits an action reference into tokens. Only the small alphabet of
// the reference grammar (plus enough of the surrounding expression syntax to
// report useful errors) is recognized.
func lex(src string) ([]token, error) {
	var toks []token
	i, n := 0, len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(src[i]) {
				i++
			}
			ident := src[start:i]
			if i < n && (src[i] == '"' || src[i] == '\'') {
				prefix := strings.ToLower(ident)
				switch prefix {
				case "r", "u", "b", "br", "rb":
					s, next, err := lexString(src, i, strings.Contains(prefix, "r"))
					if err != nil {
						return nil, err
					}
					kind := tokString
					if strings.Contains(prefix, "b") {
						kind = tokBytes
					}
					toks = append(toks, token{kind: kind, text: src[start:next], str: s, pos: start})
					i = next
					continue
				default:
					return nil, &SyntaxError{Source: src, Pos: i, Msg: "unexpected string after " + ident}
				}
			}
			toks = append(toks, token{kind: tokIdent, text: ident, pos: start})
		case isDigit(c) || (c == '.' && i+1 < n && isDigit(src[i+1])):
			start := i
			i = scanNumber(src, i)
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case c == '"' || c == '\'':
			s, next, err := lexString(src, i, false)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: src[i:next], str: s, pos: i})
			i = next
		case strings.IndexByte(punctChars, c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		default:
			return nil, &SyntaxError{Source: src, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: n})
	return toks, nil
}

// scanNumber consumes digits, letters, underscores and dots, plus a sign
// right after a decimal exponent. Validation happens in the parser.
func scanNumber(src string, i int) int {
	n := len(src)
	hex := i+1 < n && src[i] == '0' && (src[i+1] == 'x' || src[i+1] == 'X')
	for i < n {
		c := src[i]
		if isIdentPart(c) || c == '.' {
			i++
			continue
		}
		if !hex && (c == '+' || c == '-') && i > 0 && (src[i-1] == 'e' || src[i-1] == 'E') {
			i++
			continue
		}
		break
	}
	return i
}

// lexString reads a quoted string starting at src[i]. Escapes follow
// Python: \\ \' \" \a \b \f \n \r \t \v, octal \ooo, \xhh, \uXXXX and
// \UXXXXXXXX. Unknown escapes are kept as written.
func lexString(src string, i int, raw bool) (string, int, error) {
	quote := src[i]
	start := i
	i++
	var sb strings.Builder
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return sb.String(), i + 1, nil
		case c == '\n':
			return "", 0, &SyntaxError{Source: src, Pos: i, Msg: "newline in string literal"}
		case c == '\\' && i+1 < len(src):
			next := src[i+1]
			if raw {
				sb.WriteByte(c)
				sb.WriteByte(next)
				i += 2
				continue
			}
			switch next {
			case '\\', '\'', '"':
				sb.WriteByte(next)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'a':
				sb.WriteByte('\a')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'v':
				sb.WriteByte('\v')
			case 'x', 'u', 'U':
				width := 2
				if next == 'u' {
					width = 4
				} else if next == 'U' {
					width = 8
				}
				end := i + 2 + width
				if end > len(src) {
					return "", 0, &SyntaxError{Source: src, Pos: i, Msg: fmt.Sprintf("truncated \\%c escape", next)}
				}
				v, err := strconv.ParseUint(src[i+2:end], 16, 32)
				if err != nil || v > unicode.MaxRune {
					return "", 0, &SyntaxError{Source: src, Pos: i, Msg: fmt.Sprintf("invalid \\%c escape", next)}
				}
				sb.WriteRune(rune(v))
				i = end
				continue
			case '0', '1', '2', '3', '4', '5', '6', '7':
				end := i + 1
				for end < len(src) && end < i+4 && '0' <= src[end] && src[end] <= '7' {
					end++
				}
				v, _ := strconv.ParseUint(src[i+1:end], 8, 32)
				sb.WriteRune(rune(v))
				i = end
				continue
			default:
				sb.WriteByte(c)
				sb.WriteByte(next)
			}
			i += 2
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return "", 0, &SyntaxError{Source: src, Pos: start, Msg: "unterminated string literal"}
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
