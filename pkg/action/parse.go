package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reference is a parsed action reference: provider.function plus literal
// keyword arguments.
type Reference struct {
	Provider string
	Function string
	Args     Args
}

// Name returns "provider.function".
func (r Reference) Name() string { return r.Provider + "." + r.Function }

// String renders the reference in canonical form.
func (r Reference) String() string {
	if len(r.Args) == 0 {
		return r.Name()
	}
	return r.Name() + "(" + r.Args.Render() + ")"
}

// Parse reads an action reference. Accepted forms are
//
//	module.function
//	module.function()
//	module.function(key1=value1, key2="value2")
//
// where every value is an integer, float or quoted string literal. Nothing
// is ever evaluated: the input is parsed into a small expression tree that
// is then checked against these shapes.
func Parse(src string) (Reference, error) {
	if i := strings.IndexByte(src, 0); i >= 0 {
		return Reference{}, fmt.Errorf("%w (offset %d)", ErrNullByte, i)
	}
	toks, err := lex(src)
	if err != nil {
		return Reference{}, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return Reference{}, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return Reference{}, p.errorf(t, "unexpected %s", describeToken(t))
	}
	return toReference(src, root)
}

// ---------------- expression tree ----------------

type nodeKind int

const (
	nName nodeKind = iota
	nNumber
	nString
	nBytes
	nAttr
	nCall
	nList
	nTuple
	nSet
	nDict
	nUnary
	nBinary
)

type node struct {
	kind    nodeKind
	pos     int
	text    string // name, attribute, operator or raw literal
	str     string
	num     Value
	complex bool
	x, y    *node
	items   []*node // positional call arguments or collection items
	kwargs  []kwarg
}

type kwarg struct {
	name  string
	value *node
	pos   int
}

// ---------------- parser ----------------

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expect(s string) (token, error) {
	t := p.next()
	if t.kind != tokPunct || t.text != s {
		return t, p.errorf(t, "expected %q, got %s", s, describeToken(t))
	}
	return t, nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Source: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

// expr := term (("+"|"-") term)*
func (p *parser) parseExpr() (*node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &node{kind: nBinary, pos: op.pos, text: op.text, x: left, y: right}
	}
	return left, nil
}

// term := unary (("*"|"/"|"%") unary)*
func (p *parser) parseTerm() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &node{kind: nBinary, pos: op.pos, text: op.text, x: left, y: right}
	}
	return left, nil
}

// unary := ("-"|"+") unary | postfix
//
// A sign directly in front of a number literal is folded into it.
func (p *parser) parseUnary() (*node, error) {
	if p.isPunct("-") || p.isPunct("+") {
		op := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if operand.kind == nNumber && !operand.complex && op.text == "-" {
			switch operand.num.Kind() {
			case KindInt:
				operand.num = Int(-operand.num.i)
			case KindFloat:
				operand.num = Float(-operand.num.f)
			}
			operand.pos = op.pos
			return operand, nil
		}
		if operand.kind == nNumber && op.text == "+" {
			return operand, nil
		}
		return &node{kind: nUnary, pos: op.pos, text: op.text, x: operand}, nil
	}
	return p.parsePostfix()
}

// postfix := primary ("." ident | "(" arguments ")")*
func (p *parser) parsePostfix() (*node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			p.next()
			t := p.next()
			if t.kind != tokIdent {
				return nil, p.errorf(t, "expected attribute name, got %s", describeToken(t))
			}
			n = &node{kind: nAttr, pos: t.pos, text: t.text, x: n}
		case p.isPunct("("):
			open := p.next()
			call := &node{kind: nCall, pos: open.pos, x: n}
			if err := p.parseArguments(call); err != nil {
				return nil, err
			}
			n = call
		default:
			return n, nil
		}
	}
}

// arguments := [argument ("," argument)* [","]] ")"
// argument  := ident "=" expr | expr
func (p *parser) parseArguments(call *node) error {
	seen := map[string]bool{}
	for {
		if p.isPunct(")") {
			p.next()
			return nil
		}
		t := p.peek()
		if t.kind == tokIdent && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "=" {
			p.next()
			p.next()
			if seen[t.text] {
				return p.errorf(t, "keyword argument repeated: %s", t.text)
			}
			seen[t.text] = true
			value, err := p.parseExpr()
			if err != nil {
				return err
			}
			call.kwargs = append(call.kwargs, kwarg{name: t.text, value: value, pos: t.pos})
		} else {
			if len(call.kwargs) > 0 {
				return p.errorf(t, "positional argument follows keyword argument")
			}
			value, err := p.parseExpr()
			if err != nil {
				return err
			}
			call.items = append(call.items, value)
		}
		if p.isPunct(",") {
			p.next()
			continue
		}
		if _, err := p.expect(")"); err != nil {
			return err
		}
		return nil
	}
}

func (p *parser) parsePrimary() (*node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		return &node{kind: nName, pos: t.pos, text: t.text}, nil
	case tokNumber:
		return p.parseNumber(t)
	case tokString:
		n := &node{kind: nString, pos: t.pos, text: t.text, str: t.str}
		// adjacent string literals concatenate
		for p.peek().kind == tokString {
			n.str += p.next().str
		}
		return n, nil
	case tokBytes:
		return &node{kind: nBytes, pos: t.pos, text: t.text, str: t.str}, nil
	case tokPunct:
		switch t.text {
		case "(":
			return p.parseSequence(t, ")", nTuple)
		case "[":
			return p.parseSequence(t, "]", nList)
		case "{":
			return p.parseBraces(t)
		}
	}
	return nil, p.errorf(t, "unexpected %s", describeToken(t))
}

func (p *parser) parseNumber(t token) (*node, error) {
	text := t.text
	n := &node{kind: nNumber, pos: t.pos, text: text}
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		if _, err := strconv.ParseFloat(text[:len(text)-1], 64); err != nil {
			return nil, p.errorf(t, "invalid number %s", text)
		}
		n.complex = true
		return n, nil
	}
	if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		n.num = Int(i)
		return n, nil
	} else if errors.Is(err, strconv.ErrRange) {
		return nil, p.errorf(t, "integer out of range: %s", text)
	}
	isHex := len(text) > 1 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X')
	if !isHex {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			n.num = Float(f)
			return n, nil
		}
	}
	return nil, p.errorf(t, "invalid number %s", text)
}

// parseSequence parses "(...)" and "[...]". A parenthesized single
// expression without a trailing comma is a plain group.
func (p *parser) parseSequence(open token, closing string, kind nodeKind) (*node, error) {
	seq := &node{kind: kind, pos: open.pos}
	trailingComma := false
	for !p.isPunct(closing) {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		seq.items = append(seq.items, item)
		trailingComma = false
		if p.isPunct(",") {
			p.next()
			trailingComma = true
			continue
		}
		break
	}
	if _, err := p.expect(closing); err != nil {
		return nil, err
	}
	if kind == nTuple && len(seq.items) == 1 && !trailingComma {
		return seq.items[0], nil
	}
	return seq, nil
}

// parseBraces parses set and dict displays.
func (p *parser) parseBraces(open token) (*node, error) {
	n := &node{kind: nDict, pos: open.pos}
	first := true
	for !p.isPunct("}") {
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if first {
			if !p.isPunct(":") {
				n.kind = nSet
			}
			first = false
		}
		if n.kind == nDict {
			if _, err := p.expect(":"); err != nil {
				return nil, err
			}
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			n.items = append(n.items, key, value)
		} else {
			n.items = append(n.items, key)
		}
		if p.isPunct(",") {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return n, nil
}

func describeToken(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "name " + t.text
	case tokNumber:
		return "number " + t.text
	case tokString, tokBytes:
		return "string " + t.text
	default:
		return strconv.Quote(t.text)
	}
}

// ---------------- shape validation ----------------

func toReference(src string, root *node) (Reference, error) {
	switch root.kind {
	case nAttr:
		if root.x.kind != nName {
			return Reference{}, &UnsupportedActionError{Action: src, Reason: "expected module.function"}
		}
		return Reference{Provider: root.x.text, Function: root.text, Args: Args{}}, nil

	case nCall:
		fn := root.x
		if fn.kind != nAttr || fn.x.kind != nName {
			return Reference{}, &UnsupportedActionError{Action: src, Reason: "only module.function(...) calls are supported"}
		}
		if len(root.items) > 0 {
			return Reference{}, &UnsupportedActionError{Action: src, Reason: "positional arguments are not supported"}
		}
		args := make(Args, len(root.kwargs))
		for _, kw := range root.kwargs {
			v, err := literalValue(kw.value)
			if err != nil {
				return Reference{}, &UnsupportedArgumentError{Action: src, Key: kw.name, Kind: err.Error()}
			}
			args[kw.name] = v
		}
		return Reference{Provider: fn.x.text, Function: fn.text, Args: args}, nil
	}
	return Reference{}, &UnsupportedActionError{Action: src}
}

// literalValue returns the value of a number or string node. For any other
// node the error text names its kind.
func literalValue(n *node) (Value, error) {
	switch n.kind {
	case nNumber:
		if n.complex {
			return Value{}, errors.New("complex")
		}
		return n.num, nil
	case nString:
		return String(n.str), nil
	}
	return Value{}, errors.New(nodeKindName(n))
}

func nodeKindName(n *node) string {
	switch n.kind {
	case nBytes:
		return "bytes"
	case nList:
		return "list"
	case nTuple:
		return "tuple"
	case nSet:
		return "set"
	case nDict:
		return "dict"
	case nName:
		return "name"
	case nAttr:
		return "attribute"
	case nCall:
		return "call"
	case nUnary, nBinary:
		return "expression"
	default:
		return "Unknown"
	}
}
