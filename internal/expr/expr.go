// Package expr implements the integer expression evaluator used by the
// command language. It is a recursive-descent evaluator over a byte string
// with thirteen precedence levels; every failure is a non-fatal diagnostic
// and yields 0 so evaluation of the surrounding line continues.
package expr

import (
	"github.com/reelia/reelia-go/internal/diag"
	"github.com/reelia/reelia-go/internal/scan"
)

// Host resolves the context an expression runs in: variable lookups, the
// tick pseudo-variable, and the shared seeded random source behind RND.
type Host interface {
	// Resolve returns the value of a variable or of one of its attributes.
	// attr is empty for a plain reference. ok is false when the name or
	// attribute is unknown.
	Resolve(name, attr string) (value int, ok bool)
	TickCount() int
	Rand(min, max int) int
}

type Evaluator struct {
	host Host
	rep  diag.Reporter
}

func New(host Host, rep diag.Reporter) *Evaluator {
	if rep == nil {
		rep = diag.Discard
	}
	return &Evaluator{host: host, rep: rep}
}

// Eval evaluates expr fully. Leftover bytes after the expression are a
// diagnostic, not an abort; the computed value is still returned.
func (e *Evaluator) Eval(s string) int {
	p := &parser{Evaluator: e, src: s}
	v := p.conditional()
	p.pos = scan.Skip(p.src, p.pos)
	if p.pos < len(p.src) {
		e.rep.Report(diag.Newf(diag.Syntax, "unexpected character at end of expression: %q", p.src[p.pos]))
	}
	return v
}

type parser struct {
	*Evaluator
	src string
	pos int
}

func (p *parser) skip()              { p.pos = scan.Skip(p.src, p.pos) }
func (p *parser) eof() bool          { return p.pos >= len(p.src) }
func (p *parser) peek() byte         { return p.src[p.pos] }
func (p *parser) peekAt(n int) byte  { return p.src[p.pos+n] }
func (p *parser) remain() int        { return len(p.src) - p.pos }
func (p *parser) match(c byte) bool {
	next, ok := scan.Match(p.src, p.pos, c)
	p.pos = next
	return ok
}

// conditional parses cond ? a : b, right-associative.
func (p *parser) conditional() int {
	cond := p.logicalOr()
	p.skip()
	if !p.eof() && p.peek() == '?' {
		p.pos++
		truev := p.conditional()
		if !p.match(':') {
			p.rep.Report(diag.Newf(diag.Syntax, "expected ':' in conditional expression"))
			return 0
		}
		falsev := p.conditional()
		if cond != 0 {
			return truev
		}
		return falsev
	}
	return cond
}

func (p *parser) logicalOr() int {
	left := p.logicalAnd()
	for {
		p.skip()
		if p.remain() < 2 {
			break
		}
		if p.peek() == '|' && p.peekAt(1) == '|' {
			p.pos += 2
			right := p.logicalAnd()
			if left != 0 || right != 0 {
				left = 1
			} else {
				left = 0
			}
		} else {
			break
		}
	}
	return left
}

func (p *parser) logicalAnd() int {
	left := p.bitwiseOr()
	for {
		p.skip()
		if p.remain() < 2 {
			break
		}
		if p.peek() == '&' && p.peekAt(1) == '&' {
			p.pos += 2
			right := p.bitwiseOr()
			if left != 0 && right != 0 {
				left = 1
			} else {
				left = 0
			}
		} else {
			break
		}
	}
	return left
}

func (p *parser) bitwiseOr() int {
	left := p.bitwiseXor()
	for {
		p.skip()
		if p.eof() {
			break
		}
		// Lone '|', not '||'.
		if p.peek() == '|' && (p.remain() == 1 || p.peekAt(1) != '|') {
			p.pos++
			left |= p.bitwiseXor()
		} else {
			break
		}
	}
	return left
}

func (p *parser) bitwiseXor() int {
	left := p.bitwiseAnd()
	for {
		p.skip()
		if p.eof() {
			break
		}
		if p.peek() == '^' {
			p.pos++
			left ^= p.bitwiseAnd()
		} else {
			break
		}
	}
	return left
}

func (p *parser) bitwiseAnd() int {
	left := p.equality()
	for {
		p.skip()
		if p.eof() {
			break
		}
		if p.peek() == '&' && (p.remain() == 1 || p.peekAt(1) != '&') {
			p.pos++
			left &= p.equality()
		} else {
			break
		}
	}
	return left
}

func (p *parser) equality() int {
	left := p.relational()
	for {
		p.skip()
		if p.remain() < 2 {
			break
		}
		if p.peek() == '=' && p.peekAt(1) == '=' {
			p.pos += 2
			left = b2i(left == p.relational())
		} else if p.peek() == '!' && p.peekAt(1) == '=' {
			p.pos += 2
			left = b2i(left != p.relational())
		} else {
			break
		}
	}
	return left
}

func (p *parser) relational() int {
	left := p.shift()
	for {
		p.skip()
		if p.eof() {
			break
		}
		switch {
		case p.peek() == '<' && p.remain() >= 2 && p.peekAt(1) == '=':
			p.pos += 2
			left = b2i(left <= p.shift())
		case p.peek() == '<' && (p.remain() == 1 || p.peekAt(1) != '<'):
			p.pos++
			left = b2i(left < p.shift())
		case p.peek() == '>' && p.remain() >= 2 && p.peekAt(1) == '=':
			p.pos += 2
			left = b2i(left >= p.shift())
		case p.peek() == '>' && (p.remain() == 1 || p.peekAt(1) != '>'):
			p.pos++
			left = b2i(left > p.shift())
		default:
			return left
		}
	}
	return left
}

func (p *parser) shift() int {
	left := p.additive()
	for {
		p.skip()
		if p.remain() < 2 {
			break
		}
		if p.peek() == '<' && p.peekAt(1) == '<' {
			p.pos += 2
			left = p.applyShift(left, p.additive(), true)
		} else if p.peek() == '>' && p.peekAt(1) == '>' {
			p.pos += 2
			left = p.applyShift(left, p.additive(), false)
		} else {
			break
		}
	}
	return left
}

func (p *parser) applyShift(v, n int, leftward bool) int {
	if n < 0 || n > 31 {
		p.rep.Report(diag.Newf(diag.Domain, "shift count out of range: %d", n))
		return 0
	}
	if leftward {
		return v << uint(n)
	}
	return v >> uint(n)
}

func (p *parser) additive() int {
	left := p.term()
	for {
		p.skip()
		if p.eof() {
			break
		}
		if p.peek() == '+' {
			p.pos++
			left += p.term()
		} else if p.peek() == '-' {
			p.pos++
			left -= p.term()
		} else {
			break
		}
	}
	return left
}

func (p *parser) term() int {
	left := p.primary()
	for {
		p.skip()
		if p.eof() {
			break
		}
		switch p.peek() {
		case '*':
			p.pos++
			left *= p.primary()
		case '/':
			p.pos++
			right := p.primary()
			if right == 0 {
				p.rep.Report(diag.Newf(diag.Domain, "division by zero"))
				return 0
			}
			left /= right
		case '%':
			p.pos++
			right := p.primary()
			if right == 0 {
				p.rep.Report(diag.Newf(diag.Domain, "modulo by zero"))
				return 0
			}
			left %= right
		default:
			return left
		}
	}
	return left
}

// primary parses literals, unary operators, parenthesized subexpressions,
// variable references, the tick pseudo-variable, and function calls.
func (p *parser) primary() int {
	p.skip()
	if p.eof() {
		p.rep.Report(diag.Newf(diag.Syntax, "unexpected end of expression"))
		return 0
	}

	switch c := p.peek(); {
	case c == '(':
		p.pos++
		v := p.conditional()
		if !p.match(')') {
			p.rep.Report(diag.Newf(diag.Syntax, "expected ')'"))
			return 0
		}
		return v

	case c == '-':
		p.pos++
		return -p.primary()

	case c == '~':
		p.pos++
		return ^p.primary()

	case c == '$':
		return p.variable()

	case c == '#':
		return p.binaryLiteral()

	case scan.Lower(c) == 'b' && p.remain() >= 2 && (p.peekAt(1) == '0' || p.peekAt(1) == '1'):
		return p.binaryLiteral()

	case scan.Lower(c) == 'x' && p.remain() >= 2 && scan.IsHexDigit(p.peekAt(1)):
		return p.hexLiteral()

	case scan.Lower(c) == 't' && (p.remain() == 1 || !scan.IsAlpha(p.peekAt(1))):
		p.pos++
		return p.host.TickCount()

	case scan.IsDigit(c):
		return p.decimalLiteral()

	case scan.IsAlpha(c):
		return p.function()
	}

	p.rep.Report(diag.Newf(diag.Syntax, "unexpected character in expression: %q", p.peek()))
	p.pos++
	return 0
}

func (p *parser) variable() int {
	p.pos++ // '$'
	name, next := scan.Ident(p.src, p.pos)
	if name == "" {
		p.rep.Report(diag.Newf(diag.Syntax, "expected variable name after '$'"))
		return 0
	}
	p.pos = next
	attr := ""
	if !p.eof() && p.peek() == '.' && p.remain() >= 2 && scan.IsAlpha(p.peekAt(1)) {
		p.pos++
		attr, p.pos = scan.Ident(p.src, p.pos)
	}
	v, ok := p.host.Resolve(name, attr)
	if !ok {
		if attr != "" {
			p.rep.Report(diag.Newf(diag.Undefined, "undefined reference $%s.%s", name, attr))
		} else {
			p.rep.Report(diag.Newf(diag.Undefined, "undefined variable $%s", name))
		}
		return 0
	}
	return v
}

func (p *parser) binaryLiteral() int {
	p.pos++ // '#' or 'b'
	v := 0
	seen := false
	for !p.eof() && (p.peek() == '0' || p.peek() == '1') {
		v = v<<1 | int(p.peek()-'0')
		seen = true
		p.pos++
	}
	if !seen {
		p.rep.Report(diag.Newf(diag.Syntax, "empty binary literal"))
	}
	return v
}

func (p *parser) hexLiteral() int {
	p.pos++ // 'x'
	v := 0
	for !p.eof() && scan.IsHexDigit(p.peek()) {
		d := p.peek()
		switch {
		case scan.IsDigit(d):
			v = v<<4 | int(d-'0')
		default:
			v = v<<4 | int(scan.Lower(d)-'a'+10)
		}
		p.pos++
	}
	return v
}

func (p *parser) decimalLiteral() int {
	v := 0
	for !p.eof() && scan.IsDigit(p.peek()) {
		v = v*10 + int(p.peek()-'0')
		p.pos++
	}
	return v
}

// arity per named function; validated per call.
var arities = map[string]int{
	"MIN":   2,
	"MAX":   2,
	"ABS":   1,
	"CLAMP": 3,
	"RND":   2,
}

func (p *parser) function() int {
	name, next := scan.Word(p.src, p.pos)
	p.pos = next
	upper := toUpper(name)

	if !p.match('(') {
		p.rep.Report(diag.Newf(diag.Syntax, "unexpected identifier %q in expression", name))
		return 0
	}

	var args []int
	if ok := p.match(')'); !ok {
		for {
			args = append(args, p.conditional())
			if p.match(')') {
				break
			}
			if !p.match(',') {
				p.rep.Report(diag.Newf(diag.Syntax, "expected ',' or ')' in function arguments"))
				return 0
			}
		}
	}

	want, known := arities[upper]
	if !known {
		p.rep.Report(diag.Newf(diag.Undefined, "unknown function %s", upper))
		return 0
	}
	if len(args) != want {
		p.rep.Report(diag.Newf(diag.Arity, "%s requires %d argument(s), got %d", upper, want, len(args)))
		return 0
	}

	switch upper {
	case "MIN":
		if args[0] < args[1] {
			return args[0]
		}
		return args[1]
	case "MAX":
		if args[0] > args[1] {
			return args[0]
		}
		return args[1]
	case "ABS":
		if args[0] < 0 {
			return -args[0]
		}
		return args[0]
	case "CLAMP":
		return scan.Clamp(args[0], args[1], args[2])
	case "RND":
		return p.host.Rand(args[0], args[1])
	}
	return 0
}

func toUpper(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] = scan.Upper(b[i])
	}
	return string(b)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
