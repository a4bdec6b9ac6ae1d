// Package command resolves one input line into exactly one state
// transition: a creation, assignment, attribute access, method call,
// pipeline, or control form. Lines that match no form produce a
// line-level syntax diagnostic and leave the session intact.
package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/reelia/reelia-go/internal/diag"
	"github.com/reelia/reelia-go/internal/engine"
	"github.com/reelia/reelia-go/internal/expr"
	"github.com/reelia/reelia-go/internal/gen"
	"github.com/reelia/reelia-go/internal/object"
	"github.com/reelia/reelia-go/internal/scan"
)

// Parser executes command lines against an environment.
type Parser struct {
	env  *engine.Environment
	eval *expr.Evaluator
	rep  diag.Reporter
	out  io.Writer
}

// New builds a parser. out receives assignment feedback and inspection
// dumps; nil discards it.
func New(env *engine.Environment, rep diag.Reporter, out io.Writer) *Parser {
	if rep == nil {
		rep = diag.Discard
	}
	if out == nil {
		out = io.Discard
	}
	return &Parser{
		env:  env,
		eval: expr.New(env, rep),
		rep:  rep,
		out:  out,
	}
}

// Env exposes the parser's environment for embedding callers.
func (p *Parser) Env() *engine.Environment { return p.env }

// Eval evaluates an expression in the parser's environment.
func (p *Parser) Eval(s string) int { return p.eval.Eval(s) }

// ParseLine executes one line. The return value reports whether the line
// matched a form and applied cleanly; failure never aborts the session.
func (p *Parser) ParseLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	tokens := strings.Fields(line)
	switch keyword(tokens[0]) {
	case "IF":
		return p.conditional(tokens)
	case "REPEAT":
		return p.repeat(tokens)
	case "RUN":
		if len(tokens) > 1 {
			count := p.eval.Eval(strings.Join(tokens[1:], " "))
			p.env.RunTicks(count)
			fmt.Fprintf(p.out, "Ran %d ticks. Current tick: %d\n", count, p.env.TickCount())
			return true
		}
		p.rep.Report(diag.Newf(diag.Syntax, "RUN requires a tick count"))
		return false
	}

	// Pipelines split on top-level '|' and require every segment to be a
	// method call; a lone '|' inside an expression stays bitwise-or.
	if segs := scan.SplitTop(line, '|'); len(segs) >= 2 {
		if calls, ok := methodCalls(segs); ok {
			// No short-circuit: every segment runs regardless of
			// earlier failures.
			all := true
			for _, c := range calls {
				if !p.methodCall(c.target, c.method) {
					all = false
				}
			}
			return all
		}
	}

	if target, method, ok := parseMethodCall(line); ok {
		return p.methodCall(target, method)
	}

	if eq := findAssign(line); eq >= 0 {
		return p.assignment(strings.TrimSpace(line[:eq]), strings.TrimSpace(line[eq+1:]))
	}

	// A bare $name inspects the binding.
	if name, ok := bareVariable(line); ok {
		p.inspect(name)
		return true
	}

	p.rep.Report(diag.Newf(diag.Syntax, "invalid command format: %q", line))
	return false
}

// conditional handles IF expr THEN command.
func (p *Parser) conditional(tokens []string) bool {
	thenIdx := findKeyword(tokens, "THEN")
	if len(tokens) < 4 || thenIdx < 2 || thenIdx == len(tokens)-1 {
		p.rep.Report(diag.Newf(diag.Syntax, "expected IF expr THEN command"))
		return false
	}
	cond := p.eval.Eval(strings.Join(tokens[1:thenIdx], " "))
	if cond == 0 {
		return true
	}
	return p.ParseLine(strings.Join(tokens[thenIdx+1:], " "))
}

// repeat handles REPEAT expr DO command, stopping at the first failing
// iteration.
func (p *Parser) repeat(tokens []string) bool {
	doIdx := findKeyword(tokens, "DO")
	if len(tokens) < 4 || doIdx < 2 || doIdx == len(tokens)-1 {
		p.rep.Report(diag.Newf(diag.Syntax, "expected REPEAT expr DO command"))
		return false
	}
	count := p.eval.Eval(strings.Join(tokens[1:doIdx], " "))
	body := strings.Join(tokens[doIdx+1:], " ")
	for i := 0; i < count; i++ {
		if !p.ParseLine(body) {
			return false
		}
	}
	return true
}

// methodCall enqueues the deferred event behind $target.method(). The
// method never executes synchronously; the target is re-resolved by name
// when the queue drains.
func (p *Parser) methodCall(target, method string) bool {
	var kind engine.EventKind
	switch strings.ToLower(method) {
	case "start":
		kind = engine.EventStart
	case "stop":
		kind = engine.EventStop
	case "reset":
		kind = engine.EventReset
	case "trigger", "send":
		kind = engine.EventTrigger
	default:
		p.rep.Report(diag.Newf(diag.Syntax, "unknown method %q", method))
		return false
	}
	p.env.Defer(engine.Event{Kind: kind, Target: target})
	return true
}

func (p *Parser) assignment(lhs, rhs string) bool {
	if len(lhs) < 2 || lhs[0] != '$' {
		p.rep.Report(diag.Newf(diag.Syntax, "expected $variable on left of '='"))
		return false
	}
	name, next := scan.Ident(lhs, 1)
	if name == "" {
		p.rep.Report(diag.Newf(diag.Syntax, "expected variable name after '$'"))
		return false
	}
	if next < len(lhs) && lhs[next] == '.' {
		attr, end := scan.Ident(lhs, next+1)
		if attr == "" || end != len(lhs) {
			p.rep.Report(diag.Newf(diag.Syntax, "malformed attribute reference %q", lhs))
			return false
		}
		return p.setAttr(name, attr, rhs)
	}
	if next != len(lhs) {
		p.rep.Report(diag.Newf(diag.Syntax, "malformed variable reference %q", lhs))
		return false
	}
	return p.assign(name, rhs)
}

// setAttr handles $var.attr = expr. Generator parameters fold upper and
// silently ignore unknown names; object attributes fold lower and fail
// with a recoverable unknown-attribute diagnostic.
func (p *Parser) setAttr(name, attr, rhs string) bool {
	b, ok := p.env.Get(name)
	if !ok {
		p.rep.Report(diag.Newf(diag.Undefined, "undefined variable $%s", name))
		return false
	}
	value := p.eval.Eval(rhs)
	switch b.Kind() {
	case engine.KindModule:
		param := strings.ToUpper(attr)
		b.Module().SetParam(param, value)
		fmt.Fprintf(p.out, "$%s.%s = %d\n", engine.Canon(name), param, value)
		return true
	case engine.KindObject:
		if err := b.Object().SetAttr(p.env, strings.ToLower(attr), value); err != nil {
			if d, ok := err.(diag.Diagnostic); ok {
				p.rep.Report(d)
			} else {
				p.rep.Report(diag.Newf(diag.UnknownAttr, "%v", err))
			}
			return false
		}
		fmt.Fprintf(p.out, "$%s.%s = %d\n", engine.Canon(name), strings.ToLower(attr), value)
		return true
	}
	p.rep.Report(diag.Newf(diag.Domain, "$%s is not a module or object", engine.Canon(name)))
	return false
}

func (p *Parser) assign(name, rhs string) bool {
	switch {
	case rhs == "":
		p.rep.Report(diag.Newf(diag.Syntax, "missing right-hand side in assignment"))
		return false

	// Creation: $var = @type
	case rhs[0] == '@':
		kind := strings.ToLower(strings.TrimSpace(rhs[1:]))
		obj, ok := object.New(kind)
		if !ok {
			p.rep.Report(diag.Newf(diag.Undefined, "unknown object type @%s", kind))
			return false
		}
		p.env.Set(name, engine.ObjectBinding(obj))
		fmt.Fprintf(p.out, "$%s = @%s (OBJECT)\n", engine.Canon(name), obj.Kind())
		return true

	case hasCallPrefix(rhs, "ROTATE"):
		return p.rotate(name, rhs)

	case hasCallPrefix(rhs, "REVERSE"):
		return p.reverse(name, rhs)

	case scan.IsLiteral(rhs):
		v := scan.ParseLiteral(rhs)
		p.env.Set(name, engine.IntBinding(v))
		fmt.Fprintf(p.out, "$%s = %d (INTEGER)\n", engine.Canon(name), v)
		return true
	}

	// Module creation: the right-hand side is a bare generator kind.
	if g, ok := gen.New(strings.ToUpper(rhs)); ok {
		p.env.Set(name, engine.ModuleBinding(g))
		fmt.Fprintf(p.out, "$%s = %s (MODULE)\n", engine.Canon(name), g.Kind())
		return true
	}

	// Copy: $var = $other clones the whole binding so the two never share
	// state afterwards.
	if src, ok := bareVariable(rhs); ok {
		sb, found := p.env.Get(src)
		if !found {
			p.rep.Report(diag.Newf(diag.Undefined, "undefined variable $%s", src))
			return false
		}
		clone := sb.Clone()
		p.env.Set(name, clone)
		fmt.Fprintf(p.out, "$%s = %s (%s)\n", engine.Canon(name), clone, clone.TypeName())
		return true
	}

	v := p.eval.Eval(rhs)
	p.env.Set(name, engine.IntBinding(v))
	fmt.Fprintf(p.out, "$%s = %d (INTEGER from expression)\n", engine.Canon(name), v)
	return true
}

// rotate handles $X = ROTATE($Y, amount): an 8-bit left rotation of a
// pattern generator's mask into a fresh pattern binding.
func (p *Parser) rotate(dest, rhs string) bool {
	args, ok := callArgs(rhs, "ROTATE")
	if !ok || len(args) != 2 {
		p.rep.Report(diag.Newf(diag.Arity, "ROTATE requires a pattern and an amount"))
		return false
	}
	src, ok := p.sourcePattern(args[0])
	if !ok {
		return false
	}
	amount := ((p.eval.Eval(args[1]) % 8) + 8) % 8
	mask := src.Mask() & 0xFF
	rotated := ((mask << uint(amount)) | (mask >> uint(8-amount))) & 0xFF

	out, _ := gen.New("PAT")
	out.SetParam("P", rotated)
	p.env.Set(dest, engine.ModuleBinding(out))
	fmt.Fprintf(p.out, "$%s = PAT (MODULE)\n", engine.Canon(dest))
	return true
}

// reverse handles $X = REVERSE($Y): an 8-bit bit reversal.
func (p *Parser) reverse(dest, rhs string) bool {
	args, ok := callArgs(rhs, "REVERSE")
	if !ok || len(args) != 1 {
		p.rep.Report(diag.Newf(diag.Arity, "REVERSE requires a pattern"))
		return false
	}
	src, ok := p.sourcePattern(args[0])
	if !ok {
		return false
	}
	mask := src.Mask()
	reversed := 0
	for i := 0; i < 8; i++ {
		if (mask>>uint(i))&1 == 1 {
			reversed |= 1 << uint(7-i)
		}
	}

	out, _ := gen.New("PAT")
	out.SetParam("P", reversed)
	p.env.Set(dest, engine.ModuleBinding(out))
	fmt.Fprintf(p.out, "$%s = PAT (MODULE)\n", engine.Canon(dest))
	return true
}

// sourcePattern resolves a $name argument to a live pattern generator.
func (p *Parser) sourcePattern(arg string) (*gen.Pattern, bool) {
	name, ok := bareVariable(strings.TrimSpace(arg))
	if !ok {
		p.rep.Report(diag.Newf(diag.Syntax, "expected $variable, got %q", arg))
		return nil, false
	}
	b, found := p.env.Get(name)
	if !found {
		p.rep.Report(diag.Newf(diag.Undefined, "undefined variable $%s", name))
		return nil, false
	}
	if b.Kind() != engine.KindModule {
		p.rep.Report(diag.Newf(diag.Domain, "$%s is not a pattern", engine.Canon(name)))
		return nil, false
	}
	pat, ok := b.Module().(*gen.Pattern)
	if !ok {
		p.rep.Report(diag.Newf(diag.Domain, "$%s is not a pattern", engine.Canon(name)))
		return nil, false
	}
	return pat, true
}

func (p *Parser) inspect(name string) {
	b, ok := p.env.Get(name)
	if !ok {
		fmt.Fprintf(p.out, "Variable $%s is not defined.\n", engine.Canon(name))
		return
	}
	fmt.Fprintf(p.out, "Variable $%s:\n%s\n", engine.Canon(name), b.Describe())
}

func keyword(token string) string { return strings.ToUpper(token) }

// findKeyword returns the index of the first token equal to word under
// case folding, or -1.
func findKeyword(tokens []string, word string) int {
	for i, t := range tokens {
		if strings.EqualFold(t, word) {
			return i
		}
	}
	return -1
}

// findAssign locates the top-level '=' of an assignment, skipping the
// two-byte comparison operators and anything inside parentheses.
func findAssign(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth > 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && (s[i-1] == '=' || s[i-1] == '!' || s[i-1] == '<' || s[i-1] == '>') {
				continue
			}
			return i
		}
	}
	return -1
}

// bareVariable matches a line or operand that is exactly $name.
func bareVariable(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	name, next := scan.Ident(s, 1)
	if name == "" || next != len(s) {
		return "", false
	}
	return name, true
}

// parseMethodCall matches $name.method() with optional interior spaces.
func parseMethodCall(s string) (target, method string, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '$' {
		return "", "", false
	}
	name, i := scan.Ident(s, 1)
	if name == "" {
		return "", "", false
	}
	if i >= len(s) || s[i] != '.' {
		return "", "", false
	}
	m, i := scan.Ident(s, i+1)
	if m == "" {
		return "", "", false
	}
	i, open := scan.Match(s, i, '(')
	if !open {
		return "", "", false
	}
	i, closed := scan.Match(s, i, ')')
	if !closed {
		return "", "", false
	}
	if scan.Skip(s, i) != len(s) {
		return "", "", false
	}
	return name, m, true
}

type call struct {
	target string
	method string
}

// methodCalls reports whether every pipeline segment is a method call.
func methodCalls(segs []string) ([]call, bool) {
	calls := make([]call, 0, len(segs))
	for _, seg := range segs {
		target, method, ok := parseMethodCall(seg)
		if !ok {
			return nil, false
		}
		calls = append(calls, call{target: target, method: method})
	}
	return calls, true
}

// hasCallPrefix matches NAME( under case folding.
func hasCallPrefix(s, name string) bool {
	if len(s) < len(name)+1 {
		return false
	}
	if !strings.EqualFold(s[:len(name)], name) {
		return false
	}
	return s[len(name)] == '('
}

// callArgs extracts the comma-separated arguments of NAME(...) when the
// whole operand is one call.
func callArgs(s, name string) ([]string, bool) {
	if !hasCallPrefix(s, name) || s[len(s)-1] != ')' {
		return nil, false
	}
	inner := s[len(name)+1 : len(s)-1]
	parts := scan.SplitTop(inner, ',')
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, true
}
