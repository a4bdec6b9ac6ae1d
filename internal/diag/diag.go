// Package diag carries the non-fatal diagnostic taxonomy shared by the
// evaluator, command parser, and dispatcher. No diagnostic ever terminates
// a session; callers report and continue.
package diag

import "fmt"

type Kind int

const (
	Syntax Kind = iota + 1
	Undefined
	Arity
	Domain
	UnknownAttr
	Transport
)

func (k Kind) String() string {
	switch k {
	case Syntax:
		return "syntax error"
	case Undefined:
		return "undefined reference"
	case Arity:
		return "arity error"
	case Domain:
		return "domain error"
	case UnknownAttr:
		return "unknown attribute"
	case Transport:
		return "transport error"
	default:
		return "diagnostic"
	}
}

type Diagnostic struct {
	Kind Kind
	Msg  string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Msg)
}

// Reporter receives diagnostics from the core. Implementations must not
// block; they run on the command/tick thread.
type Reporter interface {
	Report(d Diagnostic)
}

// List collects diagnostics in order. The zero value is ready to use.
type List struct {
	Items []Diagnostic
}

func (l *List) Report(d Diagnostic) { l.Items = append(l.Items, d) }

func (l *List) Reset() { l.Items = l.Items[:0] }

// Has reports whether any collected diagnostic is of kind k.
func (l *List) Has(k Kind) bool {
	for _, d := range l.Items {
		if d.Kind == k {
			return true
		}
	}
	return false
}

// Discard drops every diagnostic.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}

// Newf builds a diagnostic with a formatted message.
func Newf(k Kind, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: k, Msg: fmt.Sprintf(format, args...)}
}
