package expr

import (
	"testing"

	"github.com/reelia/reelia-go/internal/diag"
)

// fakeHost resolves variables from a flat map keyed by "name" or
// "name.attr" and makes RND deterministic by returning its lower bound.
type fakeHost struct {
	vars map[string]int
	tick int
}

func (h *fakeHost) Resolve(name, attr string) (int, bool) {
	key := name
	if attr != "" {
		key = name + "." + attr
	}
	v, ok := h.vars[key]
	return v, ok
}

func (h *fakeHost) TickCount() int      { return h.tick }
func (h *fakeHost) Rand(min, _ int) int { return min }

func newTestEvaluator(vars map[string]int) (*Evaluator, *diag.List) {
	rep := &diag.List{}
	return New(&fakeHost{vars: vars, tick: 7}, rep), rep
}

func TestEvalPrecedence(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"1 << 2 + 1", 8},
		{"10 - 4 - 3", 3},
		{"7 % 4", 3},
		{"1 ? 2 : 3 ? 4 : 5", 2},
		{"0 ? 2 : 3 ? 4 : 5", 4},
		{"5 > 3 && 2 < 4", 1},
		{"5 > 3 && 2 > 4", 0},
		{"0 || 3", 1},
		{"6 & 3", 2},
		{"6 | 3", 7},
		{"6 ^ 3", 5},
		{"5 == 5", 1},
		{"5 != 5", 0},
		{"3 <= 3", 1},
		{"16 >> 2", 4},
		{"-3 + 5", 2},
		{"~0", -1},
		{"#1010 + 1", 11},
		{"b101", 5},
		{"xFF", 255},
		{"x1F + 1", 32},
	}
	e, _ := newTestEvaluator(nil)
	for _, c := range cases {
		if got := e.Eval(c.in); got != c.want {
			t.Errorf("Eval(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEvalVariablesAndTick(t *testing.T) {
	e, rep := newTestEvaluator(map[string]int{"X": 5, "S": 0, "S.pos": 3})
	cases := []struct {
		in   string
		want int
	}{
		{"$X * 2", 10},
		{"$S.pos + 1", 4},
		{"T + 1", 8},
		{"t", 7},
	}
	for _, c := range cases {
		if got := e.Eval(c.in); got != c.want {
			t.Errorf("Eval(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if len(rep.Items) != 0 {
		t.Fatalf("unexpected diagnostics: %v", rep.Items)
	}
}

func TestEvalUndefinedVariableYieldsZero(t *testing.T) {
	e, rep := newTestEvaluator(nil)
	if got := e.Eval("$Z + 3"); got != 3 {
		t.Fatalf("Eval = %d, want 3", got)
	}
	if !rep.Has(diag.Undefined) {
		t.Fatalf("expected an undefined-reference diagnostic, got %v", rep.Items)
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	e, rep := newTestEvaluator(nil)
	if got := e.Eval("5 / 0"); got != 0 {
		t.Fatalf("Eval = %d, want 0", got)
	}
	if !rep.Has(diag.Domain) {
		t.Fatalf("expected a domain diagnostic, got %v", rep.Items)
	}

	rep.Reset()
	if got := e.Eval("5 % 0 + 9"); got != 9 {
		t.Fatalf("Eval = %d, want 9 (evaluation continues after the diagnostic)", got)
	}
	if !rep.Has(diag.Domain) {
		t.Fatalf("expected a domain diagnostic, got %v", rep.Items)
	}
}

func TestEvalShiftOutOfRange(t *testing.T) {
	e, rep := newTestEvaluator(nil)
	if got := e.Eval("1 << 40"); got != 0 {
		t.Fatalf("Eval = %d, want 0", got)
	}
	if !rep.Has(diag.Domain) {
		t.Fatalf("expected a domain diagnostic, got %v", rep.Items)
	}
}

func TestEvalFunctions(t *testing.T) {
	e, rep := newTestEvaluator(nil)
	cases := []struct {
		in   string
		want int
	}{
		{"MIN(3, 8)", 3},
		{"MAX(3, 8)", 8},
		{"ABS(-4)", 4},
		{"CLAMP(200, 0, 127)", 127},
		{"RND(5, 10)", 5},
		{"min(1, 2)", 1}, // function names fold upper
		{"MAX(MIN(9, 4), 2)", 4},
	}
	for _, c := range cases {
		if got := e.Eval(c.in); got != c.want {
			t.Errorf("Eval(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if len(rep.Items) != 0 {
		t.Fatalf("unexpected diagnostics: %v", rep.Items)
	}
}

func TestEvalArityError(t *testing.T) {
	e, rep := newTestEvaluator(nil)
	if got := e.Eval("MIN(1)"); got != 0 {
		t.Fatalf("Eval = %d, want 0", got)
	}
	if !rep.Has(diag.Arity) {
		t.Fatalf("expected an arity diagnostic, got %v", rep.Items)
	}
}

func TestEvalUnknownFunction(t *testing.T) {
	e, rep := newTestEvaluator(nil)
	if got := e.Eval("NOPE(1, 2)"); got != 0 {
		t.Fatalf("Eval = %d, want 0", got)
	}
	if !rep.Has(diag.Undefined) {
		t.Fatalf("expected an undefined diagnostic, got %v", rep.Items)
	}
}

func TestEvalLeftoverInput(t *testing.T) {
	e, rep := newTestEvaluator(nil)
	if got := e.Eval("1 + 2 )"); got != 3 {
		t.Fatalf("Eval = %d, want 3", got)
	}
	if !rep.Has(diag.Syntax) {
		t.Fatalf("expected a syntax diagnostic for leftover input, got %v", rep.Items)
	}
}

func TestEvalIdentifierWithoutCall(t *testing.T) {
	// A bare identifier that is not a function call must fail with a
	// diagnostic instead of recursing forever.
	e, rep := newTestEvaluator(nil)
	if got := e.Eval("FOO"); got != 0 {
		t.Fatalf("Eval = %d, want 0", got)
	}
	if !rep.Has(diag.Syntax) {
		t.Fatalf("expected a syntax diagnostic, got %v", rep.Items)
	}
}
