package engine

import (
	"fmt"

	"github.com/reelia/reelia-go/internal/gen"
	"github.com/reelia/reelia-go/internal/object"
)

// BindingKind tags the closed set of variable binding variants.
type BindingKind int

const (
	KindInt BindingKind = iota + 1
	KindModule
	KindObject
)

// Binding is one variable's owned value: a plain integer, a generator
// module, or a runtime object. Bindings copy by value; Clone deep-copies
// the owned entity so no two bindings ever share mutable state.
type Binding struct {
	kind BindingKind
	n    int
	mod  gen.Generator
	obj  object.Object
}

func IntBinding(n int) Binding            { return Binding{kind: KindInt, n: n} }
func ModuleBinding(g gen.Generator) Binding { return Binding{kind: KindModule, mod: g} }
func ObjectBinding(o object.Object) Binding { return Binding{kind: KindObject, obj: o} }

func (b Binding) Kind() BindingKind { return b.kind }

func (b Binding) Int() int               { return b.n }
func (b Binding) Module() gen.Generator  { return b.mod }
func (b Binding) Object() object.Object  { return b.obj }

// Value produces the binding's current scalar.
func (b Binding) Value() int {
	switch b.kind {
	case KindInt:
		return b.n
	case KindModule:
		return b.mod.Value()
	case KindObject:
		return b.obj.Value()
	}
	return 0
}

// Clone returns an independently owned deep copy.
func (b Binding) Clone() Binding {
	switch b.kind {
	case KindModule:
		return ModuleBinding(b.mod.Clone())
	case KindObject:
		return ObjectBinding(b.obj.Clone())
	}
	return b
}

// TypeName names the binding for feedback lines and inspection.
func (b Binding) TypeName() string {
	switch b.kind {
	case KindInt:
		return "INTEGER"
	case KindModule:
		return b.mod.Kind() + " (MODULE)"
	case KindObject:
		return b.obj.Kind() + " (OBJECT)"
	}
	return "UNKNOWN"
}

func (b Binding) String() string {
	switch b.kind {
	case KindInt:
		return fmt.Sprintf("int:%d", b.n)
	case KindModule:
		return fmt.Sprintf("%s:%d", b.mod.Kind(), b.mod.Value())
	case KindObject:
		return b.obj.String()
	}
	return "null"
}

// Describe renders the full inspection text for the binding.
func (b Binding) Describe() string {
	switch b.kind {
	case KindInt:
		bin := make([]byte, 8)
		for i := 0; i < 8; i++ {
			if (b.n>>uint(7-i))&1 == 1 {
				bin[i] = '1'
			} else {
				bin[i] = '0'
			}
		}
		return fmt.Sprintf("Type: INTEGER\nValue: %d\nBinary: %s\nHex: 0x%x", b.n, bin, b.n)
	case KindModule:
		return fmt.Sprintf("Type: MODULE (%s)\nCurrent Value: %d\n%s", b.mod.Kind(), b.mod.Value(), b.mod.Describe())
	case KindObject:
		return fmt.Sprintf("Type: OBJECT (%s)\nCurrent Value: %d\n%s", b.obj.Kind(), b.obj.Value(), b.obj.String())
	}
	return "undefined"
}
