// Package types models the small set of types the checker assigns to AST
// nodes: the three primitives and function types built out of them.
package types

import "strings"

// Type is a tagged variant: Int, Bool and Unit are singletons compared by
// value; Fun compares structurally on its parameter/return types.
type Type interface {
	isType()
	String() string
	Equal(other Type) bool
}

// ----------------------------------------------------------------------------
// Primitives

type primitive struct{ name string }

func (p *primitive) isType()        {}
func (p *primitive) String() string { return p.name }

func (p *primitive) Equal(other Type) bool {
	o, ok := other.(*primitive)
	return ok && o.name == p.name
}

// Int, Bool and Unit are the three primitive singletons; every checker
// comparison against a primitive type should use one of these three values,
// never construct a new *primitive.
var (
	Int  Type = &primitive{"Int"}
	Bool Type = &primitive{"Bool"}
	Unit Type = &primitive{"Unit"}
)

// Default is the zero value every AST node's type slot holds before the
// checker runs; invariant #2 requires every node to hold something other
// than this once checking succeeds.
var Default Type = &primitive{"<unchecked>"}

// FromName maps a source-level type keyword ("Int", "Bool", "Unit") to its
// Type, or reports ok=false for anything else.
func FromName(name string) (Type, bool) {
	switch name {
	case "Int":
		return Int, true
	case "Bool":
		return Bool, true
	case "Unit":
		return Unit, true
	default:
		return nil, false
	}
}

// ----------------------------------------------------------------------------
// Function types

// Fun is the type of a callable: fixed parameter types in order, one return
// type. Two Fun values are Equal when their parameter lists and return types
// are pairwise Equal.
type Fun struct {
	Params []Type
	Ret    Type
}

func (f *Fun) isType() {}

func (f *Fun) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ") -> " + f.Ret.String()
}

func (f *Fun) Equal(other Type) bool {
	o, ok := other.(*Fun)
	if !ok || len(o.Params) != len(f.Params) {
		return false
	}
	for i := range f.Params {
		if !f.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	return f.Ret.Equal(o.Ret)
}
