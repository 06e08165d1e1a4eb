package ast

import "fmt"

// Predicate is the closed set of filter expressions.
type Predicate interface {
	fmt.Stringer
	IsPredicate()
}

var _ Predicate = (*Eql)(nil)

// Eql holds when the field addressed by Path on the current focus equals
// Value. Equality is exact on the scalar representation; no coercion across
// scalar kinds.
type Eql struct {
	Path  Path
	Value Value
}

func (*Eql) IsPredicate() {}

func (e *Eql) String() string {
	return fmt.Sprintf("%s == %s", e.Path, e.Value)
}

// Path addresses a field on the current focus type, in Type/"field" style.
type Path struct {
	Type  string
	Field string
}

func (p Path) String() string {
	return fmt.Sprintf("%s/%q", p.Type, p.Field)
}

// Value is the right-hand side of a comparison: a constant or a reference to
// a bound argument in scope.
type Value interface {
	fmt.Stringer
	IsValue()
}

var _ Value = (*Const)(nil)
var _ Value = (*Ref)(nil)

type Const struct {
	Value interface{}
}

// Ref names an argument binding in the enclosing selection scope.
type Ref struct {
	Name string
}

func (*Const) IsValue() {}
func (*Ref) IsValue()   {}

func (c *Const) String() string { return fmt.Sprintf("%v", c.Value) }
func (r *Ref) String() string   { return "$" + r.Name }
