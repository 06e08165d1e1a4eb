// Package ast holds the executable query tree and the predicate algebra used
// by filters. Trees are immutable: every rewrite allocates new nodes, so the
// same template can be shared across concurrent requests.
package ast

import (
	"fmt"
	"strings"

	"github.com/weaveql/weave/errors"
)

// Query is the closed set of selection nodes.
type Query interface {
	fmt.Stringer
	IsQuery()
}

var _ Query = (*Select)(nil)
var _ Query = (*Group)(nil)
var _ Query = (*Filter)(nil)
var _ Query = (*Unique)(nil)
var _ Query = (*Empty)(nil)

// Select requests a single field with argument bindings, continuing with Child.
// The result is keyed by Alias, which defaults to the field name.
type Select struct {
	Field string
	Alias string
	Args  []Binding
	Child Query
	Loc   errors.Location
}

// Group executes all members, preserving list order, and combines them as
// sibling results. Against a candidate sequence it instead yields one ordered
// result per member.
type Group struct {
	Members []Query
}

// Filter restricts the candidate sequence to focuses satisfying Pred before
// continuing with Child. Source order is preserved.
type Filter struct {
	Pred  Predicate
	Child Query
}

// Unique asserts the candidate sequence collapses to exactly one element
// before continuing with Child. Zero matches are legal only when Nullable is
// set, in which case the result is null.
type Unique struct {
	Child    Query
	Nullable bool
}

// Empty is the terminal no-op child of a leaf field.
type Empty struct{}

func (*Select) IsQuery() {}
func (*Group) IsQuery()  {}
func (*Filter) IsQuery() {}
func (*Unique) IsQuery() {}
func (*Empty) IsQuery()  {}

// Binding is one named argument value attached to a Select. Values are
// literals: string, int64, float64, bool, nil, or nested list/map forms.
type Binding struct {
	Name  string
	Value interface{}
}

// Key returns the result key for the selection.
func (s *Select) Key() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Field
}

// Arg returns the value bound to name, reporting whether it was present.
func (s *Select) Arg(name string) (interface{}, bool) {
	for _, b := range s.Args {
		if b.Name == name {
			return b.Value, true
		}
	}
	return nil, false
}

func (s *Select) String() string {
	var sb strings.Builder
	sb.WriteString(s.Field)
	if s.Alias != "" && s.Alias != s.Field {
		sb.WriteString(":")
		sb.WriteString(s.Alias)
	}
	if len(s.Args) > 0 {
		sb.WriteString("(")
		for i, b := range s.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", b.Name, b.Value)
		}
		sb.WriteString(")")
	}
	if _, ok := s.Child.(*Empty); !ok && s.Child != nil {
		sb.WriteString(" { ")
		sb.WriteString(s.Child.String())
		sb.WriteString(" }")
	}
	return sb.String()
}

func (g *Group) String() string {
	parts := make([]string, len(g.Members))
	for i, m := range g.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " ")
}

func (f *Filter) String() string {
	return fmt.Sprintf("filter(%s) %s", f.Pred, f.Child)
}

func (u *Unique) String() string {
	return fmt.Sprintf("unique %s", u.Child)
}

func (*Empty) String() string { return "" }
