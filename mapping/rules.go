package mapping

import (
	"fmt"

	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/errors"
)

// RewriteFunc transforms the query subtree rooted under one field occurrence
// before execution. It is consulted once per occurrence and keeps no state
// across calls.
type RewriteFunc func(args []ast.Binding, child ast.Query) (ast.Query, error)

// Rule binds a rewrite to a (type, field) key.
type Rule struct {
	Type    string
	Field   string
	Rewrite RewriteFunc
}

type ruleKey struct {
	typ   string
	field string
}

// RuleSet is a mapping's select elaborator: a keyed table of rewrite rules
// resolved by a single deterministic lookup. Fields without a rule pass
// through unchanged.
type RuleSet struct {
	rules map[ruleKey]RewriteFunc
}

var emptyRules = &RuleSet{rules: map[ruleKey]RewriteFunc{}}

// NewRuleSet builds the rule table. Overlapping (type, field) keys are a
// declaration bug and rejected at construction time.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	set := &RuleSet{rules: make(map[ruleKey]RewriteFunc, len(rules))}
	for _, r := range rules {
		if r.Type == "" || r.Field == "" || r.Rewrite == nil {
			return nil, fmt.Errorf("incomplete rewrite rule for %s.%s", r.Type, r.Field)
		}
		key := ruleKey{typ: r.Type, field: r.Field}
		if _, ok := set.rules[key]; ok {
			return nil, fmt.Errorf("overlapping rewrite rules for %s.%s", r.Type, r.Field)
		}
		set.rules[key] = r.Rewrite
	}
	return set, nil
}

// MustRuleSet is NewRuleSet for static configuration known to be valid.
func MustRuleSet(rules ...Rule) *RuleSet {
	set, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	return set
}

// Elaborate applies the rule registered for (typeName, field) to child,
// or returns child unchanged when no rule matches.
func (s *RuleSet) Elaborate(typeName, field string, args []ast.Binding, child ast.Query) (ast.Query, error) {
	rewrite, ok := s.rules[ruleKey{typ: typeName, field: field}]
	if !ok {
		return child, nil
	}
	return rewrite(args, child)
}

// UniqueByArg builds the common rewrite for key-lookup fields: the candidate
// sequence is narrowed to elements whose keyField equals the value bound to
// argName, then collapsed to a single element.
//
//	Unique(Filter(Eql(elemType/keyField, Const(v)), child))
//
// nullable controls whether an empty candidate set yields null instead of a
// uniqueness failure.
func UniqueByArg(elemType, keyField, argName string, nullable bool) RewriteFunc {
	return func(args []ast.Binding, child ast.Query) (ast.Query, error) {
		var value interface{}
		found := false
		for _, b := range args {
			if b.Name == argName {
				value, found = b.Value, true
				break
			}
		}
		if !found {
			return nil, errors.Elaboration("field requires argument %q", argName)
		}
		if value == nil {
			return nil, errors.Elaboration("argument %q must not be null", argName)
		}
		return &ast.Unique{
			Nullable: nullable,
			Child: &ast.Filter{
				Pred: &ast.Eql{
					Path:  ast.Path{Type: elemType, Field: keyField},
					Value: &ast.Const{Value: value},
				},
				Child: child,
			},
		}, nil
	}
}

// FilterByArg narrows the candidate sequence without collapsing it, for
// list-returning fields with an equality argument.
func FilterByArg(elemType, keyField, argName string) RewriteFunc {
	return func(args []ast.Binding, child ast.Query) (ast.Query, error) {
		for _, b := range args {
			if b.Name == argName {
				if b.Value == nil {
					return nil, errors.Elaboration("argument %q must not be null", argName)
				}
				return &ast.Filter{
					Pred: &ast.Eql{
						Path:  ast.Path{Type: elemType, Field: keyField},
						Value: &ast.Const{Value: b.Value},
					},
					Child: child,
				}, nil
			}
		}
		// The argument is optional for list fields: no binding, no narrowing.
		return child, nil
	}
}
