package execution

import (
	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/mapping"
	"github.com/weaveql/weave/schema"
)

// Elaborate applies m's rewrite rules to every selection in q, keyed by the
// focus type at each level, and returns a new tree. The input tree is never
// mutated, so a parsed template can be elaborated once per mapping and shared.
//
// Subtrees under delegated fields are left untouched here: the delegation
// resolver hands them to the target mapping's own elaborator at execution
// time, after any join rewrite has run.
func Elaborate(m *mapping.Mapping, q ast.Query) (ast.Query, error) {
	named := schema.Unwrap(m.RootType)
	if named == nil {
		return nil, errors.Internal("mapping %s has no named root type", m.Name)
	}
	return elaborate(m, named.TypeName(), q)
}

func elaborate(m *mapping.Mapping, typeName string, q ast.Query) (ast.Query, error) {
	switch q := q.(type) {
	case *ast.Empty, nil:
		return &ast.Empty{}, nil

	case *ast.Group:
		members := make([]ast.Query, len(q.Members))
		for i, member := range q.Members {
			elaborated, err := elaborate(m, typeName, member)
			if err != nil {
				return nil, err
			}
			members[i] = elaborated
		}
		return &ast.Group{Members: members}, nil

	case *ast.Filter:
		child, err := elaborate(m, typeName, q.Child)
		if err != nil {
			return nil, err
		}
		return &ast.Filter{Pred: q.Pred, Child: child}, nil

	case *ast.Unique:
		child, err := elaborate(m, typeName, q.Child)
		if err != nil {
			return nil, err
		}
		return &ast.Unique{Child: child, Nullable: q.Nullable}, nil

	case *ast.Select:
		return elaborateSelect(m, typeName, q)

	default:
		return nil, errors.Internal("unknown query node %T", q)
	}
}

func elaborateSelect(m *mapping.Mapping, typeName string, sel *ast.Select) (ast.Query, error) {
	fm, ok := m.Field(typeName, sel.Field)
	if !ok {
		err := errors.MissingMapping(typeName, sel.Field)
		err.Locations = []errors.Location{sel.Loc}
		return nil, err
	}

	child, err := m.Rules.Elaborate(typeName, sel.Field, sel.Args, childOrEmpty(sel.Child))
	if err != nil {
		if qe, ok := err.(*errors.QueryError); ok && len(qe.Locations) == 0 {
			qe.Locations = []errors.Location{sel.Loc}
		}
		return nil, err
	}

	// Delegated subtrees are elaborated by the target mapping.
	if _, delegated := fm.(*mapping.Delegate); !delegated {
		childType := schema.Unwrap(fm.FieldType())
		if childType == nil {
			return nil, errors.Internal("field %s.%s has no named type", typeName, sel.Field)
		}
		child, err = elaborate(m, childType.TypeName(), child)
		if err != nil {
			return nil, err
		}
	}

	return &ast.Select{
		Field: sel.Field,
		Alias: sel.Alias,
		Args:  sel.Args,
		Child: child,
		Loc:   sel.Loc,
	}, nil
}

func childOrEmpty(q ast.Query) ast.Query {
	if q == nil {
		return &ast.Empty{}
	}
	return q
}
