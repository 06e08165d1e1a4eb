package execution

import (
	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/cursor"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/mapping"
)

// resolveDelegate turns a delegated field into an independently executable
// query against the target mapping. With no join function the child query is
// forwarded unchanged; with one, the join rewrites the child using data
// visible on the parent cursor, typically into a Group of per-key unique
// selections whose order matches the keys on the parent. Either way the
// target mapping's own elaborator runs on the result before execution.
func (e *Executor) resolveDelegate(d *mapping.Delegate, parent *cursor.Cursor, child ast.Query) (*mapping.Mapping, ast.Query, error) {
	target, err := e.registry.Mapping(d.Target)
	if err != nil {
		return nil, nil, err
	}

	q := child
	if d.Join != nil {
		q, err = d.Join(child, parent)
		if err != nil {
			// Join failures are mapping configuration problems, never user
			// input problems.
			if _, ok := err.(*errors.QueryError); !ok {
				err = &errors.QueryError{
					Kind:          errors.KindInternal,
					Message:       err.Error(),
					ResolverError: err,
				}
			}
			return nil, nil, err
		}
		if q == nil {
			return nil, nil, errors.Internal("join function for delegate %q produced no query", d.Target)
		}
	}

	q, err = Elaborate(target, q)
	if err != nil {
		return nil, nil, err
	}
	return target, q, nil
}
