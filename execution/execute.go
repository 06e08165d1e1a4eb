// Package execution turns an elaborated query tree plus a root cursor into a
// keyed result value, resolving delegated fields through their target
// mappings and threading failures as explicit error values.
package execution

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/cursor"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/mapping"
	"github.com/weaveql/weave/schema"
)

type Executor struct {
	registry *mapping.Registry
}

func NewExecutor(registry *mapping.Registry) *Executor {
	return &Executor{registry: registry}
}

type exeContext struct {
	context.Context
	mu   sync.Mutex
	errs errors.MultiError
}

func (e *exeContext) addErr(path []interface{}, loc errors.Location, err error) {
	qe, ok := err.(*errors.QueryError)
	if !ok {
		qe = &errors.QueryError{
			Kind:          errors.KindOf(err),
			Message:       err.Error(),
			ResolverError: err,
		}
	}
	if qe.Path == nil {
		qe.Path = path
	}
	if len(qe.Locations) == 0 && (loc != errors.Location{}) {
		qe.Locations = []errors.Location{loc}
	}
	e.mu.Lock()
	e.errs = append(e.errs, qe)
	e.mu.Unlock()
}

// scope carries the response path and the argument bindings visible to
// predicate references. Scopes are values; deriving one never aliases the
// parent's backing arrays.
type scope struct {
	path []interface{}
	env  map[string]interface{}
}

func (s scope) push(key interface{}) scope {
	path := make([]interface{}, len(s.path)+1)
	copy(path, s.path)
	path[len(s.path)] = key
	return scope{path: path, env: s.env}
}

func (s scope) bind(args []ast.Binding) scope {
	if len(args) == 0 {
		return s
	}
	env := make(map[string]interface{}, len(s.env)+len(args))
	for k, v := range s.env {
		env[k] = v
	}
	for _, b := range args {
		env[b.Name] = b.Value
	}
	return scope{path: s.path, env: env}
}

// Execute runs an elaborated query against the mapping's root cursor. The
// returned value is a *KeyedValue for object results; collected errors ride
// alongside, so partial data with errors is a legal outcome.
func (e *Executor) Execute(ctx context.Context, m *mapping.Mapping, q ast.Query) (interface{}, errors.MultiError) {
	if ctx == nil {
		ctx = context.Background()
	}
	exeCtx := &exeContext{Context: ctx}
	result, err := e.execute(exeCtx, scope{}, m, q, m.RootCursor())
	if err != nil {
		exeCtx.addErr(nil, errors.Location{}, err)
		result = nil
	}
	return result, exeCtx.errs
}

func (e *Executor) execute(ctx *exeContext, sc scope, m *mapping.Mapping, q ast.Query, cur *cursor.Cursor) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch q := q.(type) {
	case *ast.Empty, nil:
		return leafValue(cur), nil
	case *ast.Select:
		if cur.IsSequence() {
			return e.distribute(ctx, sc, m, q, cur)
		}
		return e.executeSelect(ctx, sc, m, q, cur)
	case *ast.Group:
		if cur.IsSequence() {
			consuming, err := groupConsumesSequence(q)
			if err != nil {
				return nil, err
			}
			if consuming {
				return e.executeSequenceGroup(ctx, sc, m, q, cur)
			}
			return e.distribute(ctx, sc, m, q, cur)
		}
		return e.executeSiblings(ctx, sc, m, q, cur)
	case *ast.Filter:
		return e.executeFilter(ctx, sc, m, q, cur)
	case *ast.Unique:
		return e.executeUnique(ctx, sc, m, q, cur)
	default:
		return nil, errors.Internal("unknown query node %T", q)
	}
}

func (e *Executor) executeSelect(ctx *exeContext, sc scope, m *mapping.Mapping, sel *ast.Select, cur *cursor.Cursor) (interface{}, error) {
	if cur.IsNil() {
		return nil, nil
	}
	fm, ok := m.Field(cur.TypeName(), sel.Field)
	if !ok {
		err := errors.MissingMapping(cur.TypeName(), sel.Field)
		err.Locations = []errors.Location{sel.Loc}
		return nil, err
	}

	childScope := sc.push(sel.Key()).bind(sel.Args)
	var result interface{}

	switch fm := fm.(type) {
	case *mapping.ValueField:
		value, err := safeResolve(fm.Resolve, cur.Focus())
		if err != nil {
			return nil, err
		}
		result, err = e.execute(ctx, childScope, m, childOrEmpty(sel.Child), cur.Derive(value, fm.Type))
		if err != nil {
			return nil, err
		}
	case *mapping.Delegate:
		target, rewritten, err := e.resolveDelegate(fm, cur, childOrEmpty(sel.Child))
		if err != nil {
			return nil, err
		}
		result, err = e.execute(ctx, childScope, target, rewritten, target.RootCursor())
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Internal("unknown field mapping %T for %s.%s", fm, cur.TypeName(), sel.Field)
	}

	if result == nil && !schema.Nullable(fm.FieldType()) {
		return nil, errors.New("cannot return null for non-nullable field %s.%s", cur.TypeName(), sel.Field)
	}
	kv := NewKeyedValue()
	kv.Set(sel.Key(), result)
	return kv, nil
}

// executeSiblings merges Group members selected on one object focus. Members
// run concurrently; results merge in request order, and a failed member
// reports its error independently with a null entry, leaving siblings intact.
func (e *Executor) executeSiblings(ctx *exeContext, sc scope, m *mapping.Mapping, grp *ast.Group, cur *cursor.Cursor) (interface{}, error) {
	if cur.IsNil() {
		return nil, nil
	}
	results := make([]interface{}, len(grp.Members))
	memberErrs := make([]error, len(grp.Members))

	group := new(errgroup.Group)
	for i, member := range grp.Members {
		i, member := i, member
		group.Go(func() error {
			res, err := e.execute(ctx, sc, m, member, cur)
			if err != nil {
				memberErrs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = group.Wait()

	kv := NewKeyedValue()
	for i, member := range grp.Members {
		if err := memberErrs[i]; err != nil {
			sel, ok := member.(*ast.Select)
			if !ok {
				return nil, err
			}
			ctx.addErr(sc.push(sel.Key()).path, sel.Loc, err)
			kv.Set(sel.Key(), nil)
			continue
		}
		sub, ok := results[i].(*KeyedValue)
		if !ok {
			return nil, errors.Internal("sibling selection produced %T, expected keyed value", results[i])
		}
		for _, key := range sub.Keys() {
			value, _ := sub.Get(key)
			kv.Set(key, value)
		}
	}
	return kv, nil
}

// executeSequenceGroup runs each member against the whole candidate sequence
// and collects one ordered result per member. Any member failure fails the
// group; concurrency never reorders the output.
func (e *Executor) executeSequenceGroup(ctx *exeContext, sc scope, m *mapping.Mapping, grp *ast.Group, cur *cursor.Cursor) (interface{}, error) {
	results := make([]interface{}, len(grp.Members))
	group, gctx := errgroup.WithContext(ctx.Context)
	for i, member := range grp.Members {
		i, member := i, member
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.execute(ctx, sc.push(i), m, member, cur)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// distribute applies q to every element of a sequence focus, preserving
// source order in the output list.
func (e *Executor) distribute(ctx *exeContext, sc scope, m *mapping.Mapping, q ast.Query, cur *cursor.Cursor) (interface{}, error) {
	if cur.IsNil() {
		return nil, nil
	}
	elems, err := cur.Iter()
	if err != nil {
		return nil, err
	}
	results := make([]interface{}, len(elems))
	group, gctx := errgroup.WithContext(ctx.Context)
	for i, elem := range elems {
		i, elem := i, elem
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.execute(ctx, sc.push(i), m, q, elem)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) executeFilter(ctx *exeContext, sc scope, m *mapping.Mapping, f *ast.Filter, cur *cursor.Cursor) (interface{}, error) {
	narrowed, err := e.narrow(sc, cur, f.Pred)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, sc, m, childOrEmpty(f.Child), narrowed)
}

func (e *Executor) executeUnique(ctx *exeContext, sc scope, m *mapping.Mapping, u *ast.Unique, cur *cursor.Cursor) (interface{}, error) {
	seq := cur
	child := childOrEmpty(u.Child)
	// Narrow through the filter chain before counting candidates.
	for {
		f, ok := child.(*ast.Filter)
		if !ok {
			break
		}
		narrowed, err := e.narrow(sc, seq, f.Pred)
		if err != nil {
			return nil, err
		}
		seq = narrowed
		child = childOrEmpty(f.Child)
	}
	elems, err := seq.Iter()
	if err != nil {
		return nil, err
	}
	switch len(elems) {
	case 0:
		if u.Nullable {
			return nil, nil
		}
		return nil, errors.Uniqueness("expected unique result, found none")
	case 1:
		return e.execute(ctx, sc, m, child, elems[0])
	default:
		return nil, errors.Uniqueness("expected unique result, found %d", len(elems))
	}
}

func (e *Executor) narrow(sc scope, cur *cursor.Cursor, pred ast.Predicate) (*cursor.Cursor, error) {
	elems, err := cur.Iter()
	if err != nil {
		return nil, err
	}
	var kept []*cursor.Cursor
	for _, elem := range elems {
		ok, err := evalPredicate(sc, pred, elem)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, elem)
		}
	}
	return cur.Narrow(kept), nil
}

func evalPredicate(sc scope, pred ast.Predicate, elem *cursor.Cursor) (bool, error) {
	switch p := pred.(type) {
	case *ast.Eql:
		if p.Path.Type != elem.TypeName() {
			return false, errors.Internal("predicate path %s does not match focus type %s", p.Path, elem.TypeName())
		}
		left, err := elem.Field(p.Path.Field)
		if err != nil {
			return false, err
		}
		var right interface{}
		switch v := p.Value.(type) {
		case *ast.Const:
			right = v.Value
		case *ast.Ref:
			bound, ok := sc.env[v.Name]
			if !ok {
				return false, errors.Internal("unresolved binding reference $%s", v.Name)
			}
			right = bound
		default:
			return false, errors.Internal("unknown predicate value %T", p.Value)
		}
		return scalarEqual(left, right), nil
	default:
		return false, errors.Internal("unknown predicate %T", pred)
	}
}

// scalarEqual compares two scalar values exactly on their normalized
// representation. Differing scalar kinds never compare equal.
func scalarEqual(a, b interface{}) bool {
	a, b = normalizeScalar(a), normalizeScalar(b)
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return a == b
}

func normalizeScalar(v interface{}) interface{} {
	v = unwrap(v)
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint:
		// Values beyond the signed range keep their own kind; converting
		// would wrap the sign and alias a negative int64.
		if uint64(n) > math.MaxInt64 {
			return uint64(n)
		}
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return n
		}
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

// leafValue terminates a query branch with the focus itself.
func leafValue(cur *cursor.Cursor) interface{} {
	if cur.IsNil() {
		return nil
	}
	return unwrap(cur.Focus())
}

// unwrap will return the value associated with a pointer type, or nil if the pointer is nil
func unwrap(v interface{}) interface{} {
	i := reflect.ValueOf(v)
	for i.Kind() == reflect.Ptr && !i.IsNil() {
		i = i.Elem()
	}
	if i.Kind() == reflect.Invalid {
		return nil
	}
	return i.Interface()
}

func safeResolve(resolve func(interface{}) (interface{}, error), focus interface{}) (result interface{}, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			result, err = nil, fmt.Errorf("weave: panic: %v\n%s", panicErr, buf)
		}
	}()
	return resolve(focus)
}

func consumesSequence(q ast.Query) bool {
	switch q.(type) {
	case *ast.Filter, *ast.Unique:
		return true
	}
	return false
}

// groupConsumesSequence decides how a Group meets a candidate sequence:
// members that all consume the sequence run against it independently, members
// that are plain selections distribute over the elements. Mixing the two is a
// configuration error.
func groupConsumesSequence(grp *ast.Group) (bool, error) {
	consuming := 0
	for _, member := range grp.Members {
		if consumesSequence(member) {
			consuming++
		}
	}
	switch consuming {
	case 0:
		return false, nil
	case len(grp.Members):
		return true, nil
	default:
		return false, errors.Internal("group mixes sequence and element selections")
	}
}
