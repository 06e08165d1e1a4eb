package execution_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/cursor"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/execution"
	"github.com/weaveql/weave/mapping"
	"github.com/weaveql/weave/schema"
	"github.com/weaveql/weave/store"
)

func itemSelection() ast.Query {
	return &ast.Group{Members: []ast.Query{
		&ast.Select{Field: "id", Child: &ast.Empty{}},
		&ast.Select{Field: "name", Child: &ast.Empty{}},
	}}
}

func mustItemCursor(t *testing.T) *cursor.Cursor {
	t.Helper()
	return cursor.New(
		map[string]interface{}{"id": "A", "name": "foo"},
		&schema.NonNull{Type: &schema.Object{Name: "Item"}},
	)
}

func executeQuery(t *testing.T, s *store.Store, query ast.Query) (interface{}, errors.MultiError) {
	t.Helper()
	registry, err := s.Registry()
	require.NoError(t, err)
	root, err := registry.Mapping("collections")
	require.NoError(t, err)
	elaborated, err := execution.Elaborate(root, query)
	require.NoError(t, err)
	return execution.NewExecutor(registry).Execute(context.Background(), root, elaborated)
}

func TestUniqueSelectsSingleElement(t *testing.T) {
	query := &ast.Select{Field: "collectionByName",
		Args:  []ast.Binding{{Name: "name", Value: "BC"}},
		Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
	}
	result, errs := executeQuery(t, store.Default(), query)
	assert.Equal(t, errors.MultiError(nil), errs)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"collectionByName":{"name":"BC"}}`, string(data))
}

func TestUniqueFailsWhenNoMatch(t *testing.T) {
	query := &ast.Select{Field: "collectionByName",
		Args:  []ast.Binding{{Name: "name", Value: "ZZ"}},
		Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
	}
	result, errs := executeQuery(t, store.Default(), query)
	assert.Nil(t, result)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.KindUniqueness, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "found none")
}

func TestUniqueFailsOnDuplicateData(t *testing.T) {
	s := store.New(
		[]*store.Collection{
			{Name: "AB", ItemIDs: []string{"A", "B"}},
			{Name: "AB", ItemIDs: []string{"B"}},
		},
		[]map[string]interface{}{
			{"id": "A", "name": "foo"},
			{"id": "B", "name": "bar"},
		},
	)
	query := &ast.Select{Field: "collectionByName",
		Args:  []ast.Binding{{Name: "name", Value: "AB"}},
		Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
	}
	result, errs := executeQuery(t, s, query)
	assert.Nil(t, result)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.KindUniqueness, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "found 2")
}

func TestJoinPreservesParentKeyOrder(t *testing.T) {
	// Items are stored in C, A, B order; the join must reorder per parent.
	query := &ast.Select{Field: "collection",
		Child: &ast.Select{Field: "items", Child: itemSelection()},
	}
	result, errs := executeQuery(t, store.Default(), query)
	assert.Equal(t, errors.MultiError(nil), errs)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, `{"collection":{"items":[{"id":"A","name":"foo"},{"id":"B","name":"bar"}]}}`, string(data))
}

func TestPassThroughDelegationUsesStorageOrder(t *testing.T) {
	query := &ast.Select{Field: "items", Child: itemSelection()}
	result, errs := executeQuery(t, store.Default(), query)
	assert.Equal(t, errors.MultiError(nil), errs)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[{"id":"C","name":"baz"},{"id":"A","name":"foo"},{"id":"B","name":"bar"}]}`, string(data))
}

func TestExecutionIsIdempotent(t *testing.T) {
	query := &ast.Select{Field: "collection",
		Child: &ast.Select{Field: "items", Child: itemSelection()},
	}
	s := store.Default()
	first, errs := executeQuery(t, s, query)
	assert.Equal(t, errors.MultiError(nil), errs)
	second, errs := executeQuery(t, s, query)
	assert.Equal(t, errors.MultiError(nil), errs)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestSiblingFailureReportsIndependently(t *testing.T) {
	query := &ast.Group{Members: []ast.Query{
		&ast.Select{Field: "collectionByName",
			Args:  []ast.Binding{{Name: "name", Value: "ZZ"}},
			Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
		},
		&ast.Select{Field: "collection",
			Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
		},
	}}
	result, errs := executeQuery(t, store.Default(), query)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.KindUniqueness, errs[0].Kind)
	assert.Equal(t, []interface{}{"collectionByName"}, errs[0].Path)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"collectionByName":null,"collection":{"name":"AB"}}`, string(data))
}

func TestMissingMappingSurfacesAtElaboration(t *testing.T) {
	registry, err := store.Default().Registry()
	require.NoError(t, err)
	root, err := registry.Mapping("collections")
	require.NoError(t, err)

	_, err = execution.Elaborate(root, &ast.Select{Field: "nonsense", Child: &ast.Empty{}})
	require.Error(t, err)
	assert.Equal(t, errors.KindMissingMapping, errors.KindOf(err))
}

func TestPredicateReferenceResolvesFromBindings(t *testing.T) {
	// Hand-built elaborated tree: the filter references the select's own
	// "name" binding instead of an inlined constant.
	query := &ast.Select{Field: "collectionByName",
		Args: []ast.Binding{{Name: "name", Value: "BC"}},
		Child: &ast.Unique{Child: &ast.Filter{
			Pred: &ast.Eql{
				Path:  ast.Path{Type: "Collection", Field: "name"},
				Value: &ast.Ref{Name: "name"},
			},
			Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
		}},
	}
	registry, err := store.Default().Registry()
	require.NoError(t, err)
	root, err := registry.Mapping("collections")
	require.NoError(t, err)

	result, errs := execution.NewExecutor(registry).Execute(context.Background(), root, query)
	assert.Equal(t, errors.MultiError(nil), errs)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"collectionByName":{"name":"BC"}}`, string(data))
}

func TestEqualityDoesNotCoerceScalarKinds(t *testing.T) {
	s := store.New(
		[]*store.Collection{{Name: "1", ItemIDs: nil}},
		nil,
	)
	// The bound value is an int64; the stored name is a string. No match.
	query := &ast.Select{Field: "collectionByName",
		Args:  []ast.Binding{{Name: "name", Value: int64(1)}},
		Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
	}
	result, errs := executeQuery(t, s, query)
	assert.Nil(t, result)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.KindUniqueness, errs[0].Kind)
}

func TestJoinRejectsUnexpectedFocusType(t *testing.T) {
	_, err := store.JoinItemsByID(itemSelection(), mustItemCursor(t))
	require.Error(t, err)
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))
}

// lookupMapping declares a single-mapping schema whose itemByID field rewrites
// into a nullable unique selection.
func lookupMapping(t *testing.T) (*mapping.Registry, *mapping.Mapping) {
	t.Helper()
	itemType := &schema.Object{Name: "Item"}
	rules, err := mapping.NewRuleSet(mapping.Rule{
		Type:    "Query",
		Field:   "itemByID",
		Rewrite: mapping.UniqueByArg("Item", "id", "id", true),
	})
	require.NoError(t, err)
	lookup, err := mapping.NewMapping("lookup", &schema.NonNull{Type: &schema.Object{Name: "Query"}},
		func() interface{} { return struct{}{} },
		rules,
		mapping.Field{Type: "Query", Name: "itemByID", Mapping: &mapping.ValueField{
			Type: &schema.List{Type: &schema.NonNull{Type: itemType}},
			Resolve: func(interface{}) (interface{}, error) {
				return []map[string]interface{}{{"id": "A", "name": "foo"}}, nil
			},
		}},
		mapping.Field{Type: "Item", Name: "name", Mapping: &mapping.ValueField{
			Type: &schema.Scalar{Name: "String"},
			Resolve: func(focus interface{}) (interface{}, error) {
				return focus.(map[string]interface{})["name"], nil
			},
		}},
	)
	require.NoError(t, err)
	registry, err := mapping.NewRegistry(lookup)
	require.NoError(t, err)
	return registry, lookup
}

func TestNullableUniqueYieldsNullWhenNoMatch(t *testing.T) {
	registry, lookup := lookupMapping(t)
	query := &ast.Select{Field: "itemByID",
		Args:  []ast.Binding{{Name: "id", Value: "Z"}},
		Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
	}
	elaborated, err := execution.Elaborate(lookup, query)
	require.NoError(t, err)

	result, errs := execution.NewExecutor(registry).Execute(context.Background(), lookup, elaborated)
	assert.Equal(t, errors.MultiError(nil), errs)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"itemByID":null}`, string(data))
}

func TestFilterFeedsConsumingGroup(t *testing.T) {
	// Each group member collapses the narrowed sequence on its own; the
	// result is one entry per member, not one per element.
	registry, err := store.Default().Registry()
	require.NoError(t, err)
	items, err := registry.Mapping("items")
	require.NoError(t, err)

	query := &ast.Filter{
		Pred: &ast.Eql{
			Path:  ast.Path{Type: "Item", Field: "name"},
			Value: &ast.Const{Value: "bar"},
		},
		Child: &ast.Group{Members: []ast.Query{
			&ast.Unique{Child: &ast.Select{Field: "id", Child: &ast.Empty{}}},
			&ast.Unique{Child: &ast.Select{Field: "name", Child: &ast.Empty{}}},
		}},
	}
	result, errs := execution.NewExecutor(registry).Execute(context.Background(), items, query)
	assert.Equal(t, errors.MultiError(nil), errs)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"B"},{"name":"bar"}]`, string(data))
}

func TestEqualityDistinguishesUnsignedOverflow(t *testing.T) {
	// 1<<63 forced through int64 would wrap to math.MinInt64.
	s := store.New(nil, []map[string]interface{}{
		{"id": uint64(1) << 63, "name": "big"},
	})
	registry, err := s.Registry()
	require.NoError(t, err)
	items, err := registry.Mapping("items")
	require.NoError(t, err)
	executor := execution.NewExecutor(registry)

	lookup := func(id interface{}) ast.Query {
		return &ast.Unique{Nullable: true, Child: &ast.Filter{
			Pred: &ast.Eql{
				Path:  ast.Path{Type: "Item", Field: "id"},
				Value: &ast.Const{Value: id},
			},
			Child: &ast.Select{Field: "name", Child: &ast.Empty{}},
		}}
	}

	result, errs := executor.Execute(context.Background(), items, lookup(int64(math.MinInt64)))
	assert.Equal(t, errors.MultiError(nil), errs)
	assert.Nil(t, result)

	result, errs = executor.Execute(context.Background(), items, lookup(uint64(1)<<63))
	assert.Equal(t, errors.MultiError(nil), errs)
	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"big"}`, string(data))
}
