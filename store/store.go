// Package store provides the in-memory mappings the demo schema is composed
// from: collections served from an object-backed store, items served from a
// value-backed store. Collection.items crosses the mapping boundary through a
// join on the collection's ordered item ids.
package store

import (
	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/cursor"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/mapping"
	"github.com/weaveql/weave/schema"
)

type Collection struct {
	Name    string   `graphql:"name"`
	ItemIDs []string `graphql:"itemIds"`
}

// root is the sentinel focus behind the Query type.
type root struct{}

var (
	queryType      = &schema.Object{Name: "Query"}
	collectionType = &schema.Object{Name: "Collection"}
	itemType       = &schema.Object{Name: "Item"}
	idType         = &schema.Scalar{Name: "ID"}
	stringType     = &schema.Scalar{Name: "String"}

	collectionListType = &schema.NonNull{Type: &schema.List{Type: &schema.NonNull{Type: collectionType}}}
	itemListType       = &schema.NonNull{Type: &schema.List{Type: &schema.NonNull{Type: itemType}}}
	idListType         = &schema.NonNull{Type: &schema.List{Type: &schema.NonNull{Type: idType}}}
)

// Store holds the demo data. Items are deliberately kept in storage order
// unrelated to any collection's key order, so join recomposition is
// observable in results.
type Store struct {
	collections []*Collection
	items       []map[string]interface{}
}

func New(collections []*Collection, items []map[string]interface{}) *Store {
	return &Store{collections: collections, items: items}
}

// Default returns the store backing the demo schema: collections AB and BC
// over items A, B, C.
func Default() *Store {
	return New(
		[]*Collection{
			{Name: "AB", ItemIDs: []string{"A", "B"}},
			{Name: "BC", ItemIDs: []string{"B", "C"}},
		},
		[]map[string]interface{}{
			{"id": "C", "name": "baz"},
			{"id": "A", "name": "foo"},
			{"id": "B", "name": "bar"},
		},
	)
}

// Registry assembles the two mappings. The result is immutable configuration
// shared by every request.
func (s *Store) Registry() (*mapping.Registry, error) {
	items, err := s.itemsMapping()
	if err != nil {
		return nil, err
	}
	collections, err := s.collectionsMapping()
	if err != nil {
		return nil, err
	}
	return mapping.NewRegistry(collections, items)
}

func (s *Store) itemsMapping() (*mapping.Mapping, error) {
	return mapping.NewMapping("items", itemListType,
		func() interface{} { return s.items },
		nil,
		mapping.Field{Type: "Item", Name: "id", Mapping: &mapping.ValueField{
			Type:    &schema.NonNull{Type: idType},
			Resolve: itemField("id"),
		}},
		mapping.Field{Type: "Item", Name: "name", Mapping: &mapping.ValueField{
			Type:    &schema.NonNull{Type: stringType},
			Resolve: itemField("name"),
		}},
	)
}

func (s *Store) collectionsMapping() (*mapping.Mapping, error) {
	rules, err := mapping.NewRuleSet(
		mapping.Rule{
			Type:    "Query",
			Field:   "collectionByName",
			Rewrite: mapping.UniqueByArg("Collection", "name", "name", false),
		},
	)
	if err != nil {
		return nil, err
	}
	return mapping.NewMapping("collections", &schema.NonNull{Type: queryType},
		func() interface{} { return root{} },
		rules,
		mapping.Field{Type: "Query", Name: "collection", Mapping: &mapping.ValueField{
			Type:    &schema.NonNull{Type: collectionType},
			Resolve: s.defaultCollection,
		}},
		mapping.Field{Type: "Query", Name: "collections", Mapping: &mapping.ValueField{
			Type:    collectionListType,
			Resolve: func(interface{}) (interface{}, error) { return s.collections, nil },
		}},
		mapping.Field{Type: "Query", Name: "collectionByName", Mapping: &mapping.ValueField{
			Type:    collectionListType,
			Resolve: func(interface{}) (interface{}, error) { return s.collections, nil },
		}},
		mapping.Field{Type: "Query", Name: "items", Mapping: &mapping.Delegate{
			Type:   itemListType,
			Target: "items",
		}},
		mapping.Field{Type: "Collection", Name: "name", Mapping: &mapping.ValueField{
			Type:    &schema.NonNull{Type: stringType},
			Resolve: collectionField(func(c *Collection) interface{} { return c.Name }),
		}},
		mapping.Field{Type: "Collection", Name: "itemIds", Mapping: &mapping.ValueField{
			Type:    idListType,
			Resolve: collectionField(func(c *Collection) interface{} { return c.ItemIDs }),
		}},
		mapping.Field{Type: "Collection", Name: "items", Mapping: &mapping.Delegate{
			Type:   itemListType,
			Target: "items",
			Join:   JoinItemsByID,
		}},
	)
}

func (s *Store) defaultCollection(interface{}) (interface{}, error) {
	if len(s.collections) == 0 {
		return nil, nil
	}
	return s.collections[0], nil
}

// JoinItemsByID rewrites the child query of Collection.items into one unique
// selection per item id on the parent collection, in the parent's key order.
func JoinItemsByID(child ast.Query, parent *cursor.Cursor) (ast.Query, error) {
	if parent.TypeName() != "Collection" {
		return nil, errors.Internal("items join expects a Collection focus, got %s", parent.TypeName())
	}
	raw, err := parent.Field("itemIds")
	if err != nil {
		return nil, err
	}
	ids, ok := raw.([]string)
	if !ok {
		return nil, errors.Internal("items join expects itemIds to be a string list, got %T", raw)
	}
	members := make([]ast.Query, len(ids))
	for i, id := range ids {
		members[i] = &ast.Unique{
			Child: &ast.Filter{
				Pred: &ast.Eql{
					Path:  ast.Path{Type: "Item", Field: "id"},
					Value: &ast.Const{Value: id},
				},
				Child: child,
			},
		}
	}
	return &ast.Group{Members: members}, nil
}

func itemField(name string) func(interface{}) (interface{}, error) {
	return func(focus interface{}) (interface{}, error) {
		value, ok := focus.(map[string]interface{})
		if !ok {
			return nil, errors.Internal("expected Item value, got %T", focus)
		}
		field, ok := value[name]
		if !ok {
			return nil, errors.Internal("Item value has no field %q", name)
		}
		return field, nil
	}
}

func collectionField(get func(*Collection) interface{}) func(interface{}) (interface{}, error) {
	return func(focus interface{}) (interface{}, error) {
		c, ok := focus.(*Collection)
		if !ok {
			return nil, errors.Internal("expected Collection focus, got %T", focus)
		}
		return get(c), nil
	}
}
