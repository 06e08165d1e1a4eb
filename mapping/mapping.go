// Package mapping declares how schema types are served: per-type field
// mappings that either resolve a value directly or delegate a subtree to
// another mapping, plus the rewrite rules applied during elaboration.
// Registries and rule sets are built once at startup and shared read-only
// across concurrent requests.
package mapping

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/cursor"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/schema"
)

var validate *validator.Validate
var once sync.Once

func newValidate() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// FieldMapping is the closed variant of field resolution strategies. The
// executor pattern-matches over it exhaustively; there is no default case to
// mask configuration errors.
type FieldMapping interface {
	// FieldType is the declared type of the field's value.
	FieldType() schema.Type
	isFieldMapping()
}

var _ FieldMapping = (*ValueField)(nil)
var _ FieldMapping = (*Delegate)(nil)

// ValueField resolves a field as a pure function of the focus value.
type ValueField struct {
	Type    schema.Type
	Resolve func(focus interface{}) (interface{}, error)
}

// JoinFunc rewrites a child query into an independently executable query
// against the delegate's target mapping, using data visible on the parent
// cursor. A focus of an unexpected type is a configuration error and must be
// reported with errors.Internal.
type JoinFunc func(child ast.Query, parent *cursor.Cursor) (ast.Query, error)

// Delegate routes a field's subtree to the mapping named Target. Without a
// Join the child query is forwarded unchanged.
type Delegate struct {
	Type   schema.Type
	Target string
	Join   JoinFunc
}

func (*ValueField) isFieldMapping() {}
func (*Delegate) isFieldMapping()  {}

func (f *ValueField) FieldType() schema.Type { return f.Type }
func (d *Delegate) FieldType() schema.Type   { return d.Type }

// Field declares one (type, field) resolution inside a Mapping.
type Field struct {
	Type    string       `validate:"required"`
	Name    string       `validate:"required"`
	Mapping FieldMapping `validate:"required"`
}

type fieldKey struct {
	typ   string
	field string
}

// Mapping serves one set of schema types from one backing data source. Root
// supplies the focus an independently executed query starts from, declared as
// RootType. Rules is the mapping's own select elaborator.
type Mapping struct {
	Name     string
	RootType schema.Type
	Root     func() interface{}
	Rules    *RuleSet

	fields map[fieldKey]FieldMapping
	order  []Field
}

// NewMapping builds a mapping from its field declarations. Duplicate
// (type, field) pairs are a configuration error.
func NewMapping(name string, rootType schema.Type, root func() interface{}, rules *RuleSet, fields ...Field) (*Mapping, error) {
	m := &Mapping{
		Name:     name,
		RootType: rootType,
		Root:     root,
		Rules:    rules,
		fields:   make(map[fieldKey]FieldMapping, len(fields)),
		order:    fields,
	}
	if name == "" {
		return nil, fmt.Errorf("mapping requires a name")
	}
	if rootType == nil || root == nil {
		return nil, fmt.Errorf("mapping %s requires a root type and root supplier", name)
	}
	if m.Rules == nil {
		m.Rules = emptyRules
	}
	v := newValidate()
	for _, f := range fields {
		if err := v.Struct(f); err != nil {
			return nil, fmt.Errorf("mapping %s: invalid field declaration %s.%s: %w", name, f.Type, f.Name, err)
		}
		key := fieldKey{typ: f.Type, field: f.Name}
		if _, ok := m.fields[key]; ok {
			return nil, fmt.Errorf("mapping %s: duplicate field mapping for %s.%s", name, f.Type, f.Name)
		}
		m.fields[key] = f.Mapping
	}
	return m, nil
}

// MustMapping is NewMapping for static configuration known to be valid.
func MustMapping(name string, rootType schema.Type, root func() interface{}, rules *RuleSet, fields ...Field) *Mapping {
	m, err := NewMapping(name, rootType, root, rules, fields...)
	if err != nil {
		panic(err)
	}
	return m
}

// Field returns the mapping for (typeName, field). Lookups are deterministic
// and total over declared fields; a miss is a configuration error the caller
// reports as errors.MissingMapping.
func (m *Mapping) Field(typeName, field string) (FieldMapping, bool) {
	fm, ok := m.fields[fieldKey{typ: typeName, field: field}]
	return fm, ok
}

// RootCursor derives a fresh cursor over the mapping's root focus.
func (m *Mapping) RootCursor() *cursor.Cursor {
	return cursor.New(m.Root(), m.RootType)
}

// Registry is the process-wide set of mappings a schema is composed from.
// It is immutable after construction.
type Registry struct {
	mappings map[string]*Mapping
}

// NewRegistry indexes mappings by name and verifies every delegate target is
// registered, so dangling delegation fails at startup rather than mid-request.
func NewRegistry(mappings ...*Mapping) (*Registry, error) {
	r := &Registry{mappings: make(map[string]*Mapping, len(mappings))}
	for _, m := range mappings {
		if _, ok := r.mappings[m.Name]; ok {
			return nil, fmt.Errorf("duplicate mapping name %q", m.Name)
		}
		r.mappings[m.Name] = m
	}
	for _, m := range mappings {
		for key, fm := range m.fields {
			d, ok := fm.(*Delegate)
			if !ok {
				continue
			}
			if _, ok := r.mappings[d.Target]; !ok {
				return nil, fmt.Errorf("mapping %s: field %s.%s delegates to unregistered mapping %q",
					m.Name, key.typ, key.field, d.Target)
			}
		}
	}
	return r, nil
}

// Mapping returns the named mapping.
func (r *Registry) Mapping(name string) (*Mapping, error) {
	m, ok := r.mappings[name]
	if !ok {
		return nil, errors.Internal("mapping %q is not registered", name)
	}
	return m, nil
}
