// Package cursor provides the handle the executor walks result data with: a
// current focus value paired with its declared schema type. Field lookup goes
// through the cursor so join functions and predicates never see the backing
// representation.
package cursor

import (
	"reflect"
	"strings"

	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/schema"
)

// Cursor pairs a focus value with its declared type. Derived cursors are new
// values, never aliases; no cursor state is shared between executions.
type Cursor struct {
	focus interface{}
	typ   schema.Type
}

func New(focus interface{}, typ schema.Type) *Cursor {
	return &Cursor{focus: focus, typ: typ}
}

func (c *Cursor) Focus() interface{} { return c.focus }

func (c *Cursor) Type() schema.Type { return c.typ }

// TypeName returns the innermost named type of the cursor's declared type.
func (c *Cursor) TypeName() string {
	named := schema.Unwrap(c.typ)
	if named == nil {
		return ""
	}
	return named.TypeName()
}

// IsSequence reports whether the cursor ranges over a candidate sequence.
func (c *Cursor) IsSequence() bool { return schema.IsList(c.typ) }

// IsNil reports whether the focus is absent, unwrapping pointer indirection.
func (c *Cursor) IsNil() bool {
	if c.focus == nil {
		return true
	}
	v := reflect.ValueOf(c.focus)
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Derive produces a new cursor for a value reachable from this one.
func (c *Cursor) Derive(focus interface{}, typ schema.Type) *Cursor {
	return New(focus, typ)
}

// Field looks up the named field on the focus. Map focuses resolve by key;
// struct focuses resolve by `graphql` tag, falling back to the exported field
// name, the same convention mapping accessors use for their sources.
func (c *Cursor) Field(name string) (interface{}, error) {
	if c.IsNil() {
		return nil, nil
	}
	v := reflect.ValueOf(c.focus)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(name)
		if !key.Type().AssignableTo(v.Type().Key()) {
			return nil, errors.Internal("focus of type %s is not addressable by field name %q", v.Type(), name)
		}
		elem := v.MapIndex(key)
		if !elem.IsValid() {
			return nil, errors.Internal("focus of type %s has no field %q", c.TypeName(), name)
		}
		return elem.Interface(), nil
	case reflect.Struct:
		if field := structField(v, name); field != nil {
			return field.Interface(), nil
		}
		return nil, errors.Internal("focus of type %s has no field %q", c.TypeName(), name)
	default:
		return nil, errors.Internal("cannot resolve field %q on non-composite focus %s", name, v.Kind())
	}
}

// structField resolves a struct field by graphql tag or exported name.
func structField(v reflect.Value, name string) *reflect.Value {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldTyp := v.Type().Field(i)
		tag := fieldTyp.Tag.Get("graphql")
		if tag == "" || tag == "-" {
			if strings.EqualFold(fieldTyp.Name, name) {
				return &field
			}
			continue
		}
		split := strings.Split(tag, ",")
		if split[0] == name {
			return &field
		}
	}
	return nil
}

// Iter produces one child cursor per element of a sequence focus, preserving
// source order.
func (c *Cursor) Iter() ([]*Cursor, error) {
	elemTyp := schema.Elem(c.typ)
	if elemTyp == nil {
		return nil, errors.Internal("cursor over %s is not a sequence", c.typ)
	}
	if c.IsNil() {
		return nil, nil
	}
	v := reflect.ValueOf(c.focus)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, errors.Internal("sequence cursor over %s holds non-sequence focus %s", c.typ, v.Kind())
	}
	children := make([]*Cursor, v.Len())
	for i := 0; i < v.Len(); i++ {
		children[i] = New(v.Index(i).Interface(), elemTyp)
	}
	return children, nil
}

// Narrow returns a sequence cursor over a subset of this cursor's elements.
// The subset must already be in source order.
func (c *Cursor) Narrow(elements []*Cursor) *Cursor {
	focuses := make([]interface{}, len(elements))
	for i, el := range elements {
		focuses[i] = el.Focus()
	}
	return New(focuses, &schema.List{Type: schema.Elem(c.typ)})
}
