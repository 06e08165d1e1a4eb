package schema

// Type corresponds to the declared GraphQL type of a value.
type Type interface {
	String() string
	// IsType() is used to identify the interface that implements IsType,
	// preventing any interface from implementing IsType
	IsType()
}

var _ Type = (*Scalar)(nil)
var _ Type = (*Object)(nil)
var _ Type = (*Enum)(nil)
var _ Type = (*List)(nil)
var _ Type = (*NonNull)(nil)

type NamedType interface {
	Type
	TypeName() string
}

var _ NamedType = (*Scalar)(nil)
var _ NamedType = (*Object)(nil)
var _ NamedType = (*Enum)(nil)

// The leaf values of any request are Scalars or Enums.
type Scalar struct {
	Name string
}

// Object types have a name; their fields are declared by the mapping registry,
// not here, so one schema type can be served by several mappings.
type Object struct {
	Name string
}

type Enum struct {
	Name   string
	Values []string
}

// A List type wraps other types to represent an ordered sequence of that type.
type List struct {
	Type Type
}

// A NonNull type wraps other types to represent that the value can never be null.
type NonNull struct {
	Type Type
}

func (t *Scalar) String() string  { return t.Name }
func (t *Object) String() string  { return t.Name }
func (t *Enum) String() string    { return t.Name }
func (t *List) String() string    { return "[" + t.Type.String() + "]" }
func (t *NonNull) String() string { return t.Type.String() + "!" }

func (t *Scalar) IsType()  {}
func (t *Object) IsType()  {}
func (t *Enum) IsType()    {}
func (t *List) IsType()    {}
func (t *NonNull) IsType() {}

func (t *Scalar) TypeName() string { return t.Name }
func (t *Object) TypeName() string { return t.Name }
func (t *Enum) TypeName() string   { return t.Name }

// Unwrap strips List and NonNull wrappers down to the named type.
func Unwrap(t Type) NamedType {
	for {
		switch typ := t.(type) {
		case *List:
			t = typ.Type
		case *NonNull:
			t = typ.Type
		case NamedType:
			return typ
		default:
			return nil
		}
	}
}

// Nullable reports whether a value of type t may legally be null.
func Nullable(t Type) bool {
	_, ok := t.(*NonNull)
	return !ok
}

// IsList reports whether t is a sequence type once NonNull wrappers are removed.
func IsList(t Type) bool {
	if nn, ok := t.(*NonNull); ok {
		t = nn.Type
	}
	_, ok := t.(*List)
	return ok
}

// Elem returns the element type of a sequence type, unwrapping an outer NonNull.
func Elem(t Type) Type {
	if nn, ok := t.(*NonNull); ok {
		t = nn.Type
	}
	if l, ok := t.(*List); ok {
		return l.Type
	}
	return nil
}
