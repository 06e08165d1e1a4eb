package errors

import "fmt"

// Kind classifies a QueryError so callers can tell user input problems apart
// from mapping configuration problems.
type Kind int

const (
	// KindInternal marks a mapping configuration mismatch, such as a join
	// function receiving a focus of an unexpected type. Never retryable.
	// It is the zero value so foreign errors default to it.
	KindInternal Kind = iota
	// KindElaboration marks malformed or unexpected argument bindings for a
	// field with a registered rewrite rule.
	KindElaboration
	// KindUniqueness marks a unique selection whose candidate set did not
	// collapse to a single element.
	KindUniqueness
	// KindMissingMapping marks a requested field with no field mapping
	// registered for its type.
	KindMissingMapping
)

func (k Kind) String() string {
	switch k {
	case KindElaboration:
		return "elaboration"
	case KindUniqueness:
		return "uniqueness"
	case KindInternal:
		return "internal"
	case KindMissingMapping:
		return "missing mapping"
	}
	return "unknown"
}

type QueryError struct {
	Message       string                 `json:"message"`
	Locations     []Location             `json:"locations,omitempty"`
	Path          []interface{}          `json:"path,omitempty"`
	Kind          Kind                   `json:"-"`
	ResolverError error                  `json:"-"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

func (err *QueryError) Error() string {
	if err == nil {
		return "<nil>"
	}
	str := fmt.Sprintf("weave: %s", err.Message)
	if err.ResolverError != nil {
		str += " " + err.ResolverError.Error()
	}
	for _, loc := range err.Locations {
		str += fmt.Sprintf(" (%d:%d)", loc.Line, loc.Column)
	}
	if err.Path != nil {
		str += fmt.Sprintf(" path: %v", err.Path)
	}
	return str
}

type MultiError []*QueryError

func (m MultiError) Error() string {
	var res string
	for _, err := range m {
		res += err.Error() + "\n"
	}
	return res
}

var _ error = (*QueryError)(nil)
var _ error = (MultiError)(nil)

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (a Location) Before(b Location) bool {
	return a.Line < b.Line || (a.Line == b.Line && a.Column < b.Column)
}

func New(format string, arg ...interface{}) *QueryError {
	return &QueryError{
		Message: fmt.Sprintf(format, arg...),
	}
}

// Elaboration reports bad argument bindings during query elaboration.
func Elaboration(format string, arg ...interface{}) *QueryError {
	return &QueryError{Kind: KindElaboration, Message: fmt.Sprintf(format, arg...)}
}

// Uniqueness reports a unique selection that matched zero or several candidates.
func Uniqueness(format string, arg ...interface{}) *QueryError {
	return &QueryError{Kind: KindUniqueness, Message: fmt.Sprintf(format, arg...)}
}

// Internal reports a mapping configuration mismatch.
func Internal(format string, arg ...interface{}) *QueryError {
	return &QueryError{Kind: KindInternal, Message: fmt.Sprintf(format, arg...)}
}

// MissingMapping reports a field with no registered mapping on its type.
func MissingMapping(typeName, field string) *QueryError {
	return &QueryError{
		Kind:    KindMissingMapping,
		Message: fmt.Sprintf("no field mapping registered for %s.%s", typeName, field),
	}
}

// KindOf extracts the error kind, defaulting to KindInternal for foreign errors.
func KindOf(err error) Kind {
	if qe, ok := err.(*QueryError); ok {
		return qe.Kind
	}
	return KindInternal
}
