// Package parser is the front door for query text: it parses a GraphQL
// request with gqlparser and translates the selected operation into an
// executable query tree. Only read-path query operations are accepted.
package parser

import (
	"strconv"

	gqlast "github.com/vektah/gqlparser/v2/ast"
	gqlparser "github.com/vektah/gqlparser/v2/parser"

	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/errors"
)

type Params struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// ParseQuery converts GraphQL query text into a query tree with all variable
// references resolved to literal bindings.
func ParseQuery(param Params) (ast.Query, error) {
	doc, err := gqlparser.ParseQuery(&gqlast.Source{Name: param.OperationName, Input: param.Query})
	if err != nil {
		return nil, errors.New("%s", err.Error())
	}

	op, err := pickOperation(doc, param.OperationName)
	if err != nil {
		return nil, err
	}

	vars, err := resolveVariables(op, param.Variables)
	if err != nil {
		return nil, err
	}

	return convertSelectionSet(op.SelectionSet, doc.Fragments, vars)
}

func pickOperation(doc *gqlast.QueryDocument, operationName string) (*gqlast.OperationDefinition, error) {
	if len(doc.Operations) == 0 {
		return nil, errors.New("no operations in query document")
	}
	var op *gqlast.OperationDefinition
	if operationName == "" {
		if len(doc.Operations) > 1 {
			return nil, errors.New("more than one operation in query document and no operation name given")
		}
		op = doc.Operations[0]
	} else {
		op = doc.Operations.ForName(operationName)
		if op == nil {
			return nil, errors.New("no operation with name %q", operationName)
		}
	}
	if op.Operation != gqlast.Query {
		return nil, errors.New("only query operations are supported, got %s", op.Operation)
	}
	return op, nil
}

// resolveVariables fills defaults and rejects undefined required variables.
func resolveVariables(op *gqlast.OperationDefinition, vars map[string]interface{}) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		resolved[k] = v
	}
	for _, def := range op.VariableDefinitions {
		if _, ok := resolved[def.Variable]; ok {
			continue
		}
		if def.DefaultValue != nil {
			value, err := convertValue(def.DefaultValue, nil)
			if err != nil {
				return nil, err
			}
			resolved[def.Variable] = value
			continue
		}
		if def.Type.NonNull {
			return nil, errors.Elaboration("variable $%s is not defined", def.Variable)
		}
	}
	return resolved, nil
}

func convertSelectionSet(set gqlast.SelectionSet, fragments gqlast.FragmentDefinitionList, vars map[string]interface{}) (ast.Query, error) {
	fields, err := flattenSelections(set, fragments, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return &ast.Empty{}, nil
	}
	members := make([]ast.Query, len(fields))
	for i, f := range fields {
		sel, err := convertField(f, fragments, vars)
		if err != nil {
			return nil, err
		}
		members[i] = sel
	}
	if len(members) == 1 {
		return members[0], nil
	}
	return &ast.Group{Members: members}, nil
}

// flattenSelections splices fragment spreads into their enclosing selection,
// preserving the order fields appear in the document.
func flattenSelections(set gqlast.SelectionSet, fragments gqlast.FragmentDefinitionList, seen map[string]bool) ([]*gqlast.Field, error) {
	var fields []*gqlast.Field
	for _, selection := range set {
		switch sel := selection.(type) {
		case *gqlast.Field:
			fields = append(fields, sel)
		case *gqlast.InlineFragment:
			inner, err := flattenSelections(sel.SelectionSet, fragments, seen)
			if err != nil {
				return nil, err
			}
			fields = append(fields, inner...)
		case *gqlast.FragmentSpread:
			if seen[sel.Name] {
				return nil, errors.New("fragment %s cannot spread into itself", sel.Name)
			}
			fragment := fragments.ForName(sel.Name)
			if fragment == nil {
				return nil, errors.New("unknown fragment %q", sel.Name)
			}
			seen[sel.Name] = true
			inner, err := flattenSelections(fragment.SelectionSet, fragments, seen)
			seen[sel.Name] = false
			if err != nil {
				return nil, err
			}
			fields = append(fields, inner...)
		}
	}
	return fields, nil
}

func convertField(f *gqlast.Field, fragments gqlast.FragmentDefinitionList, vars map[string]interface{}) (*ast.Select, error) {
	child, err := convertSelectionSet(f.SelectionSet, fragments, vars)
	if err != nil {
		return nil, err
	}
	args := make([]ast.Binding, 0, len(f.Arguments))
	names := make(map[string]bool, len(f.Arguments))
	for _, arg := range f.Arguments {
		if names[arg.Name] {
			return nil, errors.New("duplicate argument %q on field %s", arg.Name, f.Name)
		}
		names[arg.Name] = true
		value, err := convertValue(arg.Value, vars)
		if err != nil {
			return nil, err
		}
		args = append(args, ast.Binding{Name: arg.Name, Value: value})
	}
	sel := &ast.Select{
		Field: f.Name,
		Alias: f.Alias,
		Args:  args,
		Child: child,
	}
	if f.Position != nil {
		sel.Loc = errors.Location{Line: f.Position.Line, Column: f.Position.Column}
	}
	return sel, nil
}

func convertValue(v *gqlast.Value, vars map[string]interface{}) (interface{}, error) {
	switch v.Kind {
	case gqlast.Variable:
		value, ok := vars[v.Raw]
		if !ok {
			return nil, errors.Elaboration("variable $%s is not defined", v.Raw)
		}
		return value, nil
	case gqlast.IntValue:
		return strconv.ParseInt(v.Raw, 10, 64)
	case gqlast.FloatValue:
		return strconv.ParseFloat(v.Raw, 64)
	case gqlast.StringValue, gqlast.BlockValue, gqlast.EnumValue:
		return v.Raw, nil
	case gqlast.BooleanValue:
		return v.Raw == "true", nil
	case gqlast.NullValue:
		return nil, nil
	case gqlast.ListValue:
		list := make([]interface{}, 0, len(v.Children))
		for _, child := range v.Children {
			value, err := convertValue(child.Value, vars)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		return list, nil
	case gqlast.ObjectValue:
		object := make(map[string]interface{}, len(v.Children))
		for _, child := range v.Children {
			value, err := convertValue(child.Value, vars)
			if err != nil {
				return nil, err
			}
			object[child.Name] = value
		}
		return object, nil
	default:
		return nil, errors.New("unexpected value kind %d", v.Kind)
	}
}
