// Package weave stitches one logical schema out of independently defined data
// mappings: queries are elaborated per mapping, delegated fields are rewritten
// into independent queries against their target mapping, and sub-results are
// merged back in request order.
package weave

import (
	"context"
	"log/slog"
	"time"

	"github.com/weaveql/weave/ast"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/execution"
	"github.com/weaveql/weave/mapping"
	"github.com/weaveql/weave/parser"
)

// Engine holds the process-wide, read-only composition state: the mapping
// registry and the name of the mapping queries enter through. Engines are
// safe for concurrent use.
type Engine struct {
	registry *mapping.Registry
	root     *mapping.Mapping
	executor *execution.Executor
	logger   *slog.Logger
}

type Option func(*Engine)

// WithLogger installs a request-level logger. The default logs nowhere.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an engine over registry, rooted at the named mapping.
func New(registry *mapping.Registry, rootMapping string, opts ...Option) (*Engine, error) {
	root, err := registry.Mapping(rootMapping)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		registry: registry,
		root:     root,
		executor: execution.NewExecutor(registry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type Params struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
	Context       context.Context        `json:"-"`
}

// Response is the protocol envelope. Errors are intentionally serialized
// first based on the advice in
// https://github.com/facebook/graphql/commit/7b40390d48680b15cb93e02d46ac5eb249689876#diff-757cea6edf0288677a9eea4cfc801d87R107
type Response struct {
	Errors errors.MultiError `json:"errors,omitempty"`
	Data   interface{}       `json:"data,omitempty"`
}

// Do parses, elaborates, and executes one request against the root mapping.
func (e *Engine) Do(param Params) *Response {
	start := time.Now()
	ctx := param.Context
	if ctx == nil {
		ctx = context.Background()
	}

	resp := e.do(ctx, param)

	if e.logger != nil {
		e.logger.Info("request executed",
			"operation", param.OperationName,
			"duration", time.Since(start),
			"errors", len(resp.Errors),
		)
	}
	return resp
}

func (e *Engine) do(ctx context.Context, param Params) *Response {
	q, err := parser.ParseQuery(parser.Params{
		Query:         param.Query,
		OperationName: param.OperationName,
		Variables:     param.Variables,
	})
	if err != nil {
		return failure(err)
	}

	elaborated, err := execution.Elaborate(e.root, q)
	if err != nil {
		return failure(err)
	}

	data, errs := e.executor.Execute(ctx, e.root, elaborated)
	return &Response{Data: data, Errors: errs}
}

// Execute runs an already parsed query tree, for callers that build trees
// programmatically instead of from text.
func (e *Engine) Execute(ctx context.Context, q ast.Query) *Response {
	elaborated, err := execution.Elaborate(e.root, q)
	if err != nil {
		return failure(err)
	}
	data, errs := e.executor.Execute(ctx, e.root, elaborated)
	return &Response{Data: data, Errors: errs}
}

func failure(err error) *Response {
	if qe, ok := err.(*errors.QueryError); ok {
		return &Response{Errors: errors.MultiError{qe}}
	}
	return &Response{Errors: errors.MultiError{errors.New("%s", err.Error())}}
}
