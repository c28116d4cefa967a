package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/util"
)

// Func is the signature wrapped by FunctionTool.
type Func func(tc *core.ToolContext, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds the JSON schema describing its parameters
//   - Validates model supplied arguments against that schema before execution
//   - Normalizes errors so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
	before      []BeforeHook
	after       []AfterHook
}

// FunctionOptions configures a FunctionTool.
type FunctionOptions struct {
	Before []BeforeHook
	After  []AfterHook
}

// WithBefore appends before hooks.
func WithBefore(h ...BeforeHook) func(o *FunctionOptions) {
	return func(o *FunctionOptions) { o.Before = append(o.Before, h...) }
}

// WithAfter appends after hooks.
func WithAfter(h ...AfterHook) func(o *FunctionOptions) {
	return func(o *FunctionOptions) { o.After = append(o.After, h...) }
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Example:
//
//	add := NewFunctionTool(
//	  "add",
//	  "Add two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func, optFns ...func(o *FunctionOptions)) *FunctionTool {
	opts := FunctionOptions{}
	for _, o := range optFns {
		o(&opts)
	}

	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		before:      opts.Before,
		after:       opts.After,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct.
//
// Example:
//
//	type AddArgs struct {
//	  A float64 `json:"a" jsonschema:"description=First addend"`
//	  B float64 `json:"b" jsonschema:"description=Second addend"`
//	}
//
//	add := NewFunctionToolFromStruct("add", "Add two numbers", AddArgs{}, fn)
func NewFunctionToolFromStruct(name, description string, structType any, fn Func, optFns ...func(o *FunctionOptions)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// NewTypedFunctionTool derives the schema from T and decodes validated
// arguments into a T before calling fn.
func NewTypedFunctionTool[T any](name, description string, fn func(tc *core.ToolContext, args T) (any, error), optFns ...func(o *FunctionOptions)) *FunctionTool {
	var zero T
	return NewFunctionToolFromStruct(name, description, zero, func(tc *core.ToolContext, raw map[string]any) (any, error) {
		payload, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var args T
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode %T: %w", args, err)
		}
		return fn(tc, args)
	}, optFns...)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// BeforeHooks returns the tool's before hooks.
func (t *FunctionTool) BeforeHooks() []BeforeHook { return t.before }

// AfterHooks returns the tool's after hooks.
func (t *FunctionTool) AfterHooks() []AfterHook { return t.after }

// Call validates args then invokes the wrapped function.
//
// Logging fields: tool, fc_id, duration_ms.
func (t *FunctionTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	logger := tc.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", tc.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(tc, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)
			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
