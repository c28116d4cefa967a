// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side effects) with schema
// validated arguments, consistent error handling and before/after hooks.
package tool

import (
	"fmt"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered in a Toolset and advertised to the model through their
// name, description and JSON schema. Every call receives a ToolContext giving
// access to session state, orchestration signals (transfer, escalate),
// artifacts and memory.
type Tool interface {
	// Name returns the unique identifier for this tool within a Toolset.
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema object describing the arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(tc *core.ToolContext, args map[string]any) (any, error)
}

// BeforeHook runs ahead of the tool body. A non-nil result short-circuits
// the body and is used as the call's result. Returned args replace the input
// when non-nil.
type BeforeHook func(tc *core.ToolContext, args map[string]any) (newArgs map[string]any, result any, err error)

// AfterHook runs after the tool body (or a short-circuiting BeforeHook) and
// may replace the result or the error.
type AfterHook func(tc *core.ToolContext, args map[string]any, result any, err error) (any, error)

// Hooked is implemented by tools carrying their own execution hooks.
type Hooked interface {
	BeforeHooks() []BeforeHook
	AfterHooks() []AfterHook
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
	CodeArguments  = "INVALID_ARGUMENTS"
)

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Declaration converts a tool into the declaration advertised to models.
func Declaration(t Tool) core.ToolDeclaration {
	return core.ToolDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}
