// Package flow provides the execution policies that run one agent turn
// against a model.
//
// A flow applies an ordered pipeline of request processors, calls the model,
// and hands the response to an ordered pipeline of response processors. The
// processors report what should happen next through an Outcome; the flow
// alone decides whether to loop and is the only writer of the session log
// during a turn.
package flow

import (
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/tool"
)

// Flow executes a single agent turn and returns its conclusive event.
// Failures never escape as Go errors; they are returned as error events.
type Flow interface {
	// Name identifies the policy ("single" or "multi").
	Name() string
	// Defaults returns the generation config agents merge their own over.
	Defaults() core.GenerationConfig
	// Run executes the turn for ic, starting from req.
	Run(ic *core.InvocationContext, req *core.LLMRequest) core.Event
}

// FlowAgent is the view of an agent that processors consult. Agents that
// do not implement it are served with an empty instruction and no tools.
type FlowAgent interface {
	core.Agent

	// ResolveInstruction returns the raw (unrendered) system instruction.
	ResolveInstruction(ic *core.InvocationContext) (string, error)

	// Toolset returns the tools the agent exposes to the model.
	Toolset() *tool.Toolset

	// TransferTargets lists the agents this agent may hand control to.
	TransferTargets() []core.Agent

	// MaxHistory bounds the number of history contents sent to the model.
	// Zero means unlimited.
	MaxHistory() int

	// Callbacks returns model and tool callbacks for the agent.
	Callbacks() Callbacks
}

// BeforeModelCallback runs before a model call. A non-nil response skips the
// call and is used as the model's answer.
type BeforeModelCallback func(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMResponse, error)

// AfterModelCallback runs after a model call. A non-nil response replaces
// the model's answer.
type AfterModelCallback func(ic *core.InvocationContext, req *core.LLMRequest, resp *core.LLMResponse) (*core.LLMResponse, error)

// BeforeToolCallback runs before a tool call. A non-nil result skips the tool.
type BeforeToolCallback func(tc *core.ToolContext, call core.FunctionCall) (any, error)

// AfterToolCallback runs after a tool call and may replace its result.
type AfterToolCallback func(tc *core.ToolContext, call core.FunctionCall, result any, err error) (any, error)

// Callbacks groups the hooks a flow invokes around model and tool calls.
type Callbacks struct {
	BeforeModel []BeforeModelCallback
	AfterModel  []AfterModelCallback
	BeforeTool  []BeforeToolCallback
	AfterTool   []AfterToolCallback
}

func flowAgent(ic *core.InvocationContext) (FlowAgent, bool) {
	if ic == nil || ic.Agent == nil {
		return nil, false
	}
	fa, ok := ic.Agent.(FlowAgent)
	return fa, ok
}

func callbacksFor(ic *core.InvocationContext) Callbacks {
	if fa, ok := flowAgent(ic); ok {
		return fa.Callbacks()
	}
	return Callbacks{}
}
