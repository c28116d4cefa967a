package flow

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/tool"
)

// Mode selects how response processors that resolve work for the model
// report their result.
type Mode int

const (
	// ModeRerun returns a Rerun outcome with the extended request. Used by
	// the single-turn flow.
	ModeRerun Mode = iota
	// ModeToolResult returns a ToolResult outcome and leaves looping to the
	// flow. Used by the multi-turn flow.
	ModeToolResult
)

// ToolExecutionOptions configures a ToolExecutionProcessor.
type ToolExecutionOptions struct {
	// Toolset takes priority over the invoking agent's toolset.
	Toolset *tool.Toolset
}

// ToolExecutionProcessor executes the function calls of a model response.
// Calls run sequentially in the order the model emitted them; every call
// yields exactly one function response carrying the call's id, and all
// responses for one model response are aggregated into a single
// tool_result event.
type ToolExecutionProcessor struct {
	mode Mode
	opts ToolExecutionOptions
}

var _ ResponseProcessor = (*ToolExecutionProcessor)(nil)

// NewToolExecutionProcessor creates the processor for mode.
func NewToolExecutionProcessor(mode Mode, optFns ...func(o *ToolExecutionOptions)) *ToolExecutionProcessor {
	opts := ToolExecutionOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ToolExecutionProcessor{mode: mode, opts: opts}
}

// Name implements ResponseProcessor.
func (p *ToolExecutionProcessor) Name() string { return "tool_execution" }

// ProcessResponse implements ResponseProcessor.
func (p *ToolExecutionProcessor) ProcessResponse(ic *core.InvocationContext, req *core.LLMRequest, resp *core.LLMResponse) (Outcome, error) {
	calls := resp.FunctionCalls()
	if len(calls) == 0 {
		return Continue(resp), nil
	}

	ts := p.toolset(ic)
	if ts == nil {
		ic.LogWarn("flow.tools.unavailable", "agent", ic.AgentName(), "function_calls", len(calls))
		return Continue(resp), nil
	}

	ensureCallIDs(resp)
	calls = resp.FunctionCalls()

	responses, actions := ExecuteCalls(ic, ts, calls)

	ev := core.NewToolResultEvent(ic.AgentName(), responses)
	ev.Actions = actions

	if p.mode == ModeToolResult {
		return ToolResult(ev), nil
	}

	// Directives that hand control elsewhere end the turn with the result.
	if actions.TransferToAgent != "" || actions.Escalate || actions.SkipSummarization {
		return ToolResult(ev), nil
	}

	next := req.Clone()
	next.AppendContents(*resp.Primary().Clone(), *ev.Content.Clone())

	return Rerun(next, ev), nil
}

func (p *ToolExecutionProcessor) toolset(ic *core.InvocationContext) *tool.Toolset {
	if p.opts.Toolset != nil {
		return p.opts.Toolset
	}
	if fa, ok := flowAgent(ic); ok {
		return fa.Toolset()
	}
	return nil
}

// ExecuteCalls runs calls sequentially against ts and returns one response
// per call, in order, plus the merged actions the tools requested. A failing
// or missing tool produces an error response for that call only.
func ExecuteCalls(ic *core.InvocationContext, ts *tool.Toolset, calls []core.FunctionCall) ([]core.FunctionResponse, core.EventActions) {
	cbs := callbacksFor(ic)

	var actions core.EventActions
	responses := make([]core.FunctionResponse, 0, len(calls))

	for _, call := range calls {
		if call.ID == "" {
			call.ID = core.NewID()
		}

		tc := core.NewToolContext(ic, call.ID)

		start := time.Now()
		result, err := executeCall(tc, ts, call, cbs)

		ic.LogInfo("flow.tool.executed",
			"agent", ic.AgentName(),
			"function", call.Name,
			"function_call_id", call.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil,
		)

		responses = append(responses, functionResponse(call, result, err))
		actions = actions.Merge(tc.Actions())
	}

	return responses, actions
}

func executeCall(tc *core.ToolContext, ts *tool.Toolset, call core.FunctionCall, cbs Callbacks) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			tc.LogError("flow.tool.panic", "function", call.Name, "recover", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()

	for _, cb := range cbs.BeforeTool {
		res, cbErr := cb(tc, call)
		if cbErr != nil {
			return nil, fmt.Errorf("before tool callback: %w", cbErr)
		}
		if res != nil {
			return res, nil
		}
	}

	result, err = ts.Execute(tc, call)

	for _, cb := range cbs.AfterTool {
		result, err = cb(tc, call, result, err)
	}

	return result, err
}

func functionResponse(call core.FunctionCall, result any, err error) core.FunctionResponse {
	fr := core.FunctionResponse{ID: call.ID, Name: call.Name}
	if err != nil {
		fr.Error = err.Error()
		fr.Response = "Error: " + err.Error()
		return fr
	}
	fr.Response = normalizeResult(result)
	return fr
}

func normalizeResult(result any) any {
	switch r := result.(type) {
	case nil:
		return ""
	case *core.Content:
		return r.Text()
	case core.Content:
		return r.Text()
	case fmt.Stringer:
		return r.String()
	default:
		return r
	}
}
