package core

import (
	"context"
	"fmt"
)

// ToolContext provides a constrained, auditable surface for tool / function
// implementations invoked by an agent. It accumulates EventActions (state
// deltas, transfers, escalation signals, artifact diffs) without directly
// mutating the underlying session; the tool execution processor attaches the
// accumulated actions to the tool_result event it appends.
type ToolContext struct {
	ic             *InvocationContext
	ctx            context.Context
	functionCallID string
	actions        *EventActions

	*logScope
}

// NewToolContext constructs a tool context bound to ic and a unique
// functionCallID.
func NewToolContext(ic *InvocationContext, functionCallID string) *ToolContext {
	return &ToolContext{
		ic:             ic,
		functionCallID: functionCallID,
		actions:        &EventActions{},
		logScope:       ic.logScope.with("function_call_id", functionCallID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context {
	if tc.ctx != nil {
		return tc.ctx
	}
	return tc.ic.Context
}

// WithContext returns a view of tc whose Context is ctx. Actions recorded
// through the view accumulate on tc.
func (tc *ToolContext) WithContext(ctx context.Context) *ToolContext {
	view := *tc
	view.ctx = ctx
	return &view
}

// Invocation returns the invocation context the tool runs under.
func (tc *ToolContext) Invocation() *InvocationContext { return tc.ic }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.ic.SessionID() }

// InvocationID returns the invocation ID associated with the tool invocation.
func (tc *ToolContext) InvocationID() string { return tc.ic.InvocationID }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent that requested the call.
func (tc *ToolContext) AgentName() string { return tc.ic.AgentName() }

// GetState prefers values this call has set, then the invocation view.
func (tc *ToolContext) GetState(k string) (any, bool) {
	if v, ok := tc.actions.StateDelta[k]; ok {
		return v, true
	}
	return tc.ic.GetState(k)
}

// SetState records a state mutation in the call's delta.
func (tc *ToolContext) SetState(k string, v any) {
	if tc.actions.StateDelta == nil {
		tc.actions.StateDelta = map[string]any{}
	}
	tc.actions.StateDelta[k] = v
}

// Actions returns a copy of the accumulated actions.
func (tc *ToolContext) Actions() EventActions { return EventActions{}.Merge(*tc.actions) }

// SkipSummarization requests that the model not be re-queried with this
// call's result.
func (tc *ToolContext) SkipSummarization() { tc.actions.SkipSummarization = true }

// TransferToAgent signals orchestration to hand off control to another agent.
func (tc *ToolContext) TransferToAgent(name string) {
	tc.actions.TransferToAgent = name
	tc.LogInfo("tool.transfer.request", "from_agent", tc.AgentName(), "to_agent", name)
}

// Escalate requests escalation to the parent agent or a human.
func (tc *ToolContext) Escalate() {
	tc.actions.Escalate = true
	tc.LogInfo("tool.escalate.request", "agent", tc.AgentName())
}

// SaveArtifact persists artifact bytes and records the new version.
func (tc *ToolContext) SaveArtifact(name string, data []byte) (int, error) {
	store := tc.ic.Services.Artifacts
	if store == nil {
		return 0, fmt.Errorf("artifact service not configured")
	}

	version, err := store.Save(tc.Context(), tc.SessionID(), name, data)
	if err != nil {
		return 0, err
	}

	if tc.actions.ArtifactDelta == nil {
		tc.actions.ArtifactDelta = map[string]int{}
	}
	tc.actions.ArtifactDelta[name] = version

	return version, nil
}

// LoadArtifact retrieves the latest version of a persisted artifact.
func (tc *ToolContext) LoadArtifact(name string) ([]byte, error) {
	store := tc.ic.Services.Artifacts
	if store == nil {
		return nil, fmt.Errorf("artifact service not configured")
	}
	return store.Load(tc.Context(), tc.SessionID(), name)
}

// ListArtifacts returns artifact names stored for the session.
func (tc *ToolContext) ListArtifacts() ([]string, error) {
	store := tc.ic.Services.Artifacts
	if store == nil {
		return nil, fmt.Errorf("artifact service not configured")
	}
	return store.List(tc.Context(), tc.SessionID())
}

// SearchMemory performs a recall query against the configured MemoryStore.
func (tc *ToolContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	store := tc.ic.Services.Memory
	if store == nil {
		return nil, fmt.Errorf("memory service not configured")
	}
	return store.Search(tc.Context(), tc.SessionID(), q, limit)
}

// StoreMemory appends new content to the session's memory store.
func (tc *ToolContext) StoreMemory(content string, md map[string]any) (string, error) {
	store := tc.ic.Services.Memory
	if store == nil {
		return "", fmt.Errorf("memory service not configured")
	}
	return store.Store(tc.Context(), tc.SessionID(), content, md)
}
