package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/hupe1980/flowmesh/logging"
)

// RunConfig carries per-run settings shared by every nested context.
type RunConfig struct {
	// AgentName selects the agent to start with; empty means the root agent.
	AgentName string
	// Input is the user content that started the run.
	Input *Content
	// DefaultModel is used when neither the request nor the agent names a model.
	DefaultModel string
	// MaxInteractions overrides the flow's model call ceiling when > 0.
	MaxInteractions int
	// Streaming requests incremental model output.
	Streaming bool
	// OnPartial receives partial model_response events while streaming.
	// Partial events are never appended to the session log.
	OnPartial func(Event)
}

// Services bundles the collaborators available to agents, flows and tools.
type Services struct {
	Sessions     SessionStore
	Artifacts    ArtifactStore
	Memory       MemoryStore
	Models       LLMRegistry
	CodeExecutor CodeExecutor
}

// InvocationContext is the per-run bundle propagated into every nested
// agent, flow and tool call. Exactly one root context exists per top-level
// run; NewChild derives views that share the Session and Services but
// override the active agent and branch.
//
// State mutations performed via SetState are staged until the next
// AppendEvent, which records them in the event's StateDelta.
type InvocationContext struct {
	Context      context.Context
	InvocationID string
	Session      *Session
	Agent        Agent
	Parent       *InvocationContext
	Branch       string
	RunConfig    RunConfig
	Services     Services
	StateDelta   map[string]any

	*logScope
}

// NewInvocationContext constructs a root context for one run.
func NewInvocationContext(
	ctx context.Context,
	sess *Session,
	agent Agent,
	runConfig RunConfig,
	services Services,
	logger logging.Logger,
) *InvocationContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &InvocationContext{
		Context:      ctx,
		InvocationID: NewID(),
		Session:      sess,
		Agent:        agent,
		RunConfig:    runConfig,
		Services:     services,
		StateDelta:   map[string]any{},
		logScope:     newLogScope(logger),
	}
}

// NewChild derives a view for agent with a fresh staging buffer and a branch
// label extended by the agent's name.
func (ic *InvocationContext) NewChild(agent Agent) *InvocationContext {
	branch := agent.Name()
	if ic.Branch != "" {
		branch = ic.Branch + "." + branch
	}
	return &InvocationContext{
		Context:      ic.Context,
		InvocationID: ic.InvocationID,
		Session:      ic.Session,
		Agent:        agent,
		Parent:       ic,
		Branch:       branch,
		RunConfig:    ic.RunConfig,
		Services:     ic.Services,
		StateDelta:   map[string]any{},
		logScope:     ic.logScope,
	}
}

// WithAgent derives a view that hands the same branch to another agent.
// Used when control transfers between peers rather than nesting.
func (ic *InvocationContext) WithAgent(agent Agent) *InvocationContext {
	child := ic.NewChild(agent)
	child.Branch = ic.Branch
	return child
}

// Done mirrors context.Context's Done.
func (ic *InvocationContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvocationContext) Err() error { return ic.Context.Err() }

// AgentName returns the active agent's name or "".
func (ic *InvocationContext) AgentName() string {
	if ic.Agent == nil {
		return ""
	}
	return ic.Agent.Name()
}

// SessionID returns the bound session's id or "".
func (ic *InvocationContext) SessionID() string {
	if ic.Session == nil {
		return ""
	}
	return ic.Session.ID
}

// GetState returns a staged value if present, else the session value.
func (ic *InvocationContext) GetState(k string) (any, bool) {
	if v, ok := ic.StateDelta[k]; ok {
		return v, true
	}
	if ic.Session != nil {
		return ic.Session.GetState(k)
	}
	return nil, false
}

// SetState stages a state mutation for the next appended event.
func (ic *InvocationContext) SetState(k string, v any) { ic.StateDelta[k] = v }

// ApplyStateDelta stages all pairs from d.
func (ic *InvocationContext) ApplyStateDelta(d map[string]any) { maps.Copy(ic.StateDelta, d) }

// State returns the session state overlaid with staged mutations.
func (ic *InvocationContext) State() map[string]any {
	out := map[string]any{}
	if ic.Session != nil {
		out = ic.Session.StateSnapshot()
		if out == nil {
			out = map[string]any{}
		}
	}
	maps.Copy(out, ic.StateDelta)
	return out
}

// Stamp fills ev's invocation, session, branch and author from this view
// without appending it. Events carrying another session's or invocation's id
// are rejected.
func (ic *InvocationContext) Stamp(ev Event) (Event, error) {
	switch {
	case ev.InvocationID == "":
		ev.InvocationID = ic.InvocationID
	case ev.InvocationID != ic.InvocationID:
		return ev, fmt.Errorf("append event %s: %w", ev.ID, ErrInvocationMismatch)
	}

	if ic.Session != nil {
		switch {
		case ev.SessionID == "":
			ev.SessionID = ic.Session.ID
		case ev.SessionID != ic.Session.ID:
			return ev, fmt.Errorf("append event %s: %w", ev.ID, ErrSessionMismatch)
		}
	}

	if ev.Branch == "" {
		ev.Branch = ic.Branch
	}
	if ev.Author == "" {
		ev.Author = ic.AgentName()
	}

	return ev, nil
}

// AppendEvent stamps ev, merges staged state, persists it through the
// session store and appends it to the session log.
func (ic *InvocationContext) AppendEvent(ev Event) (Event, error) {
	if ic.Session == nil {
		return ev, fmt.Errorf("append event: no session bound to invocation %s", ic.InvocationID)
	}

	ev, err := ic.Stamp(ev)
	if err != nil {
		return ev, err
	}

	if len(ic.StateDelta) > 0 {
		ev.Actions = ev.Actions.Merge(EventActions{StateDelta: ic.StateDelta})
	}

	if ic.Services.Sessions != nil {
		if err := ic.Services.Sessions.AppendEvent(ic.Context, ic.Session.ID, ev); err != nil {
			return ev, fmt.Errorf("persist event %s: %w", ev.ID, err)
		}
	}

	stored, err := ic.Session.AppendEvent(ev)
	if err != nil {
		return ev, err
	}

	ic.StateDelta = map[string]any{}

	ic.LogDebug("invocation.event.appended",
		"invocation_id", ic.InvocationID,
		"event_id", stored.ID,
		"kind", string(stored.Kind),
		"author", stored.Author,
	)

	return stored, nil
}

// Events returns a copy of the session log.
func (ic *InvocationContext) Events() []Event {
	if ic.Session == nil {
		return nil
	}
	return ic.Session.GetEvents()
}

// Mark returns the current log length; pair with EventsSince.
func (ic *InvocationContext) Mark() int {
	if ic.Session == nil {
		return 0
	}
	return ic.Session.Len()
}

// EventsSince returns the events appended after mark.
func (ic *InvocationContext) EventsSince(mark int) []Event {
	if ic.Session == nil {
		return nil
	}
	return ic.Session.EventsSince(mark)
}
