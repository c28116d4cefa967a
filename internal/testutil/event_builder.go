package testutil

import (
	"github.com/hupe1980/flowmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Author("billing").Branch("root.billing").AssistantText("done").Build()
//
// Chain only the parts you need; the event kind defaults to message and
// the source to the author agent.
type EventBuilder struct {
	kind          core.EventKind
	source        *core.Source
	author        string
	invocationID  string
	sessionID     string
	id            string
	branch        string
	role          string
	textParts     []string
	funcCalls     []core.FunctionCall
	funcResponses []core.FunctionResponse
	customParts   []core.Part
	partial       bool
	actions       core.EventActions
	errDetail     *core.ErrorDetail
}

// NewEventBuilder creates a builder for a message event authored by "agent".
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{kind: core.EventMessage, author: "agent"}
}

// Kind sets the event kind.
func (b *EventBuilder) Kind(k core.EventKind) *EventBuilder { b.kind = k; return b }

// Author sets the agent (or "user") the event is recorded for.
func (b *EventBuilder) Author(a string) *EventBuilder { b.author = a; return b }

// Source overrides the source derived from the author.
func (b *EventBuilder) Source(src core.Source) *EventBuilder { b.source = &src; return b }

// Invocation sets the invocation id.
func (b *EventBuilder) Invocation(id string) *EventBuilder { b.invocationID = id; return b }

// Session sets the session id.
func (b *EventBuilder) Session(id string) *EventBuilder { b.sessionID = id; return b }

// ID overrides the generated event id.
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Branch sets the dotted agent path the event was recorded on.
func (b *EventBuilder) Branch(br string) *EventBuilder { b.branch = br; return b }

// Partial marks the event as a streaming chunk.
func (b *EventBuilder) Partial() *EventBuilder { b.partial = true; return b }

// UserText appends a text part, sets the role to user and makes the user
// the author.
func (b *EventBuilder) UserText(t string) *EventBuilder {
	b.role = core.RoleUser
	b.author = "user"
	b.source = &core.Source{Kind: core.SourceUser, Name: "user"}
	b.textParts = append(b.textParts, t)
	return b
}

// AssistantText appends a text part with the assistant role.
func (b *EventBuilder) AssistantText(t string) *EventBuilder {
	b.role = core.RoleAssistant
	b.textParts = append(b.textParts, t)
	return b
}

// AddPart appends a custom content part.
func (b *EventBuilder) AddPart(p core.Part) *EventBuilder {
	b.customParts = append(b.customParts, p)
	return b
}

// FunctionCall adds a function call part with a JSON argument string.
func (b *EventBuilder) FunctionCall(id, name, args string) *EventBuilder {
	b.role = core.RoleAssistant
	b.funcCalls = append(b.funcCalls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// FunctionResponse adds a function response part and turns the event into
// a tool result.
func (b *EventBuilder) FunctionResponse(id, name string, result any, err error) *EventBuilder {
	fr := core.FunctionResponse{ID: id, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	b.role = core.RoleTool
	b.kind = core.EventToolResult
	b.funcResponses = append(b.funcResponses, fr)
	return b
}

// StateDelta records a state change carried by the event.
func (b *EventBuilder) StateDelta(key string, value any) *EventBuilder {
	b.actions = b.actions.Merge(core.EventActions{StateDelta: map[string]any{key: value}})
	return b
}

// Escalate sets the escalate action.
func (b *EventBuilder) Escalate() *EventBuilder { b.actions.Escalate = true; return b }

// Transfer sets the transfer target action.
func (b *EventBuilder) Transfer(to string) *EventBuilder { b.actions.TransferToAgent = to; return b }

// Error turns the event into an error event.
func (b *EventBuilder) Error(code, message string) *EventBuilder {
	b.kind = core.EventError
	b.errDetail = &core.ErrorDetail{Code: code, Message: message}
	return b
}

// Build constructs the event.
func (b *EventBuilder) Build() core.Event {
	src := core.AgentSource(b.author)
	if b.source != nil {
		src = *b.source
	}

	ev := core.NewEvent(b.kind, src)
	if b.id != "" {
		ev.ID = b.id
	}
	ev.Author = b.author
	ev.InvocationID = b.invocationID
	ev.SessionID = b.sessionID
	ev.Branch = b.branch
	ev.Partial = b.partial
	ev.Actions = b.actions
	ev.Error = b.errDetail

	parts := make([]core.Part, 0, len(b.textParts)+len(b.funcCalls)+len(b.funcResponses)+len(b.customParts))
	for _, t := range b.textParts {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.funcCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}
	for _, fr := range b.funcResponses {
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})
	}
	parts = append(parts, b.customParts...)

	if len(parts) > 0 {
		role := b.role
		if role == "" {
			role = core.RoleAssistant
		}
		ev.Content = &core.Content{Role: role, Parts: parts}
	}

	return ev
}
