package core

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of event categories recorded in a session log.
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventTurnStart     EventKind = "turn_start"
	EventTurnEnd       EventKind = "turn_end"
	EventModelRequest  EventKind = "model_request"
	EventModelResponse EventKind = "model_response"
	EventToolResult    EventKind = "tool_result"
	EventError         EventKind = "error"
	EventAgentTransfer EventKind = "agent_transfer"
	EventCustom        EventKind = "custom"
)

// SourceKind identifies who produced an event.
type SourceKind string

const (
	SourceUser   SourceKind = "user"
	SourceAgent  SourceKind = "agent"
	SourceTool   SourceKind = "tool"
	SourceModel  SourceKind = "model"
	SourceSystem SourceKind = "system"
)

// Source describes the producer of an event.
type Source struct {
	Kind SourceKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

// Error codes carried by EventError events.
const (
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeModel           = "MODEL_ERROR"
	ErrCodeProcessor       = "PROCESSOR_ERROR"
	ErrCodeMaxInteractions = "MAX_INTERACTIONS"
	ErrCodeTransfer        = "TRANSFER_ERROR"
	ErrCodeSession         = "SESSION_ERROR"
	ErrCodeCallback        = "CALLBACK_ERROR"
)

// TerminationMaxInteractions marks a turn that stopped because its
// interaction budget ran out while tools were still being resolved.
const TerminationMaxInteractions = "max_interactions"

// ErrorDetail describes a failure captured as data.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventActions encodes side‑effects or orchestration signals attached to an Event.
type EventActions struct {
	StateDelta        map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta     map[string]int `json:"artifact_delta,omitempty"`
	TransferToAgent   string         `json:"transfer_to_agent,omitempty"`
	Escalate          bool           `json:"escalate,omitempty"`
	SkipSummarization bool           `json:"skip_summarization,omitempty"`
}

// IsZero reports whether no action is set.
func (a EventActions) IsZero() bool {
	return len(a.StateDelta) == 0 && len(a.ArtifactDelta) == 0 &&
		a.TransferToAgent == "" && !a.Escalate && !a.SkipSummarization
}

// Merge folds o into a copy of a; later values win.
func (a EventActions) Merge(o EventActions) EventActions {
	out := a
	if len(o.StateDelta) > 0 {
		out.StateDelta = maps.Clone(a.StateDelta)
		if out.StateDelta == nil {
			out.StateDelta = map[string]any{}
		}
		maps.Copy(out.StateDelta, o.StateDelta)
	}
	if len(o.ArtifactDelta) > 0 {
		out.ArtifactDelta = maps.Clone(a.ArtifactDelta)
		if out.ArtifactDelta == nil {
			out.ArtifactDelta = map[string]int{}
		}
		maps.Copy(out.ArtifactDelta, o.ArtifactDelta)
	}
	if o.TransferToAgent != "" {
		out.TransferToAgent = o.TransferToAgent
	}
	out.Escalate = a.Escalate || o.Escalate
	out.SkipSummarization = a.SkipSummarization || o.SkipSummarization
	return out
}

// Event is one immutable record in a session's append-only log. Append order
// is causal order. SessionID, InvocationID, Branch and Author are stamped when
// the event is appended through an InvocationContext; a mismatching session
// or invocation id is rejected. Author names the agent (or "user") on whose
// behalf the event was recorded.
type Event struct {
	ID                string            `json:"id"`
	InvocationID      string            `json:"invocation_id,omitempty"`
	SessionID         string            `json:"session_id,omitempty"`
	Kind              EventKind         `json:"kind"`
	Source            Source            `json:"source"`
	Author            string            `json:"author,omitempty"`
	Branch            string            `json:"branch,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	Content           *Content          `json:"content,omitempty"`
	Error             *ErrorDetail      `json:"error,omitempty"`
	Actions           EventActions      `json:"actions"`
	LLMRequest        *LLMRequest       `json:"llm_request,omitempty"`
	LLMResponse       *LLMResponse      `json:"llm_response,omitempty"`
	TerminationReason string            `json:"termination_reason,omitempty"`
	Partial           bool              `json:"partial,omitempty"`
	CustomMetadata    map[string]string `json:"custom_metadata,omitempty"`
}

// NewID generates a new unique identifier for events, invocations and sessions.
func NewID() string { return uuid.NewString() }

// NewEvent creates a bare event of kind produced by src.
func NewEvent(kind EventKind, src Source) Event {
	return Event{
		ID:        NewID(),
		Kind:      kind,
		Source:    src,
		Timestamp: time.Now().UTC(),
	}
}

// AgentSource is shorthand for an agent producer.
func AgentSource(name string) Source { return Source{Kind: SourceAgent, Name: name} }

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(text string) Event {
	return NewUserContentEvent(NewTextContent(RoleUser, text))
}

// NewUserContentEvent creates a user-authored event with arbitrary Content.
func NewUserContentEvent(content *Content) Event {
	e := NewEvent(EventMessage, Source{Kind: SourceUser, Name: "user"})
	e.Author = "user"
	e.Content = content
	return e
}

// NewMessageEvent creates an agent message carrying content.
func NewMessageEvent(agent string, content *Content) Event {
	e := NewEvent(EventMessage, AgentSource(agent))
	e.Content = content
	return e
}

// NewErrorEvent captures a failure as data.
func NewErrorEvent(src Source, code, message string) Event {
	e := NewEvent(EventError, src)
	e.Error = &ErrorDetail{Code: code, Message: message}
	return e
}

// NewModelRequestEvent snapshots an outbound model request.
func NewModelRequestEvent(agent string, req *LLMRequest) Event {
	e := NewEvent(EventModelRequest, AgentSource(agent))
	e.LLMRequest = req.Clone()
	return e
}

// NewModelResponseEvent records a model response; its primary candidate
// becomes the event content.
func NewModelResponseEvent(model string, resp *LLMResponse) Event {
	e := NewEvent(EventModelResponse, Source{Kind: SourceModel, Name: model})
	e.LLMResponse = resp.Clone()
	if c := resp.Primary(); c != nil {
		e.Content = c.Clone()
	}
	e.Partial = resp.Partial
	if resp.Error != "" {
		e.Error = &ErrorDetail{Code: ErrCodeModel, Message: resp.Error}
	}
	return e
}

// NewToolResultEvent aggregates function responses for one model response.
func NewToolResultEvent(agent string, responses []FunctionResponse) Event {
	parts := make([]Part, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, FunctionResponsePart{FunctionResponse: r})
	}
	e := NewEvent(EventToolResult, Source{Kind: SourceTool, Name: agent})
	e.Content = &Content{Role: RoleTool, Parts: parts}
	return e
}

// NewTransferEvent announces a handoff from one agent to another.
func NewTransferEvent(from, to string) Event {
	e := NewEvent(EventAgentTransfer, AgentSource(from))
	e.Actions.TransferToAgent = to
	e.Content = NewTextContent(RoleAssistant, fmt.Sprintf("transferring to agent %s", to))
	return e
}

// IsFromUser reports whether the user authored the event.
func (e Event) IsFromUser() bool { return e.Source.Kind == SourceUser }

// IsError reports whether the event records a failure.
func (e Event) IsError() bool { return e.Kind == EventError || e.Error != nil }

// Text returns the concatenated text parts of the content.
func (e Event) Text() string { return e.Content.Text() }

// FunctionCalls returns any FunctionCall parts in order.
func (e Event) FunctionCalls() []FunctionCall { return e.Content.FunctionCalls() }

// FunctionResponses returns any FunctionResponse parts in order.
func (e Event) FunctionResponses() []FunctionResponse { return e.Content.FunctionResponses() }

// TransferTarget returns the requested transfer target, if any.
func (e Event) TransferTarget() string { return e.Actions.TransferToAgent }

// HasResolvedTools reports whether the event carries at least one function response.
func (e Event) HasResolvedTools() bool { return len(e.FunctionResponses()) > 0 }

// WithTerminationReason returns a copy tagged with reason.
func (e Event) WithTerminationReason(reason string) Event {
	e.TerminationReason = reason
	return e
}

// WithContent returns a copy carrying content.
func (e Event) WithContent(c *Content) Event {
	e.Content = c
	return e
}
