package core

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data map[string]any `json:"data"`
}

func (DataPart) isPart() {}

// FilePart is a file attachment segment.
type FilePart struct {
	File FilePartFile `json:"file"`
}

func (FilePart) isPart() {}

// FilePartFile references a file either inline (base64 Bytes) or by URI.
type FilePartFile struct {
	Bytes    string `json:"bytes,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Name     string `json:"name,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Correlates the call with its response
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument object
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall `json:"function_call"`
}

func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse `json:"function_response"`
}

func (FunctionResponsePart) isPart() {}

// ExecutableCodePart carries code emitted by a model for a code executor.
type ExecutableCodePart struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (ExecutableCodePart) isPart() {}

// CodeResultPart carries the outcome of executing an ExecutableCodePart.
type CodeResultPart struct {
	Outcome CodeOutcome `json:"outcome"`
	Output  string      `json:"output,omitempty"`
}

func (CodeResultPart) isPart() {}

// CodeOutcome classifies a code execution result.
type CodeOutcome string

const (
	CodeOutcomeOK     CodeOutcome = "ok"
	CodeOutcomeFailed CodeOutcome = "failed"
)

// Content roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// NewTextContent builds a single text part content for role.
func NewTextContent(role, text string) *Content {
	return &Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// FunctionCalls returns the function call parts in order.
func (c *Content) FunctionCalls() []FunctionCall {
	if c == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns the function response parts in order.
func (c *Content) FunctionResponses() []FunctionResponse {
	if c == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range c.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// Clone returns a copy with its own parts slice. Part values are immutable
// structs, so a shallow copy of the slice is sufficient.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	parts := make([]Part, len(c.Parts))
	copy(parts, c.Parts)
	return &Content{Role: c.Role, Parts: parts}
}

// MarshalJSON encodes parts with a "type" discriminator.
func (c Content) MarshalJSON() ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(c.Parts))
	for _, p := range c.Parts {
		raw, err := marshalPart(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, raw)
	}
	return json.Marshal(struct {
		Role  string            `json:"role,omitempty"`
		Parts []json.RawMessage `json:"parts"`
	}{Role: c.Role, Parts: parts})
}

// UnmarshalJSON decodes the discriminated part list produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("content: invalid json")
	}

	doc := gjson.ParseBytes(data)
	c.Role = doc.Get("role").String()
	c.Parts = nil

	var err error
	doc.Get("parts").ForEach(func(_, value gjson.Result) bool {
		var p Part
		p, err = unmarshalPart(value)
		if err != nil {
			return false
		}
		c.Parts = append(c.Parts, p)
		return true
	})

	return err
}

func marshalPart(p Part) ([]byte, error) {
	var typ string
	switch p.(type) {
	case TextPart:
		typ = "text"
	case DataPart:
		typ = "data"
	case FilePart:
		typ = "file"
	case FunctionCallPart:
		typ = "function_call"
	case FunctionResponsePart:
		typ = "function_response"
	case ExecutableCodePart:
		typ = "executable_code"
	case CodeResultPart:
		typ = "code_result"
	default:
		return nil, fmt.Errorf("content: unsupported part %T", p)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	// splice the discriminator into the part object
	if string(body) == "{}" {
		return []byte(fmt.Sprintf(`{"type":%q}`, typ)), nil
	}
	return append([]byte(fmt.Sprintf(`{"type":%q,`, typ)), body[1:]...), nil
}

func unmarshalPart(v gjson.Result) (Part, error) {
	switch typ := v.Get("type").String(); typ {
	case "text":
		return TextPart{Text: v.Get("text").String()}, nil
	case "data":
		var p DataPart
		err := json.Unmarshal([]byte(v.Raw), &p)
		return p, err
	case "file":
		var p FilePart
		err := json.Unmarshal([]byte(v.Raw), &p)
		return p, err
	case "function_call":
		var p FunctionCallPart
		err := json.Unmarshal([]byte(v.Raw), &p)
		return p, err
	case "function_response":
		var p FunctionResponsePart
		err := json.Unmarshal([]byte(v.Raw), &p)
		return p, err
	case "executable_code":
		return ExecutableCodePart{Language: v.Get("language").String(), Code: v.Get("code").String()}, nil
	case "code_result":
		return CodeResultPart{Outcome: CodeOutcome(v.Get("outcome").String()), Output: v.Get("output").String()}, nil
	default:
		return nil, fmt.Errorf("content: unknown part type %q", typ)
	}
}
