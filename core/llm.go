package core

import (
	"context"
	"maps"
)

// ToolMode controls whether and how the model may call declared tools.
type ToolMode string

const (
	ToolModeAuto     ToolMode = "auto"
	ToolModeRequired ToolMode = "required"
	ToolModeNone     ToolMode = "none"
)

// ToolDeclaration advertises a callable tool to the model.
// Parameters is a JSON Schema object.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// GenerationConfig holds optional sampling parameters. Zero values mean
// "provider default".
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxOutputTokens int64    `json:"max_output_tokens,omitempty"`
	StopSequences   []string `json:"stop_sequences,omitempty"`
}

// Merge overlays the non-zero fields of o onto a copy of c.
func (c GenerationConfig) Merge(o GenerationConfig) GenerationConfig {
	out := c
	if o.Temperature != nil {
		out.Temperature = o.Temperature
	}
	if o.TopP != nil {
		out.TopP = o.TopP
	}
	if o.MaxOutputTokens > 0 {
		out.MaxOutputTokens = o.MaxOutputTokens
	}
	if len(o.StopSequences) > 0 {
		out.StopSequences = append([]string(nil), o.StopSequences...)
	}
	return out
}

// LLMRequest is the normalized, vendor independent model input.
type LLMRequest struct {
	Model             string            `json:"model,omitempty"`
	Contents          []Content         `json:"contents"`
	SystemInstruction string            `json:"system_instruction,omitempty"`
	Config            GenerationConfig  `json:"config"`
	Tools             []ToolDeclaration `json:"tools,omitempty"`
	ToolMode          ToolMode          `json:"tool_mode,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep enough copy for processors to mutate freely.
func (r *LLMRequest) Clone() *LLMRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Contents = make([]Content, len(r.Contents))
	for i, c := range r.Contents {
		out.Contents[i] = *c.Clone()
	}
	out.Tools = append([]ToolDeclaration(nil), r.Tools...)
	out.Metadata = maps.Clone(r.Metadata)
	return &out
}

// AppendContents appends conversation turns to the request.
func (r *LLMRequest) AppendContents(contents ...Content) {
	r.Contents = append(r.Contents, contents...)
}

// HasTool reports whether a tool with name is declared.
func (r *LLMRequest) HasTool(name string) bool {
	for _, t := range r.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Usage reports token accounting for a model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Candidate is one alternative completion.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// LLMResponse is the normalized model output. A response whose primary
// candidate contains function calls asks the orchestration layer to execute
// them before producing a user-visible answer.
type LLMResponse struct {
	Candidates []Candidate `json:"candidates"`
	Usage      *Usage      `json:"usage,omitempty"`
	Error      string      `json:"error,omitempty"`
	Partial    bool        `json:"partial,omitempty"`
}

// NewTextResponse builds a single-candidate assistant text response.
func NewTextResponse(text string) *LLMResponse {
	return &LLMResponse{Candidates: []Candidate{{
		Content:      *NewTextContent(RoleAssistant, text),
		FinishReason: "stop",
	}}}
}

// NewFunctionCallResponse builds a single-candidate response requesting calls.
func NewFunctionCallResponse(calls ...FunctionCall) *LLMResponse {
	parts := make([]Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, FunctionCallPart{FunctionCall: c})
	}
	return &LLMResponse{Candidates: []Candidate{{
		Content:      Content{Role: RoleAssistant, Parts: parts},
		FinishReason: "tool_calls",
	}}}
}

// Primary returns the first candidate's content, or nil.
func (r *LLMResponse) Primary() *Content {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0].Content
}

// FinishReason returns the first candidate's finish reason.
func (r *LLMResponse) FinishReason() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

// FunctionCalls returns the function calls of the primary candidate.
func (r *LLMResponse) FunctionCalls() []FunctionCall {
	return r.Primary().FunctionCalls()
}

// Clone returns a copy that does not share candidate content slices.
func (r *LLMResponse) Clone() *LLMResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Candidates = make([]Candidate, len(r.Candidates))
	for i, c := range r.Candidates {
		out.Candidates[i] = Candidate{Content: *c.Content.Clone(), FinishReason: c.FinishReason}
	}
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	return &out
}

// LLM is a model client resolved by name through an LLMRegistry.
type LLM interface {
	Name() string
	Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
	// GenerateStream emits partial responses followed by one final, non-partial
	// response. Both channels are closed when generation ends.
	GenerateStream(ctx context.Context, req *LLMRequest) (<-chan *LLMResponse, <-chan error)
	CountTokens(ctx context.Context, req *LLMRequest) (int, error)
}

// LLMRegistry resolves model clients by name.
type LLMRegistry interface {
	Get(name string) (LLM, error)
}
