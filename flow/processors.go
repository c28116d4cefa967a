package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/util"
	"github.com/hupe1980/flowmesh/tool"
)

// InstructionsProcessor renders the agent's instruction as a text/template
// over the session state and sets it as the system instruction.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates an InstructionsProcessor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name implements RequestProcessor.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest implements RequestProcessor.
func (p *InstructionsProcessor) ProcessRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error) {
	fa, ok := flowAgent(ic)
	if !ok {
		return nil, nil
	}

	raw, err := fa.ResolveInstruction(ic)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	rendered, err := util.RenderTemplate(raw, ic.State())
	if err != nil {
		return nil, err
	}

	req.SystemInstruction = joinInstruction(rendered, req.SystemInstruction)

	return nil, nil
}

// AgentTransferProcessor tells the model which agents it may hand the
// conversation to and how.
type AgentTransferProcessor struct{}

// NewAgentTransferProcessor creates an AgentTransferProcessor.
func NewAgentTransferProcessor() *AgentTransferProcessor { return &AgentTransferProcessor{} }

// Name implements RequestProcessor.
func (p *AgentTransferProcessor) Name() string { return "agent_transfer" }

// ProcessRequest implements RequestProcessor.
func (p *AgentTransferProcessor) ProcessRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error) {
	fa, ok := flowAgent(ic)
	if !ok {
		return nil, nil
	}

	targets := fa.TransferTargets()
	if len(targets) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the agent %q.\n", fa.Name())
	b.WriteString("You can hand the conversation to one of the following agents when it is better suited to answer:\n")
	for _, t := range targets {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}
	fmt.Fprintf(&b, "To hand over, call the %s function with the target's name as agent_name. Otherwise answer yourself.", tool.TransferToAgentName)

	req.SystemInstruction = joinInstruction(req.SystemInstruction, b.String())

	return nil, nil
}

// ContentsProcessor rebuilds the conversation history from the session log.
// Only events on the invocation's branch or its ancestors are included;
// turns by other agents are rendered as user context so the model does not
// mistake them for its own.
type ContentsProcessor struct{}

// NewContentsProcessor creates a ContentsProcessor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name implements RequestProcessor.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest implements RequestProcessor.
func (p *ContentsProcessor) ProcessRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error) {
	if ic.Session == nil {
		return nil, nil
	}

	agent := ic.AgentName()

	var history []core.Content
	for _, ev := range ic.Session.GetEvents() {
		if !includeInHistory(ic, ev) {
			continue
		}
		if ev.IsFromUser() || ev.Author == "" || ev.Author == agent {
			history = append(history, *ev.Content.Clone())
			continue
		}
		if c := foreignContent(ev); c != nil {
			history = append(history, *c)
		}
	}

	limit := 0
	if fa, ok := flowAgent(ic); ok {
		limit = fa.MaxHistory()
	}
	history = window(history, limit)

	req.AppendContents(history...)

	return nil, nil
}

func includeInHistory(ic *core.InvocationContext, ev core.Event) bool {
	if ev.Partial || ev.Content == nil || len(ev.Content.Parts) == 0 {
		return false
	}
	switch ev.Kind {
	case core.EventMessage, core.EventToolResult:
	case core.EventModelResponse:
		if ev.Error != nil {
			return false
		}
	default:
		return false
	}
	return onBranch(ic.Branch, ev.Branch)
}

// onBranch reports whether an event recorded on branch is visible from
// current: the same branch, an ancestor, or the root.
func onBranch(current, branch string) bool {
	return branch == "" || current == branch || strings.HasPrefix(current, branch+".")
}

func foreignContent(ev core.Event) *core.Content {
	parts := []core.Part{core.TextPart{Text: "For context:"}}

	for _, p := range ev.Content.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if strings.TrimSpace(part.Text) == "" {
				continue
			}
			parts = append(parts, core.TextPart{Text: fmt.Sprintf(" [%s] said: %s", ev.Author, part.Text)})
		case core.FunctionCallPart:
			parts = append(parts, core.TextPart{Text: fmt.Sprintf(" [%s] called tool `%s` with parameters: %s",
				ev.Author, part.FunctionCall.Name, part.FunctionCall.Arguments)})
		case core.FunctionResponsePart:
			parts = append(parts, core.TextPart{Text: fmt.Sprintf(" [%s] `%s` tool returned result: %s",
				ev.Author, part.FunctionResponse.Name, stringify(part.FunctionResponse))})
		}
	}

	if len(parts) == 1 {
		return nil
	}
	return &core.Content{Role: core.RoleUser, Parts: parts}
}

func stringify(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return "error: " + fr.Error
	}
	if s, ok := fr.Response.(string); ok {
		return s
	}
	b, err := json.Marshal(fr.Response)
	if err != nil {
		return fmt.Sprintf("%v", fr.Response)
	}
	return string(b)
}

// window keeps the last limit contents and never starts with an orphaned
// tool result.
func window(contents []core.Content, limit int) []core.Content {
	if limit <= 0 || len(contents) <= limit {
		return contents
	}
	contents = contents[len(contents)-limit:]
	for len(contents) > 0 && contents[0].Role == core.RoleTool {
		contents = contents[1:]
	}
	return contents
}

// ToolDeclarationProcessor advertises the active toolset to the model. A
// constructor-supplied toolset takes priority over the agent's.
type ToolDeclarationProcessor struct {
	toolset *tool.Toolset
}

// NewToolDeclarationProcessor creates a ToolDeclarationProcessor.
func NewToolDeclarationProcessor(toolset *tool.Toolset) *ToolDeclarationProcessor {
	return &ToolDeclarationProcessor{toolset: toolset}
}

// Name implements RequestProcessor.
func (p *ToolDeclarationProcessor) Name() string { return "tool_declarations" }

// ProcessRequest implements RequestProcessor.
func (p *ToolDeclarationProcessor) ProcessRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error) {
	ts := p.toolset
	if ts == nil {
		if fa, ok := flowAgent(ic); ok {
			ts = fa.Toolset()
		}
	}
	if ts.Len() == 0 {
		return nil, nil
	}

	for _, d := range ts.Declarations() {
		if !req.HasTool(d.Name) {
			req.Tools = append(req.Tools, d)
		}
	}
	if req.ToolMode == "" {
		req.ToolMode = core.ToolModeAuto
	}

	return nil, nil
}

func joinInstruction(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}
