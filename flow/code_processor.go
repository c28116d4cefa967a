package flow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/flowmesh/core"
)

const codeExecutionInstruction = "When a computation would help, write the program in a fenced ```python code block. " +
	"It will be executed and its output returned to you."

var executableLanguages = map[string]string{
	"python": "python",
	"py":     "python",
	"bash":   "bash",
	"sh":     "sh",
}

var codeBlockRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\n(.*?)```")

// CodeExecutionRequestProcessor advertises the code executor to the model
// and rewrites code parts in the history as plain text so every model
// adapter can consume them.
type CodeExecutionRequestProcessor struct{}

// NewCodeExecutionRequestProcessor creates a CodeExecutionRequestProcessor.
func NewCodeExecutionRequestProcessor() *CodeExecutionRequestProcessor {
	return &CodeExecutionRequestProcessor{}
}

// Name implements RequestProcessor.
func (p *CodeExecutionRequestProcessor) Name() string { return "code_execution_request" }

// ProcessRequest implements RequestProcessor.
func (p *CodeExecutionRequestProcessor) ProcessRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error) {
	if ic.Services.CodeExecutor == nil {
		return nil, nil
	}

	req.SystemInstruction = joinInstruction(req.SystemInstruction, codeExecutionInstruction)

	for i, c := range req.Contents {
		req.Contents[i] = codeAsText(c)
	}

	return nil, nil
}

func codeAsText(c core.Content) core.Content {
	out := core.Content{Role: c.Role, Parts: make([]core.Part, 0, len(c.Parts))}
	converted := false

	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.ExecutableCodePart:
			out.Parts = append(out.Parts, core.TextPart{Text: fmt.Sprintf("```%s\n%s\n```", part.Language, part.Code)})
			converted = true
		case core.CodeResultPart:
			out.Parts = append(out.Parts, core.TextPart{Text: codeResultText(part)})
			converted = true
		default:
			out.Parts = append(out.Parts, p)
		}
	}

	if converted && c.Role == core.RoleTool && len(out.FunctionResponses()) == 0 {
		out.Role = core.RoleUser
	}

	return out
}

func codeResultText(r core.CodeResultPart) string {
	if r.Outcome == core.CodeOutcomeFailed {
		return "Code execution failed:\n" + r.Output
	}
	return "Code execution result:\n" + r.Output
}

// CodeExecutionProcessor runs fenced code blocks from a text response
// through the configured code executor and reports the output the same way
// the tool processor reports tool results for mode.
type CodeExecutionProcessor struct {
	mode Mode
}

var _ ResponseProcessor = (*CodeExecutionProcessor)(nil)

// NewCodeExecutionProcessor creates the processor for mode.
func NewCodeExecutionProcessor(mode Mode) *CodeExecutionProcessor {
	return &CodeExecutionProcessor{mode: mode}
}

// Name implements ResponseProcessor.
func (p *CodeExecutionProcessor) Name() string { return "code_execution" }

// ProcessResponse implements ResponseProcessor.
func (p *CodeExecutionProcessor) ProcessResponse(ic *core.InvocationContext, req *core.LLMRequest, resp *core.LLMResponse) (Outcome, error) {
	executor := ic.Services.CodeExecutor
	if executor == nil || len(resp.FunctionCalls()) > 0 {
		return Continue(resp), nil
	}

	blocks := freshCode(ic, ExtractCode(resp.Primary()))
	if len(blocks) == 0 {
		return Continue(resp), nil
	}

	results := make([]core.Part, 0, len(blocks))
	for _, b := range blocks {
		res, err := executor.Execute(ic.Context, b.Language, b.Code)

		part := core.CodeResultPart{Outcome: core.CodeOutcomeOK, Output: res.Stdout}
		switch {
		case err != nil:
			part = core.CodeResultPart{Outcome: core.CodeOutcomeFailed, Output: err.Error()}
		case !res.OK():
			part = core.CodeResultPart{Outcome: core.CodeOutcomeFailed, Output: strings.TrimSpace(res.Stderr + "\n" + res.Error)}
		}

		ic.LogInfo("flow.code.executed", "agent", ic.AgentName(), "language", b.Language, "outcome", string(part.Outcome))
		results = append(results, part)
	}

	ev := core.NewEvent(core.EventToolResult, core.Source{Kind: core.SourceTool, Name: "code_executor"})
	ev.Content = &core.Content{Role: core.RoleTool, Parts: results}

	if p.mode == ModeToolResult {
		return ToolResult(ev), nil
	}

	next := req.Clone()
	next.AppendContents(*resp.Primary().Clone(), codeAsText(*ev.Content))

	return Rerun(next, ev), nil
}

// freshCode drops blocks the agent already produced in an earlier model
// response of this invocation. The response being processed is in the log
// already, so a block counts as seen once it appears in two responses.
func freshCode(ic *core.InvocationContext, blocks []core.ExecutableCodePart) []core.ExecutableCodePart {
	if len(blocks) == 0 {
		return nil
	}

	seen := map[core.ExecutableCodePart]int{}
	for _, ev := range ic.Events() {
		if ev.Kind != core.EventModelResponse || ev.InvocationID != ic.InvocationID || ev.Author != ic.AgentName() {
			continue
		}
		inEvent := map[core.ExecutableCodePart]bool{}
		for _, b := range ExtractCode(ev.Content) {
			if !inEvent[b] {
				inEvent[b] = true
				seen[b]++
			}
		}
	}

	var out []core.ExecutableCodePart
	for _, b := range blocks {
		if seen[b] > 1 {
			ic.LogDebug("flow.code.skipped", "agent", ic.AgentName(), "language", b.Language)
			continue
		}
		out = append(out, b)
	}
	return out
}

// ExtractCode returns the executable code carried by c, either as
// ExecutableCodePart values or as fenced python or shell blocks in its text.
func ExtractCode(c *core.Content) []core.ExecutableCodePart {
	if c == nil {
		return nil
	}

	var blocks []core.ExecutableCodePart
	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.ExecutableCodePart:
			blocks = append(blocks, part)
		case core.TextPart:
			for _, m := range codeBlockRe.FindAllStringSubmatch(part.Text, -1) {
				lang, ok := executableLanguages[strings.ToLower(m[1])]
				if !ok {
					continue
				}
				if code := strings.TrimSpace(m[2]); code != "" {
					blocks = append(blocks, core.ExecutableCodePart{Language: lang, Code: code})
				}
			}
		}
	}
	return blocks
}
