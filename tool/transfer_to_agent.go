package tool

import (
	"fmt"
	"slices"

	"github.com/hupe1980/flowmesh/core"
)

// TransferToAgentName is the reserved name of the transfer tool.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests orchestration transfer to a named agent.
type transferToAgentTool struct {
	targets []string
}

// NewTransferToAgentTool constructs the transfer tool. When targets are
// given the schema restricts agent_name to them.
func NewTransferToAgentTool(targets ...string) Tool {
	return &transferToAgentTool{targets: targets}
}

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	return "Transfer the conversation to another agent by name. Use when another agent is better suited to answer."
}

func (t *transferToAgentTool) Parameters() map[string]any {
	agentName := map[string]any{"type": "string", "description": "Target agent name"}
	if len(t.targets) > 0 {
		agentName["enum"] = append([]string(nil), t.targets...)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": agentName,
		},
		"required": []string{"agent_name"},
	}
}

func (t *transferToAgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	name, _ := args["agent_name"].(string)
	if name == "" {
		return nil, NewToolError(TransferToAgentName, "field 'agent_name' must be a non-empty string", CodeValidation)
	}
	if len(t.targets) > 0 && !slices.Contains(t.targets, name) {
		return nil, NewToolError(TransferToAgentName, fmt.Sprintf("unknown agent %q", name), CodeValidation)
	}

	tc.TransferToAgent(name)

	return map[string]any{"transferred": true, "agent_name": name}, nil
}

// exitLoopTool lets a model end an enclosing loop agent.
type exitLoopTool struct{}

// ExitLoopName is the reserved name of the exit loop tool.
const ExitLoopName = "exit_loop"

// NewExitLoopTool constructs a tool that escalates, ending a loop agent's
// iterations after the current turn.
func NewExitLoopTool() Tool { return exitLoopTool{} }

func (exitLoopTool) Name() string { return ExitLoopName }

func (exitLoopTool) Description() string {
	return "Call this only when the task is complete and no further iterations are needed."
}

func (exitLoopTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (exitLoopTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.Escalate()
	tc.SkipSummarization()
	return map[string]any{"exited": true}, nil
}
