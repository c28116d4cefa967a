package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
)

func TestBuildMessages_ToolResultsInUserTurn(t *testing.T) {
	contents := []core.Content{
		*core.NewTextContent(core.RoleSystem, "ignored here"),
		*core.NewTextContent(core.RoleUser, "What is 15+25?"),
		*core.NewFunctionCallResponse(core.FunctionCall{ID: "c1", Name: "add", Arguments: `{"a":15,"b":25}`}).Primary(),
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "add", Response: "40"}}}},
	}

	msgs := buildMessages(contents)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestSystemBlocks(t *testing.T) {
	req := &core.LLMRequest{
		SystemInstruction: "be terse",
		Contents:          []core.Content{*core.NewTextContent(core.RoleSystem, "extra")},
	}
	blocks := systemBlocks(req)
	require.Len(t, blocks, 2)
	assert.Equal(t, "be terse", blocks[0].Text)
	assert.Equal(t, "extra", blocks[1].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]core.ToolDeclaration{{
		Name:        "add",
		Description: "Add numbers",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "number"}},
			"required":   []any{"a"},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "add", tools[0].OfTool.Name)
	assert.Equal(t, []string{"a"}, tools[0].OfTool.InputSchema.Required)
}

func TestFinishReason(t *testing.T) {
	assert.Equal(t, "stop", finishReason("end_turn"))
	assert.Equal(t, "tool_calls", finishReason("tool_use"))
	assert.Equal(t, "length", finishReason("max_tokens"))
	assert.Equal(t, "refusal", finishReason("refusal"))
}
