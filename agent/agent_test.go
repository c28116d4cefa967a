package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/model"
	"github.com/hupe1980/flowmesh/tool"
)

func newRun(t *testing.T, agent core.Agent, models map[string]core.LLM) *core.InvocationContext {
	t.Helper()

	reg := model.NewRegistry()
	for name, m := range models {
		reg.Register(name, m)
	}

	ic := core.NewInvocationContext(
		context.Background(),
		core.NewSession("sess"),
		agent,
		core.RunConfig{DefaultModel: "default"},
		core.Services{Models: reg},
		logging.NoOpLogger{},
	)

	_, err := ic.AppendEvent(core.NewUserMessageEvent("What is 15+25?"))
	require.NoError(t, err)

	return ic
}

func calculatorTools() *tool.Toolset {
	add := tool.NewFunctionTool("add", "Add two numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a", "b"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return fmt.Sprintf("%g", args["a"].(float64)+args["b"].(float64)), nil
	})
	return tool.MustToolset(add)
}

func kindsOf(events []core.Event) []core.EventKind {
	out := make([]core.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func transferCall(target string) *core.LLMResponse {
	return core.NewFunctionCallResponse(core.FunctionCall{
		ID:        "t1",
		Name:      tool.TransferToAgentName,
		Arguments: fmt.Sprintf(`{"agent_name":%q}`, target),
	})
}

func TestLLMAgent_CalculatorScenario(t *testing.T) {
	llm := model.NewScriptedModel("scripted",
		core.NewFunctionCallResponse(core.FunctionCall{ID: "c1", Name: "add", Arguments: `{"a":15,"b":25}`}),
		core.NewTextResponse("The answer is 40."),
	)
	calc := NewLLMAgent("calculator", func(o *LLMAgentOptions) {
		o.Instruction = NewInstructionFromText("Use the add tool for arithmetic.")
		o.Toolset = calculatorTools()
	})
	ic := newRun(t, calc, map[string]core.LLM{"default": llm})

	res := calc.Run(ic)

	assert.Equal(t, []core.EventKind{
		core.EventTurnStart,
		core.EventModelRequest,
		core.EventModelResponse,
		core.EventToolResult,
		core.EventModelRequest,
		core.EventModelResponse,
		core.EventTurnEnd,
	}, kindsOf(res.Events))

	assert.Equal(t, "add", res.Events[2].FunctionCalls()[0].Name)
	assert.Equal(t, "40", res.Events[3].FunctionResponses()[0].Response)
	assert.Contains(t, res.Final.Text(), "40")
	assert.Equal(t, "single", calc.Flow().Name())

	for _, ev := range res.Events {
		assert.Equal(t, ic.InvocationID, ev.InvocationID)
		assert.Equal(t, "sess", ev.SessionID)
	}
}

func TestLLMAgent_TransferToSibling(t *testing.T) {
	support := NewLLMAgent("support", func(o *LLMAgentOptions) { o.Model = "support-model" })
	billing := NewLLMAgent("billing", func(o *LLMAgentOptions) { o.Description = "Handles invoices" })
	root := NewLLMAgent("root")
	require.NoError(t, root.SetSubAgents(support, billing))

	llm := model.NewScriptedModel("s", transferCall("billing"))
	ic := newRun(t, root, map[string]core.LLM{"support-model": llm})

	res := support.Run(ic)

	require.Equal(t, core.EventAgentTransfer, res.Final.Kind)
	assert.Equal(t, "billing", res.Final.TransferTarget())
	assert.Equal(t, "support", res.Final.Author)

	// The model was offered the siblings and the parent.
	req := llm.Requests()[0]
	require.True(t, req.HasTool(tool.TransferToAgentName))
	assert.Contains(t, req.SystemInstruction, "billing: Handles invoices")
	assert.Contains(t, req.SystemInstruction, "- root:")
	assert.Equal(t, "multi", support.Flow().Name())
}

func TestBaseAgent_TransferResolution(t *testing.T) {
	support := NewLLMAgent("support")
	billing := NewLLMAgent("billing")
	root := NewLLMAgent("root")
	require.NoError(t, root.SetSubAgents(support, billing))

	ic := newRun(t, root, nil)
	ic = ic.WithAgent(support)

	outcome, err := ic.AppendEvent(core.NewToolResultEvent("support", nil))
	require.NoError(t, err)

	self := outcome
	self.Actions.TransferToAgent = "support"
	assert.Equal(t, self, support.resolveTransfer(ic, self), "transfer to self is a no-op")

	missing := outcome
	missing.Actions.TransferToAgent = "ghost"
	got := support.resolveTransfer(ic, missing)
	require.True(t, got.IsError())
	assert.Equal(t, core.ErrCodeTransfer, got.Error.Code)

	sibling := outcome
	sibling.Actions.TransferToAgent = "billing"
	got = support.resolveTransfer(ic, sibling)
	assert.Equal(t, core.EventAgentTransfer, got.Kind)
	assert.Equal(t, "billing", got.TransferTarget())
}

func TestLLMAgent_OutputKeyRecordedOnTurnEnd(t *testing.T) {
	llm := model.NewScriptedModel("s", core.NewTextResponse("Paris"))
	a := NewLLMAgent("geo", func(o *LLMAgentOptions) { o.OutputKey = "capital" })
	ic := newRun(t, a, map[string]core.LLM{"default": llm})

	res := a.Run(ic)

	end := res.Events[len(res.Events)-1]
	require.Equal(t, core.EventTurnEnd, end.Kind)
	assert.Equal(t, "Paris", end.Actions.StateDelta["capital"])

	v, ok := ic.Session.GetState("capital")
	require.True(t, ok)
	assert.Equal(t, "Paris", v)
}

func TestLLMAgent_AgentCallbacks(t *testing.T) {
	t.Run("before short-circuits", func(t *testing.T) {
		llm := model.NewScriptedModel("s")
		a := NewLLMAgent("a", func(o *LLMAgentOptions) {
			o.BeforeAgent = []BeforeAgentCallback{func(*core.InvocationContext) (*core.Event, error) {
				ev := core.NewMessageEvent("a", core.NewTextContent(core.RoleAssistant, "closed today"))
				return &ev, nil
			}}
		})
		ic := newRun(t, a, map[string]core.LLM{"default": llm})

		res := a.Run(ic)

		assert.Equal(t, "closed today", res.Final.Text())
		assert.Equal(t, 0, llm.Calls())
		assert.Equal(t, []core.EventKind{core.EventTurnStart, core.EventMessage, core.EventTurnEnd}, kindsOf(res.Events))
	})

	t.Run("after replaces final", func(t *testing.T) {
		llm := model.NewScriptedModel("s", core.NewTextResponse("draft"))
		a := NewLLMAgent("a", func(o *LLMAgentOptions) {
			o.AfterAgent = []AfterAgentCallback{func(_ *core.InvocationContext, final core.Event) (*core.Event, error) {
				ev := core.NewMessageEvent("a", core.NewTextContent(core.RoleAssistant, strings.ToUpper(final.Text())))
				return &ev, nil
			}}
		})
		ic := newRun(t, a, map[string]core.LLM{"default": llm})

		assert.Equal(t, "DRAFT", a.Run(ic).Final.Text())
	})

	t.Run("callback error becomes event", func(t *testing.T) {
		a := NewLLMAgent("a", func(o *LLMAgentOptions) {
			o.BeforeAgent = []BeforeAgentCallback{func(*core.InvocationContext) (*core.Event, error) {
				return nil, errors.New("quota exceeded")
			}}
		})
		ic := newRun(t, a, nil)

		final := a.Run(ic).Final
		require.True(t, final.IsError())
		assert.Equal(t, core.ErrCodeCallback, final.Error.Code)
	})
}

func TestLLMAgent_MissingModelIsConfigurationError(t *testing.T) {
	a := NewLLMAgent("a")
	ic := newRun(t, a, nil)

	res := a.Run(ic)

	require.True(t, res.Final.IsError())
	assert.Equal(t, core.ErrCodeConfiguration, res.Final.Error.Code)
	assert.Equal(t, core.EventTurnEnd, res.Events[len(res.Events)-1].Kind)
}

func TestSequentialAgent_SharesHistoryAndState(t *testing.T) {
	researcher := NewLLMAgent("researcher", func(o *LLMAgentOptions) {
		o.Model = "m1"
		o.OutputKey = "facts"
		o.AllowTransfer = false
	})
	writer := NewLLMAgent("writer", func(o *LLMAgentOptions) {
		o.Model = "m2"
		o.Instruction = NewInstructionFromText("Write using: {{.facts}}")
		o.AllowTransfer = false
	})
	seq, err := NewSequentialAgent("pipeline", researcher, writer)
	require.NoError(t, err)

	m1 := model.NewScriptedModel("m1", core.NewTextResponse("15+25=40"))
	m2 := model.NewScriptedModel("m2", core.NewTextResponse("The sum is 40."))
	ic := newRun(t, seq, map[string]core.LLM{"m1": m1, "m2": m2})

	res := seq.Run(ic)

	assert.Equal(t, "The sum is 40.", res.Final.Text())
	assert.Equal(t, "Write using: 15+25=40", m2.Requests()[0].SystemInstruction)

	history := m2.Requests()[0].Contents
	require.Len(t, history, 2)
	assert.Contains(t, history[1].Text(), "[researcher] said: 15+25=40")

	assert.Equal(t, core.EventTurnStart, res.Events[0].Kind)
	assert.Equal(t, "pipeline", res.Events[0].Author)
}

func TestSequentialAgent_StopsOnError(t *testing.T) {
	first := NewLLMAgent("first", func(o *LLMAgentOptions) { o.Model = "broken"; o.AllowTransfer = false })
	second := NewLLMAgent("second", func(o *LLMAgentOptions) { o.AllowTransfer = false })
	seq, err := NewSequentialAgent("pipeline", first, second)
	require.NoError(t, err)

	llm := model.NewScriptedModel("s", core.NewTextResponse("unused"))
	ic := newRun(t, seq, map[string]core.LLM{"default": llm})

	res := seq.Run(ic)

	require.True(t, res.Final.IsError())
	assert.Equal(t, 0, llm.Calls())
}

func TestLoopAgent_StopsOnEscalation(t *testing.T) {
	llm := model.NewScriptedModel("s",
		core.NewTextResponse("draft 1"),
		core.NewFunctionCallResponse(core.FunctionCall{ID: "x", Name: tool.ExitLoopName, Arguments: `{}`}),
	)
	worker := NewLLMAgent("worker", func(o *LLMAgentOptions) {
		o.Toolset = tool.MustToolset(tool.NewExitLoopTool())
		o.AllowTransfer = false
	})
	loop, err := NewLoopAgent("refine", []core.Agent{worker}, WithMaxIters(5))
	require.NoError(t, err)

	ic := newRun(t, loop, map[string]core.LLM{"default": llm})
	res := loop.Run(ic)

	assert.Equal(t, 2, llm.Calls())
	assert.Equal(t, core.EventToolResult, res.Final.Kind)
	assert.False(t, res.Final.Actions.Escalate, "escalation is consumed by the loop")
}

func TestLoopAgent_PredicateAndLimit(t *testing.T) {
	llm := model.NewScriptedModel("s").Repeat(core.NewTextResponse("still working"))
	worker := NewLLMAgent("worker", func(o *LLMAgentOptions) { o.AllowTransfer = false })
	loop, err := NewLoopAgent("poll", []core.Agent{worker}, WithMaxIters(3))
	require.NoError(t, err)

	ic := newRun(t, loop, map[string]core.LLM{"default": llm})
	loop.Run(ic)
	assert.Equal(t, 3, llm.Calls())

	done := model.NewScriptedModel("s", core.NewTextResponse("working"), core.NewTextResponse("COMPLETE"))
	worker2 := NewLLMAgent("worker", func(o *LLMAgentOptions) { o.AllowTransfer = false })
	loop2, err := NewLoopAgent("poll", []core.Agent{worker2}, WithMaxIters(10), WithPredicate(func(s string) bool {
		return strings.Contains(s, "COMPLETE")
	}))
	require.NoError(t, err)

	ic = newRun(t, loop2, map[string]core.LLM{"default": done})
	assert.Equal(t, "COMPLETE", loop2.Run(ic).Final.Text())
	assert.Equal(t, 2, done.Calls())
}

func TestBaseAgent_Hierarchy(t *testing.T) {
	leaf := NewLLMAgent("leaf")
	mid := NewLLMAgent("mid")
	root := NewLLMAgent("root")
	require.NoError(t, mid.SetSubAgents(leaf))
	require.NoError(t, root.SetSubAgents(mid))

	assert.Same(t, leaf, root.FindAgent("leaf"))
	assert.Same(t, root, root.FindAgent("root"))
	assert.Nil(t, root.FindAgent("ghost"))
	assert.Same(t, root, leaf.Root())
	assert.Same(t, mid, leaf.Parent())

	other := NewLLMAgent("other")
	err := other.SetSubAgents(leaf)
	assert.ErrorContains(t, err, "already has parent")

	err = other.SetSubAgents(NewLLMAgent("x"), NewLLMAgent("x"))
	assert.ErrorContains(t, err, "duplicate sub-agent")
}
