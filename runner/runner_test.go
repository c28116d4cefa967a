package runner

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/agent"
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/model"
	"github.com/hupe1980/flowmesh/session"
	"github.com/hupe1980/flowmesh/tool"
)

func transferCall(target string) *core.LLMResponse {
	return core.NewFunctionCallResponse(core.FunctionCall{
		ID:        "t-" + target,
		Name:      tool.TransferToAgentName,
		Arguments: fmt.Sprintf(`{"agent_name":%q}`, target),
	})
}

func kinds(events []core.Event) []core.EventKind {
	out := make([]core.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestRunner_FollowsTransfer(t *testing.T) {
	rootModel := model.NewScriptedModel("root", transferCall("billing"))
	billingModel := model.NewScriptedModel("billing", core.NewTextResponse("Invoice sent."))

	reg := model.NewRegistry()
	reg.Register("root", rootModel)
	reg.Register("billing", billingModel)

	billing := agent.NewLLMAgent("billing", func(o *agent.LLMAgentOptions) {
		o.Model = "billing"
		o.Description = "Handles invoices"
	})
	root := agent.NewLLMAgent("root", func(o *agent.LLMAgentOptions) { o.Model = "root" })
	require.NoError(t, root.SetSubAgents(billing))

	store := session.NewInMemoryStore()
	r := New(root, func(o *Options) {
		o.SessionStore = store
		o.Models = reg
	})

	res, err := r.RunText(context.Background(), "alice", "s1", "Please send my invoice")
	require.NoError(t, err)

	assert.Equal(t, "billing", res.Agent)
	assert.Equal(t, "Invoice sent.", res.Final.Text())
	assert.Contains(t, kinds(res.Events), core.EventAgentTransfer)
	assert.Equal(t, core.EventMessage, res.Events[0].Kind)
	assert.Equal(t, "user", res.Events[0].Author)

	// Billing sees the user's message and root's handoff as context.
	history := billingModel.Requests()[0].Contents
	require.NotEmpty(t, history)
	assert.Equal(t, "Please send my invoice", history[0].Text())

	stored, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.UserID)
	assert.Len(t, stored.Events, len(res.Events))
	for _, ev := range stored.Events {
		assert.Equal(t, res.InvocationID, ev.InvocationID)
	}
}

func TestRunner_BoundsTransfers(t *testing.T) {
	reg := model.NewRegistry()
	reg.Register("a", model.NewScriptedModel("a").Repeat(transferCall("b")))
	reg.Register("b", model.NewScriptedModel("b").Repeat(transferCall("a")))

	b := agent.NewLLMAgent("b", func(o *agent.LLMAgentOptions) { o.Model = "b" })
	a := agent.NewLLMAgent("a", func(o *agent.LLMAgentOptions) { o.Model = "a" })
	require.NoError(t, a.SetSubAgents(b))

	r := New(a, func(o *Options) {
		o.Models = reg
		o.MaxTransfers = 2
	})

	res, err := r.RunText(context.Background(), "bob", "", "ping")
	require.NoError(t, err)

	require.True(t, res.Final.IsError())
	assert.Equal(t, core.ErrCodeTransfer, res.Final.Error.Code)
	assert.Contains(t, res.Final.Error.Message, "max transfers (2) exceeded")
	assert.NotEmpty(t, res.SessionID)

	transfers := 0
	for _, ev := range res.Events {
		if ev.Kind == core.EventAgentTransfer {
			transfers++
		}
	}
	assert.Equal(t, 3, transfers)
}

func TestRunner_ContinuesExistingSession(t *testing.T) {
	llm := model.NewScriptedModel("m", core.NewTextResponse("Hello Alice."), core.NewTextResponse("Your name is Alice."))
	reg := model.NewRegistry()
	reg.Register("m", llm)

	a := agent.NewLLMAgent("assistant")
	r := New(a, func(o *Options) {
		o.Models = reg
		o.DefaultModel = "m"
	})

	first, err := r.RunText(context.Background(), "alice", "s1", "I am Alice")
	require.NoError(t, err)
	second, err := r.RunText(context.Background(), "alice", "s1", "What is my name?")
	require.NoError(t, err)

	assert.NotEqual(t, first.InvocationID, second.InvocationID)
	assert.Equal(t, "Your name is Alice.", second.Final.Text())

	// user, model answer, user
	assert.Len(t, llm.Requests()[1].Contents, 3)
}

func TestRunner_MissingModelSurfacesAsEvent(t *testing.T) {
	r := New(agent.NewLLMAgent("assistant"))

	res, err := r.RunText(context.Background(), "alice", "", "hi")
	require.NoError(t, err)

	require.True(t, res.Final.IsError())
	assert.Equal(t, core.ErrCodeConfiguration, res.Final.Error.Code)
}
