package agent

import (
	"fmt"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/flow"
	"github.com/hupe1980/flowmesh/tool"
)

// LLMAgentOptions configures an LLMAgent.
type LLMAgentOptions struct {
	Description string
	// Model names the model resolved through the model registry. Empty means
	// RunConfig.DefaultModel.
	Model            string
	Instruction      Instruction
	GenerationConfig core.GenerationConfig
	Toolset          *tool.Toolset
	// Flow overrides the policy picked by flow.Select.
	Flow        flow.Flow
	FlowOptions []func(o *flow.Options)
	// AllowTransfer lets the model hand control to sub-agents, the parent
	// and peers through the transfer_to_agent tool.
	AllowTransfer            bool
	DisallowTransferToParent bool
	DisallowTransferToPeers  bool
	// OutputKey stores the turn's final text in session state.
	OutputKey  string
	MaxHistory int

	BeforeAgent []BeforeAgentCallback
	AfterAgent  []AfterAgentCallback
	BeforeModel []flow.BeforeModelCallback
	AfterModel  []flow.AfterModelCallback
	BeforeTool  []flow.BeforeToolCallback
	AfterTool   []flow.AfterToolCallback
}

// LLMAgent answers each turn by running a flow against a model, executing
// tools the model asks for and handing control to other agents on request.
type LLMAgent struct {
	BaseAgent
	opts LLMAgentOptions
}

var (
	_ core.Agent     = (*LLMAgent)(nil)
	_ flow.FlowAgent = (*LLMAgent)(nil)
)

// NewLLMAgent creates an LLMAgent. By default the agent may transfer, keeps
// the last 20 history contents and is instructed to be a helpful assistant.
func NewLLMAgent(name string, optFns ...func(o *LLMAgentOptions)) *LLMAgent {
	opts := LLMAgentOptions{
		Instruction:   NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		AllowTransfer: true,
		MaxHistory:    20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &LLMAgent{opts: opts}
	a.init(a, name, opts.Description)
	a.beforeAgent = opts.BeforeAgent
	a.afterAgent = opts.AfterAgent

	return a
}

// Run implements core.Agent.
func (a *LLMAgent) Run(ic *core.InvocationContext) core.TurnResult {
	return a.turn(ic, a.runFlow)
}

func (a *LLMAgent) runFlow(ic *core.InvocationContext) core.Event {
	fl := a.Flow()

	ic.LogDebug("agent.flow.selected", "agent", a.Name(), "flow", fl.Name())

	req := &core.LLMRequest{
		Model:  a.opts.Model,
		Config: fl.Defaults().Merge(a.opts.GenerationConfig),
	}

	final := fl.Run(ic, req)

	if a.opts.OutputKey != "" && final.Kind == core.EventMessage && !final.IsError() {
		ic.SetState(a.opts.OutputKey, final.Text())
	}

	return final
}

// Flow returns the flow the agent runs: the configured one, or the policy
// flow.Select picks for the agent's current transfer targets.
func (a *LLMAgent) Flow() flow.Flow {
	if a.opts.Flow != nil {
		return a.opts.Flow
	}
	return flow.Select(a, a.opts.FlowOptions...)
}

// ResolveInstruction implements flow.FlowAgent.
func (a *LLMAgent) ResolveInstruction(ic *core.InvocationContext) (string, error) {
	return a.opts.Instruction.Resolve(ic)
}

// Toolset implements flow.FlowAgent. When the agent can transfer, the
// transfer_to_agent tool is added for the current targets.
func (a *LLMAgent) Toolset() *tool.Toolset {
	targets := a.TransferTargets()
	if len(targets) == 0 {
		return a.opts.Toolset
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name())
	}
	transfer := tool.MustToolset(tool.NewTransferToAgentTool(names...))

	if a.opts.Toolset == nil {
		return transfer
	}
	return a.opts.Toolset.Merge(transfer)
}

// TransferTargets implements flow.FlowAgent: sub-agents, then the parent,
// then peers, each unless disallowed.
func (a *LLMAgent) TransferTargets() []core.Agent {
	if !a.opts.AllowTransfer {
		return nil
	}

	targets := a.SubAgents()

	parent := a.Parent()
	if parent == nil {
		return targets
	}
	if !a.opts.DisallowTransferToParent {
		targets = append(targets, parent)
	}
	if !a.opts.DisallowTransferToPeers {
		for _, peer := range parent.SubAgents() {
			if peer.Name() != a.Name() {
				targets = append(targets, peer)
			}
		}
	}

	return targets
}

// MaxHistory implements flow.FlowAgent.
func (a *LLMAgent) MaxHistory() int { return a.opts.MaxHistory }

// Callbacks implements flow.FlowAgent.
func (a *LLMAgent) Callbacks() flow.Callbacks {
	return flow.Callbacks{
		BeforeModel: a.opts.BeforeModel,
		AfterModel:  a.opts.AfterModel,
		BeforeTool:  a.opts.BeforeTool,
		AfterTool:   a.opts.AfterTool,
	}
}

// OutputKey returns the state key the final text is stored under.
func (a *LLMAgent) OutputKey() string { return a.opts.OutputKey }
