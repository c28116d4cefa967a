package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

// BeforeAgentCallback runs before an agent turn. A non-nil event skips the
// turn body and becomes the turn's conclusive event.
type BeforeAgentCallback func(ic *core.InvocationContext) (*core.Event, error)

// AfterAgentCallback runs after the turn body. A non-nil event replaces the
// turn's conclusive event.
type AfterAgentCallback func(ic *core.InvocationContext, final core.Event) (*core.Event, error)

// BaseAgent bundles identity, hierarchy management and the turn lifecycle
// shared by every agent. Embed it in concrete agents and call init from the
// constructor so hierarchy lookups return the concrete agent.
type BaseAgent struct {
	name        string
	description string
	self        core.Agent

	mu        sync.Mutex
	parent    core.Agent
	subAgents []core.Agent

	beforeAgent []BeforeAgentCallback
	afterAgent  []AfterAgentCallback
}

func (b *BaseAgent) init(self core.Agent, name, description string) {
	b.self = self
	b.name = name
	b.description = description
	if b.description == "" {
		b.description = fmt.Sprintf("Agent %s", name)
	}
}

// Name returns the agent's name, unique within its tree.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a description used when advertising the agent as a
// transfer target.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// SetSubAgents replaces the child set and assigns this agent as parent.
// A child that already belongs to another agent is rejected.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	seen := map[string]bool{}
	for _, child := range children {
		if seen[child.Name()] {
			return fmt.Errorf("duplicate sub-agent %q", child.Name())
		}
		seen[child.Name()] = true
		if p := child.Parent(); p != nil && p != b.self {
			return fmt.Errorf("agent %q already has parent %q", child.Name(), p.Name())
		}
		if _, ok := child.(parentSetter); !ok {
			return fmt.Errorf("agent %q does not support hierarchy", child.Name())
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, child := range b.subAgents {
		child.(parentSetter).setParent(nil)
	}
	b.subAgents = nil

	for _, child := range children {
		child.(parentSetter).setParent(b.self)
		b.subAgents = append(b.subAgents, child)
	}

	return nil
}

type parentSetter interface {
	setParent(core.Agent)
}

func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Parent returns the parent agent or nil for a root.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SubAgents returns a copy of the child agents.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Agent(nil), b.subAgents...)
}

// FindAgent searches this agent's subtree depth-first, including itself.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name {
		return b.self
	}
	for _, child := range b.SubAgents() {
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// Root returns the top of this agent's tree.
func (b *BaseAgent) Root() core.Agent { return core.RootAgent(b.self) }

// bind returns a view of ic whose active agent is this agent.
func (b *BaseAgent) bind(ic *core.InvocationContext) *core.InvocationContext {
	if ic.Agent == b.self {
		return ic
	}
	return ic.WithAgent(b.self)
}

// turn runs body inside the agent lifecycle: turn_start, before callbacks,
// body, after callbacks, transfer resolution and turn_end. Every event the
// turn appended is returned in TurnResult.Events.
func (b *BaseAgent) turn(ic *core.InvocationContext, body func(ic *core.InvocationContext) core.Event) core.TurnResult {
	ic = b.bind(ic)
	mark := ic.Mark()

	ic.LogInfo("agent.turn.start", "agent", b.name, "invocation_id", ic.InvocationID, "branch", ic.Branch)
	b.record(ic, core.NewEvent(core.EventTurnStart, core.AgentSource(b.name)))

	final, skipped := b.runBefore(ic)
	if !skipped {
		final = body(ic)
	}
	final = b.runAfter(ic, final)
	final = b.resolveTransfer(ic, final)

	b.record(ic, core.NewEvent(core.EventTurnEnd, core.AgentSource(b.name)))
	ic.LogInfo("agent.turn.end", "agent", b.name, "kind", string(final.Kind), "error", final.IsError())

	return core.TurnResult{Events: ic.EventsSince(mark), Final: final}
}

func (b *BaseAgent) runBefore(ic *core.InvocationContext) (core.Event, bool) {
	for _, cb := range b.beforeAgent {
		ev, err := cb(ic)
		if err != nil {
			return b.fail(ic, core.ErrCodeCallback, fmt.Sprintf("before agent: %v", err)), true
		}
		if ev != nil {
			ic.LogDebug("agent.turn.short_circuit", "agent", b.name)
			return b.record(ic, *ev), true
		}
	}
	return core.Event{}, false
}

func (b *BaseAgent) runAfter(ic *core.InvocationContext, final core.Event) core.Event {
	for _, cb := range b.afterAgent {
		ev, err := cb(ic, final)
		if err != nil {
			return b.fail(ic, core.ErrCodeCallback, fmt.Sprintf("after agent: %v", err))
		}
		if ev != nil {
			final = b.record(ic, *ev)
		}
	}
	return final
}

// resolveTransfer turns a transfer directive on the turn's outcome into an
// agent_transfer event. The target is looked up from the root of the tree;
// a directive naming this agent is already resolved.
func (b *BaseAgent) resolveTransfer(ic *core.InvocationContext, final core.Event) core.Event {
	target := final.TransferTarget()
	if target == "" || final.Kind == core.EventAgentTransfer {
		return final
	}

	if target == b.name {
		ic.LogDebug("agent.transfer.self", "agent", b.name)
		return final
	}

	if found := core.RootAgent(b.self).FindAgent(target); found == nil {
		return b.fail(ic, core.ErrCodeTransfer, fmt.Sprintf("transfer target %q not found", target))
	}

	ic.LogInfo("agent.transfer", "from", b.name, "to", target)

	return b.record(ic, core.NewTransferEvent(b.name, target))
}

// record appends ev and returns the stored copy. Append failures are
// logged and the stamped event is returned.
func (b *BaseAgent) record(ic *core.InvocationContext, ev core.Event) core.Event {
	stored, err := ic.AppendEvent(ev)
	if err != nil {
		ic.LogError("agent.event.append", "agent", b.name, "kind", string(ev.Kind), "error", err.Error())
		stamped, _ := ic.Stamp(ev)
		return stamped
	}
	return stored
}

func (b *BaseAgent) fail(ic *core.InvocationContext, code, msg string) core.Event {
	ic.LogError("agent.error", "agent", b.name, "code", code, "error", msg)
	return b.record(ic, core.NewErrorEvent(core.AgentSource(b.name), code, msg))
}
