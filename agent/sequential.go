package agent

import (
	"github.com/hupe1980/flowmesh/core"
)

// SequentialAgent runs its sub-agents one after another within one turn.
// Each child sees the session log written by its predecessors, so outputs
// build on each other either through history or through state written via
// an OutputKey.
//
// The sequence stops early when a child fails, hands control to another
// agent or escalates; that child's conclusive event becomes the turn's.
type SequentialAgent struct {
	BaseAgent
}

var _ core.Agent = (*SequentialAgent)(nil)

// NewSequentialAgent creates a sequential coordinator over children.
func NewSequentialAgent(name string, children ...core.Agent) (*SequentialAgent, error) {
	s := &SequentialAgent{}
	s.init(s, name, "")
	if err := s.SetSubAgents(children...); err != nil {
		return nil, err
	}
	return s, nil
}

// Run implements core.Agent.
func (s *SequentialAgent) Run(ic *core.InvocationContext) core.TurnResult {
	return s.turn(ic, func(ic *core.InvocationContext) core.Event {
		final, _ := runChildren(ic, s.Name(), s.SubAgents())
		return final
	})
}

// runChildren runs children in order on ic's branch. It reports whether a
// child ended the sequence early.
func runChildren(ic *core.InvocationContext, parent string, children []core.Agent) (core.Event, bool) {
	var final core.Event
	for _, child := range children {
		if err := ic.Err(); err != nil {
			ev, _ := ic.AppendEvent(core.NewErrorEvent(core.AgentSource(parent), core.ErrCodeModel, err.Error()))
			return ev, true
		}

		ic.LogDebug("agent.child.start", "agent", parent, "child", child.Name())

		res := child.Run(ic.WithAgent(child))
		final = res.Final

		if stopsSequence(final) {
			ic.LogDebug("agent.child.stop", "agent", parent, "child", child.Name(), "kind", string(final.Kind))
			return final, true
		}
	}
	return final, false
}

func stopsSequence(ev core.Event) bool {
	return ev.IsError() || ev.Kind == core.EventAgentTransfer || ev.Actions.Escalate
}
