package agent

import (
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// LoopAgent runs its sub-agents in order, repeatedly, until one of them
// escalates (for example through the exit_loop tool), fails, hands control
// to another agent, the predicate accepts the last output, or the iteration
// limit is reached.
type LoopAgent struct {
	BaseAgent
	maxIters  int
	interval  time.Duration
	predicate func(string) bool
}

var _ core.Agent = (*LoopAgent)(nil)

// LoopOption defines a configuration function for customizing LoopAgent behavior.
type LoopOption func(*LoopAgent)

// WithMaxIters sets the maximum number of iterations. Defaults to 10.
func WithMaxIters(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIters = n }
}

// WithInterval sets the delay between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithPredicate stops the loop once pred accepts the text of an
// iteration's conclusive event.
//
// Example:
//
//	WithPredicate(func(output string) bool {
//	    return strings.Contains(output, "COMPLETE")
//	})
func WithPredicate(pred func(string) bool) LoopOption {
	return func(l *LoopAgent) { l.predicate = pred }
}

// NewLoopAgent creates a loop coordinator over children.
func NewLoopAgent(name string, children []core.Agent, opts ...LoopOption) (*LoopAgent, error) {
	l := &LoopAgent{maxIters: 10}
	l.init(l, name, "")
	for _, o := range opts {
		o(l)
	}
	if err := l.SetSubAgents(children...); err != nil {
		return nil, err
	}
	return l, nil
}

// Run implements core.Agent.
func (l *LoopAgent) Run(ic *core.InvocationContext) core.TurnResult {
	return l.turn(ic, l.loop)
}

func (l *LoopAgent) loop(ic *core.InvocationContext) core.Event {
	var final core.Event

	for i := 0; l.maxIters <= 0 || i < l.maxIters; i++ {
		ic.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i+1)

		var stopped bool
		final, stopped = runChildren(ic, l.Name(), l.SubAgents())
		if stopped {
			if final.Actions.Escalate {
				// Escalation ends this loop only; enclosing agents continue.
				ic.LogInfo("agent.loop.escalated", "agent", l.Name(), "iteration", i+1)
				final.Actions.Escalate = false
			}
			return final
		}

		if l.predicate != nil && l.predicate(final.Text()) {
			ic.LogInfo("agent.loop.predicate", "agent", l.Name(), "iteration", i+1)
			return final
		}

		if l.interval > 0 {
			select {
			case <-ic.Done():
				return l.fail(ic, core.ErrCodeModel, ic.Err().Error())
			case <-time.After(l.interval):
			}
		}
	}

	ic.LogInfo("agent.loop.completed", "agent", l.Name(), "iterations", l.maxIters)

	return final
}
