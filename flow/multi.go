package flow

import (
	"github.com/hupe1980/flowmesh/core"
)

// MultiTurnFlow makes every tool round trip observable. The tool processor
// ends response handling with a tool-result event; the flow appends it and,
// when the outcome declares resolved tool output, rebuilds the request from
// the session log and calls the model again.
//
// Running out of budget while tools are still being resolved is not an
// error: the last tool-result event is tagged with
// core.TerminationMaxInteractions and returned.
type MultiTurnFlow struct {
	base
}

var _ Flow = (*MultiTurnFlow)(nil)

// NewMultiTurnFlow creates a multi-turn flow. The built-in processors run in
// tool-result mode.
func NewMultiTurnFlow(optFns ...func(o *Options)) *MultiTurnFlow {
	return &MultiTurnFlow{base: newBase("multi", ModeToolResult, optFns)}
}

// Run implements Flow.
func (f *MultiTurnFlow) Run(ic *core.InvocationContext, initial *core.LLMRequest) (result core.Event) {
	defer f.guard(ic, &result)

	ic.LogDebug("flow.run.start", "flow", f.name, "agent", ic.AgentName())

	limiter := core.NewInteractionLimiter(f.ceiling(ic))

	for {
		req, err := f.pipeline.ApplyRequest(ic, initial.Clone())
		if err != nil {
			return f.fail(ic, core.ErrCodeProcessor, err.Error())
		}

		if err := limiter.Increment(); err != nil {
			return f.fail(ic, core.ErrCodeMaxInteractions, "Max interactions reached: "+err.Error())
		}

		resp, errEv := f.callModel(ic, req)
		if errEv != nil {
			return *errEv
		}

		outcome, err := f.pipeline.ApplyResponse(ic, req, resp)
		if err != nil {
			return f.fail(ic, core.ErrCodeProcessor, err.Error())
		}

		switch outcome.Kind {
		case OutcomeTerminal:
			ev := outcome.Event
			loop := outcome.continuable()
			if loop && limiter.Exhausted() {
				ic.LogWarn("flow.max_interactions", "flow", f.name, "agent", ic.AgentName(), "max", limiter.Max())
				ev = ev.WithTerminationReason(core.TerminationMaxInteractions)
				loop = false
			}

			stored, err := ic.AppendEvent(ev)
			if err != nil {
				return f.fail(ic, core.ErrCodeSession, err.Error())
			}
			if !loop {
				return stored
			}
			ic.LogDebug("flow.loop", "flow", f.name, "agent", ic.AgentName(), "interaction", limiter.Count())
		case OutcomeRerun:
			// History is rebuilt from the log on the next iteration, so the
			// replacement request itself is not needed here.
			events := outcome.Events
			exhausted := limiter.Exhausted()
			if exhausted && len(events) > 0 {
				n := len(events) - 1
				events = append(events[:n:n], events[n].WithTerminationReason(core.TerminationMaxInteractions))
			}
			last, err := f.appendAll(ic, events)
			if err != nil {
				return f.fail(ic, core.ErrCodeSession, err.Error())
			}
			if exhausted {
				if last == nil {
					return f.fail(ic, core.ErrCodeMaxInteractions, "Max interactions reached")
				}
				return *last
			}
		default:
			return finalMessage(ic, outcome.Response)
		}
	}
}
