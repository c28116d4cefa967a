package flow

import (
	"github.com/hupe1980/flowmesh/core"
)

// SingleTurnFlow produces one coherent answer per turn. Tool round trips are
// an internal retry: the tool processor returns a Rerun outcome carrying the
// request extended with the call and its results, and the flow calls the
// model again until it answers without tools or the ceiling is hit.
type SingleTurnFlow struct {
	base
}

var _ Flow = (*SingleTurnFlow)(nil)

// NewSingleTurnFlow creates a single-turn flow. The built-in processors run
// in rerun mode.
func NewSingleTurnFlow(optFns ...func(o *Options)) *SingleTurnFlow {
	return &SingleTurnFlow{base: newBase("single", ModeRerun, optFns)}
}

// Run implements Flow.
func (f *SingleTurnFlow) Run(ic *core.InvocationContext, req *core.LLMRequest) (result core.Event) {
	defer f.guard(ic, &result)

	ic.LogDebug("flow.run.start", "flow", f.name, "agent", ic.AgentName())

	req, err := f.pipeline.ApplyRequest(ic, req.Clone())
	if err != nil {
		return f.fail(ic, core.ErrCodeProcessor, err.Error())
	}

	limiter := core.NewInteractionLimiter(f.ceiling(ic))

	for {
		if err := limiter.Increment(); err != nil {
			ic.LogWarn("flow.max_interactions", "flow", f.name, "agent", ic.AgentName(), "max", limiter.Max())
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
			stored, err := ic.AppendEvent(outcome.Event)
			if err != nil {
				return f.fail(ic, core.ErrCodeSession, err.Error())
			}
			return stored
		case OutcomeRerun:
			if _, err := f.appendAll(ic, outcome.Events); err != nil {
				return f.fail(ic, core.ErrCodeSession, err.Error())
			}
			req = outcome.Request
			ic.LogDebug("flow.rerun", "flow", f.name, "agent", ic.AgentName(), "interaction", limiter.Count())
		default:
			return finalMessage(ic, outcome.Response)
		}
	}
}
