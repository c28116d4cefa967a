package flow

import "github.com/hupe1980/flowmesh/core"

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// OutcomeContinue passes the (possibly replaced) response on.
	OutcomeContinue OutcomeKind = iota
	// OutcomeRerun asks the flow to call the model again with Request.
	OutcomeRerun
	// OutcomeTerminal ends response handling with Event.
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeRerun:
		return "rerun"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is what a response processor decides. Events carried by Rerun and
// Terminal outcomes are appended by the flow exactly once; processors never
// append to the session log themselves.
type Outcome struct {
	Kind     OutcomeKind
	Response *core.LLMResponse
	Request  *core.LLMRequest
	Events   []core.Event
	Event    core.Event
	// ToolResolved marks a terminal event that carries resolved tool output
	// the multi-turn flow should feed back to the model.
	ToolResolved bool
}

// Continue keeps processing resp.
func Continue(resp *core.LLMResponse) Outcome {
	return Outcome{Kind: OutcomeContinue, Response: resp}
}

// Rerun calls the model again after appending events. The single-turn flow
// sends req as is. The multi-turn flow ignores req and rebuilds the next
// request from the session log, so processors that need the model to see
// something under that policy must carry it in events.
func Rerun(req *core.LLMRequest, events ...core.Event) Outcome {
	return Outcome{Kind: OutcomeRerun, Request: req, Events: events}
}

// Terminal ends the turn with ev.
func Terminal(ev core.Event) Outcome {
	return Outcome{Kind: OutcomeTerminal, Event: ev}
}

// ToolResult is a terminal outcome whose event carries resolved tool output.
func ToolResult(ev core.Event) Outcome {
	return Outcome{Kind: OutcomeTerminal, Event: ev, ToolResolved: true}
}

// IsTerminal reports whether the outcome ends response handling.
func (o Outcome) IsTerminal() bool { return o.Kind == OutcomeTerminal }

// continuable reports whether a resolved tool outcome allows another model
// round trip: directives that hand control elsewhere end the turn.
func (o Outcome) continuable() bool {
	if !o.ToolResolved {
		return false
	}
	a := o.Event.Actions
	return a.TransferToAgent == "" && !a.Escalate && !a.SkipSummarization
}
