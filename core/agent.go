package core

// Agent is the unit that executes one turn against an InvocationContext.
//
// Run never returns a Go error: failures surface as EventError events and the
// turn's conclusive event is TurnResult.Final. Hierarchy accessors let
// orchestration resolve transfer targets from the root of the tree.
type Agent interface {
	Name() string
	Description() string
	Run(ic *InvocationContext) TurnResult
	Parent() Agent
	SubAgents() []Agent
	FindAgent(name string) Agent
}

// TurnResult is the outcome of one agent turn. Events lists every event the
// turn appended to the session log, in append order.
type TurnResult struct {
	Events []Event
	Final  Event
}

// RootAgent walks the parent chain to the top of the tree.
func RootAgent(a Agent) Agent {
	for a != nil && a.Parent() != nil {
		a = a.Parent()
	}
	return a
}
