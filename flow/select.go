package flow

import "github.com/hupe1980/flowmesh/core"

// Select picks the flow policy for agent. Agents that can hand control to
// other agents need every tool round trip to be observable and get the
// multi-turn flow; all others get the single-turn flow.
func Select(agent core.Agent, optFns ...func(o *Options)) Flow {
	if canTransfer(agent) {
		return NewMultiTurnFlow(optFns...)
	}
	return NewSingleTurnFlow(optFns...)
}

func canTransfer(agent core.Agent) bool {
	if agent == nil {
		return false
	}
	if fa, ok := agent.(FlowAgent); ok && len(fa.TransferTargets()) > 0 {
		return true
	}
	return len(agent.SubAgents()) > 0
}
