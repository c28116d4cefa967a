// Package agent contains the agent implementations of flowmesh:
//
//  1. BaseAgent: identity, hierarchy (SetSubAgents / FindAgent / Root) and
//     the turn lifecycle shared by every agent
//  2. LLMAgent: answers a turn by running a flow against a model, with tools,
//     callbacks and transfer to other agents
//  3. SequentialAgent and LoopAgent: compose other agents within one turn
//
// Every Run appends turn_start and turn_end events around the turn body and
// returns the events it appended together with the conclusive event. A
// transfer directive on the outcome is resolved against the root of the
// agent tree and turned into an agent_transfer event; running the target is
// left to the caller (see package runner).
package agent
