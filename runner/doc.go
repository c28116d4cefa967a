// Package runner drives one user turn through an agent tree.
//
// A Runner loads (or creates) the session, opens a single invocation,
// records the user's message and runs the root agent. When an agent hands
// control over with an agent_transfer event the runner continues with the
// target on the same invocation, up to Options.MaxTransfers handoffs.
//
// # Responsibilities (abridged)
//   - Session resolution through the configured core.SessionStore
//   - Invocation lifecycle management
//   - Transfer following and bounding
//
// See runner.go for the operational implementation details.
package runner
