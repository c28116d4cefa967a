// Package core provides the foundational domain types, interfaces and execution
// contexts used by flowmesh. It defines the core abstractions for:
//
//   - Events (immutable, typed records appended to a session log)
//   - Sessions (stateful conversational containers with event history)
//   - InvocationContext / ToolContext (per-run and per-tool-call scopes)
//   - Model requests, responses and the LLM client contract
//   - Pluggable stores for sessions, artifacts and memory, and code executors
//
// The package keeps implementation concerns (persistence, flows, concrete
// agents) out of scope, exposing small interfaces to enable custom backends.
package core
