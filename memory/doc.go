// Package memory contains concrete core.MemoryStore implementations. Tools
// reach memory through core.ToolContext (SearchMemory / StoreMemory); the
// wiring layer selects the implementation.
//
// InMemoryStore ranks snippets by keyword overlap with the query. Backends
// with semantic retrieval can be added without touching callers.
package memory
