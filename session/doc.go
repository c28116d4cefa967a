// Package session houses concrete implementations of core.SessionStore.
// The interface and the Session type live in core so agents and flows never
// depend on a concrete backend; only the wiring layer picks one.
//
// InMemoryStore keeps sessions in a process local map. SQLStore persists
// sessions and their event logs through database/sql, with constructors for
// SQLite (modernc.org/sqlite, pure Go) and PostgreSQL (lib/pq).
package session
