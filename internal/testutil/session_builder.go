package testutil

import (
	"github.com/hupe1980/flowmesh/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").State("k", "v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	id     string
	app    string
	user   string
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder creates a builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, state: map[string]any{}}
}

// App sets the application name.
func (b *SessionBuilder) App(name string) *SessionBuilder { b.app = name; return b }

// User sets the owning user id.
func (b *SessionBuilder) User(id string) *SessionBuilder { b.user = id; return b }

// State sets a state key.
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Events appends events to the history.
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns the session. Events go through Session.AppendEvent so they
// are stamped with the session id and their state deltas are applied after
// the builder's initial state.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)
	s.AppName = b.app
	s.UserID = b.user
	s.ApplyStateDelta(b.state)

	for _, ev := range b.events {
		if _, err := s.AppendEvent(ev); err != nil {
			panic(err)
		}
	}

	return s
}
