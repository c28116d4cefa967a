package core

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

var (
	// ErrSessionMismatch is returned when an event carries another session's id.
	ErrSessionMismatch = errors.New("event belongs to a different session")
	// ErrInvocationMismatch is returned when an event carries another invocation's id.
	ErrInvocationMismatch = errors.New("event belongs to a different invocation")
	// ErrSessionNotFound is returned by stores for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by stores when creating a session whose id is taken.
	ErrSessionExists = errors.New("session already exists")
)

// Session represents a conversational container tracking mutable key/value
// state plus an ordered event history. It is safe for concurrent access.
//
// Contract:
//   - State mutations and appends advance Updated
//   - Events returns a copy to avoid external mutation
//   - AppendEvent never deduplicates or reorders
type Session struct {
	ID      string         `json:"id"`
	AppName string         `json:"app_name"`
	UserID  string         `json:"user_id"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates a new session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair in session state updating the Updated timestamp.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.Updated = time.Now().UTC()
}

// ApplyStateDelta merges the provided key/value pairs into State (last write wins).
func (s *Session) ApplyStateDelta(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == nil {
		s.State = map[string]any{}
	}
	maps.Copy(s.State, delta)
	s.Updated = time.Now().UTC()
}

// StateSnapshot returns a copy of the current state.
func (s *Session) StateSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.State)
}

// AppendEvent stamps ev with the session id, rejects events that belong to
// another session, merges the event's state delta and appends it. The stored
// event is returned.
func (s *Session) AppendEvent(ev Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.SessionID == "" {
		ev.SessionID = s.ID
	} else if ev.SessionID != s.ID {
		return ev, ErrSessionMismatch
	}

	if len(ev.Actions.StateDelta) > 0 {
		if s.State == nil {
			s.State = map[string]any{}
		}
		maps.Copy(s.State, ev.Actions.StateDelta)
	}

	s.Events = append(s.Events, ev)
	s.Updated = time.Now().UTC()

	return ev, nil
}

// GetEvents returns a copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// Len returns the number of logged events.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Events)
}

// EventsSince returns a copy of the events appended at or after index i.
func (s *Session) EventsSince(i int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i >= len(s.Events) {
		return nil
	}
	if i < 0 {
		i = 0
	}
	events := make([]Event, len(s.Events)-i)
	copy(events, s.Events[i:])
	return events
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:      s.ID,
		AppName: s.AppName,
		UserID:  s.UserID,
		State:   maps.Clone(s.State),
		Events:  make([]Event, len(s.Events)),
		Created: s.Created,
		Updated: s.Updated,
	}
	if clone.State == nil {
		clone.State = map[string]any{}
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Deletion is always an explicit operation.
type SessionStore interface {
	Create(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	AppendEvent(ctx context.Context, sessionID string, ev Event) error
	UpdateState(ctx context.Context, sessionID string, delta map[string]any) error
	Delete(ctx context.Context, sessionID string) error
}
