package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

// InMemoryStore is a volatile SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Each returned session is cloned
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create registers a new session. An empty sessionID gets a generated one.
func (s *InMemoryStore) Create(_ context.Context, appName, userID, sessionID string) (*core.Session, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return nil, fmt.Errorf("create session %s: %w", sessionID, core.ErrSessionExists)
	}

	sess := core.NewSession(sessionID)
	sess.AppName = appName
	sess.UserID = userID
	s.sessions[sessionID] = sess

	return sess.Clone(), nil
}

// Get returns a snapshot of an existing session.
func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", sessionID, core.ErrSessionNotFound)
	}
	return sess.Clone(), nil
}

// AppendEvent adds an event to the session log and merges its state delta.
func (s *InMemoryStore) AppendEvent(_ context.Context, sessionID string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("append event to %s: %w", sessionID, core.ErrSessionNotFound)
	}
	if _, err := sess.AppendEvent(ev); err != nil {
		return fmt.Errorf("append event to %s: %w", sessionID, err)
	}
	return nil
}

// UpdateState merges a key/value delta into the session state.
func (s *InMemoryStore) UpdateState(_ context.Context, sessionID string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("update state of %s: %w", sessionID, core.ErrSessionNotFound)
	}
	sess.ApplyStateDelta(delta)
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
