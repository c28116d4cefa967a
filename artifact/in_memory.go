package artifact

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

// InMemoryStore is a trivial in‑process ArtifactStore implementation useful
// for tests, examples and single‑process prototypes. Data is copied on save
// and retrieval to avoid accidental external mutation of internal buffers.
//
// Layout: sessionID -> name -> versions (index 0 is version 1)
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][][]byte
}

var _ core.ArtifactStore = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in‑memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][][]byte)}
}

// Save stores data as the next version of the artifact and returns that
// version. The input slice is copied before storage.
func (a *InMemoryStore) Save(_ context.Context, sessionID, name string, data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.artifacts[sessionID]; !exists {
		a.artifacts[sessionID] = make(map[string][][]byte)
	}
	a.artifacts[sessionID][name] = append(a.artifacts[sessionID][name], slices.Clone(data))

	return len(a.artifacts[sessionID][name]), nil
}

// Load returns a copy of the latest version or ErrNotFound.
func (a *InMemoryStore) Load(ctx context.Context, sessionID, name string) ([]byte, error) {
	return a.LoadVersion(ctx, sessionID, name, 0)
}

// LoadVersion returns a copy of a specific version. Version 0 means latest.
func (a *InMemoryStore) LoadVersion(_ context.Context, sessionID, name string, version int) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	versions := a.artifacts[sessionID][name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("load %s/%s: %w", sessionID, name, ErrNotFound)
	}
	if version == 0 {
		version = len(versions)
	}
	if version < 1 || version > len(versions) {
		return nil, fmt.Errorf("load %s/%s@%d: %w", sessionID, name, version, ErrNotFound)
	}

	return slices.Clone(versions[version-1]), nil
}

// Versions returns the stored version numbers of an artifact in ascending order.
func (a *InMemoryStore) Versions(_ context.Context, sessionID, name string) ([]int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := len(a.artifacts[sessionID][name])
	if n == 0 {
		return nil, fmt.Errorf("versions %s/%s: %w", sessionID, name, ErrNotFound)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out, nil
}

// List returns the sorted artifact names stored for the session.
func (a *InMemoryStore) List(_ context.Context, sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.artifacts[sessionID]))
	for name := range a.artifacts[sessionID] {
		names = append(names, name)
	}
	slices.Sort(names)

	return names, nil
}

// Delete removes every version of the artifact or returns ErrNotFound.
func (a *InMemoryStore) Delete(_ context.Context, sessionID, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.artifacts[sessionID]
	if !ok {
		return fmt.Errorf("delete %s/%s: %w", sessionID, name, ErrNotFound)
	}
	if _, ok := m[name]; !ok {
		return fmt.Errorf("delete %s/%s: %w", sessionID, name, ErrNotFound)
	}
	delete(m, name)

	return nil
}
