package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hupe1980/flowmesh/core"
)

// ErrNotFound is returned when a memory id is unknown for a session.
var ErrNotFound = errors.New("memory not found")

type storedMemory struct {
	id       string
	content  string
	terms    map[string]struct{}
	metadata map[string]any
	created  time.Time
}

// InMemoryStore is a process‑local MemoryStore. Snippets are kept per
// session in insertion order. Search scores each snippet by the fraction of
// distinct query terms it contains (case-insensitive) and returns matches
// best first, newer snippets winning ties. An empty query matches
// everything with score 1.
type InMemoryStore struct {
	mu      sync.RWMutex
	storage map[string][]storedMemory
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{storage: make(map[string][]storedMemory)}
}

// Store appends a snippet and returns its generated id.
func (m *InMemoryStore) Store(_ context.Context, sessionID, content string, metadata map[string]any) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.New("memory content is empty")
	}

	id := core.NewID()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.storage[sessionID] = append(m.storage[sessionID], storedMemory{
		id:       id,
		content:  content,
		terms:    termSet(content),
		metadata: maps.Clone(metadata),
		created:  time.Now().UTC(),
	})

	return id, nil
}

// Search returns up to limit snippets matching query. A limit <= 0 returns
// every match.
func (m *InMemoryStore) Search(_ context.Context, sessionID, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queryTerms := termSet(query)
	stored := m.storage[sessionID]

	results := make([]core.SearchResult, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		score := overlap(queryTerms, stored[i].terms)
		if score == 0 {
			continue
		}
		results = append(results, core.SearchResult{
			ID:        stored[i].id,
			SessionID: sessionID,
			Content:   stored[i].content,
			Score:     score,
			Metadata:  maps.Clone(stored[i].metadata),
			Created:   stored[i].created,
		})
	}

	slices.SortStableFunc(results, func(a, b core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a stored snippet by id.
func (m *InMemoryStore) Delete(_ context.Context, sessionID, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.storage[sessionID]
	i := slices.IndexFunc(stored, func(s storedMemory) bool { return s.id == memoryID })
	if i < 0 {
		return fmt.Errorf("delete memory %s: %w", memoryID, ErrNotFound)
	}
	m.storage[sessionID] = slices.Delete(stored, i, i+1)

	return nil
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 1
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func termSet(s string) map[string]struct{} {
	terms := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		terms[f] = struct{}{}
	}
	return terms
}
