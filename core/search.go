package core

import "time"

// SearchResult is one memory snippet returned by MemoryStore.Search, best
// match first. Score is in (0, 1].
type SearchResult struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Created   time.Time      `json:"created"`
}
