package core

import "context"

// ArtifactStore defines the interface for artifact persistence. Implementations
// should be thread-safe and scope artifacts by session identifier. Save returns
// the version number assigned to the stored bytes (starting at 1).
type ArtifactStore interface {
	Save(ctx context.Context, sessionID, name string, data []byte) (int, error)
	Load(ctx context.Context, sessionID, name string) ([]byte, error)
	List(ctx context.Context, sessionID string) ([]string, error)
	Delete(ctx context.Context, sessionID, name string) error
}
