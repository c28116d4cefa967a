// Package artifact contains concrete implementations of core.ArtifactStore.
//
// Artifacts are named binary blobs scoped to a session. Every Save creates a
// new version (starting at 1); Load returns the latest one. The interface
// lives in core so tools reach artifacts through core.ToolContext without
// depending on a backend. The s3 sub-package stores artifacts in an
// S3-compatible bucket.
package artifact
