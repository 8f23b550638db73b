// Package storage persists per-document vector indexes together with their chunk texts.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Key identifies the artifacts of one document owned by one user.
type Key struct {
	UserID     string
	DocumentID string
}

func (k Key) String() string { return k.UserID + "/" + k.DocumentID }

// Validate rejects keys that cannot be used as path components.
func (k Key) Validate() error {
	if !validPart(k.UserID) || !validPart(k.DocumentID) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

// ValidateUserID applies the user half of Key.Validate.
func ValidateUserID(userID string) error {
	if !validPart(userID) {
		return fmt.Errorf("%w: user %q", ErrInvalidKey, userID)
	}
	return nil
}

func validPart(part string) bool {
	return part != "" && part != "." && part != ".." &&
		!strings.ContainsAny(part, `/\`) && !strings.ContainsRune(part, 0)
}

// Artifact is everything needed to search a document: one vector per chunk,
// aligned by position, plus the embedding model that produced the vectors.
type Artifact struct {
	Model   string
	Chunks  []string
	Vectors [][]float32
}

// Validate checks alignment and dimension consistency.
func (a *Artifact) Validate() error {
	if len(a.Chunks) != len(a.Vectors) {
		return fmt.Errorf("%d chunks but %d vectors", len(a.Chunks), len(a.Vectors))
	}
	if len(a.Vectors) == 0 {
		return fmt.Errorf("artifact has no vectors")
	}
	dim := len(a.Vectors[0])
	for i, v := range a.Vectors {
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// Query is a nearest-neighbour request against one document.
type Query struct {
	Vector []float32
	K      int
	// Model, when set, must match the model recorded with the artifact.
	Model string
}

// Hit is one matching chunk. Distance is the squared L2 distance to the query.
type Hit struct {
	Position int
	Distance float32
	Text     string
}

// ArtifactStore persists and searches per-document artifacts.
// Implementations must be safe for concurrent use; callers serialise writers
// and readers of the same key.
type ArtifactStore interface {
	// Save replaces the artifacts of key. On error nothing is left behind.
	Save(ctx context.Context, key Key, a *Artifact) error

	// Search returns up to q.K hits ordered by ascending distance, ties by position.
	// Absent or unusable artifacts yield ErrArtifactMissing or ErrModelMismatch.
	Search(ctx context.Context, key Key, q Query) ([]Hit, error)

	// Delete removes the artifacts of key. Deleting absent artifacts is not an error.
	Delete(ctx context.Context, key Key) error

	// Keys lists every key with at least one persisted artifact.
	Keys(ctx context.Context) ([]Key, error)

	Health(ctx context.Context) error
	Close() error
}
