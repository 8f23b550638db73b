package storage

import "errors"

var (
	// ErrArtifactMissing indicates the index or chunk list of a document is absent,
	// corrupt, or the two are not aligned. The document is unusable for retrieval.
	ErrArtifactMissing = errors.New("document artifacts missing or unusable")

	// ErrModelMismatch indicates the stored vectors were produced by another embedding model.
	ErrModelMismatch = errors.New("index built with a different embedding model")

	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidKey        = errors.New("invalid artifact key")
)

// Unusable reports whether err means the document should be skipped rather than failing the query.
func Unusable(err error) bool {
	return errors.Is(err, ErrArtifactMissing) || errors.Is(err, ErrModelMismatch)
}
