// Package index implements the exact nearest-neighbour index kept for each document.
//
// Distances are squared Euclidean (L2) distances; smaller is more similar.
package index

import (
	"errors"
	"fmt"
	"slices"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a search result: the position of a stored vector and its distance to the query.
type Hit struct {
	Position int
	Distance float32
}

// Flat is a brute-force L2 index. Positions are assigned in insertion order
// starting at zero, so they line up with the chunk list of the document.
// A Flat is not safe for concurrent Add; concurrent Search on a fully built
// index is safe.
type Flat struct {
	dim  int
	data []float32
}

// NewFlat creates an empty index for vectors of length dim.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Add appends vectors. Either all are added or none.
func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimensionMismatch, i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Vector returns a copy of the vector at position i.
func (f *Flat) Vector(i int) []float32 {
	return slices.Clone(f.data[i*f.dim : (i+1)*f.dim])
}

// Search returns the min(k, Len()) nearest vectors to query, nearest first.
// Equal distances are ordered by position.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	n := f.Len()
	k = min(k, n)
	if k <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, f.data[i*f.dim:(i+1)*f.dim])}
	}
	slices.SortFunc(hits, compareHits)
	return hits[:k], nil
}

func compareHits(a, b Hit) int {
	switch {
	case a.Distance < b.Distance:
		return -1
	case a.Distance > b.Distance:
		return 1
	default:
		return a.Position - b.Position
	}
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
