// Package index stores normalized segment embeddings and answers nearest-neighbour queries
package index

import (
	"context"

	"github.com/ppiankov/veritas/internal/model"
)

// NoMatch is the position reported for an empty result slot
const NoMatch = -1

// Hit is one search result; Score is the inner product of unit vectors (cosine similarity)
type Hit struct {
	Position int
	Score    float64
}

// Searcher answers similarity queries and maps positions back to segments.
// Implementations are read-only after build and safe for concurrent use.
type Searcher interface {
	// Search returns exactly k hits ordered by score desc then position asc.
	// Slots beyond the index size carry Position NoMatch.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Lookup returns the segment inserted at position
	Lookup(ctx context.Context, position int) (model.Segment, error)

	// Len is the number of indexed segments
	Len() int

	// EmbedderName is the embedder the index was built with
	EmbedderName() string
}
