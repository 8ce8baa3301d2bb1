// Package vector embeds policy chunks and serves nearest-neighbour retrieval
// over an immutable, atomically swapped snapshot.
package vector

import (
	"context"
	"math"

	"github.com/sweetpotato0/travel-router/rag/document"
)

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension return number of embedding dimensions
	Dimension() int
}

// Hit is one engine result. ID is the position of the vector in the generation it was
// created with. Lower Distance is closer.
type Hit struct {
	ID       int
	Distance float32
}

// Engine is the nearest-neighbour backend. Each build writes a new generation, so a
// generation is immutable once Create returns.
type Engine interface {
	Name() string
	// Create stores vectors under a fresh generation name.
	Create(ctx context.Context, generation string, vectors [][]float32) error
	// Search returns up to k hits ordered nearest first.
	Search(ctx context.Context, generation string, query []float32, k int) ([]Hit, error)
	// Drop releases a generation that is no longer served.
	Drop(ctx context.Context, generation string) error
}

// Match is a retrieved chunk with its distance to the query.
type Match struct {
	document.Chunk
	Distance float32 `json:"distance"`
}

// SquaredL2 returns the squared Euclidean distance, or +Inf for mismatched lengths.
func SquaredL2(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
