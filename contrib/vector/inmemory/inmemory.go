package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/travel-router/vector"
)

// FlatL2 is an exact nearest-neighbour engine over in-memory vectors.
type FlatL2 struct {
	mu          sync.RWMutex
	generations map[string][][]float32
}

// NewFlatL2 creates an empty engine.
func NewFlatL2() *FlatL2 {
	return &FlatL2{
		generations: make(map[string][][]float32),
	}
}

func (e *FlatL2) Name() string { return "memory" }

// Create stores a copy of vectors under generation.
func (e *FlatL2) Create(_ context.Context, generation string, vectors [][]float32) error {
	if generation == "" {
		return fmt.Errorf("generation cannot be empty")
	}
	stored := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("vector %d is empty", i)
		}
		stored[i] = append([]float32(nil), v...)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.generations[generation] = stored
	return nil
}

// Search finds vectors nearest to the query
func (e *FlatL2) Search(_ context.Context, generation string, query []float32, k int) ([]vector.Hit, error) {
	e.mu.RLock()
	vectors, ok := e.generations[generation]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("generation %s not found", generation)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	hits := make([]vector.Hit, 0, len(vectors))
	for id, v := range vectors {
		if len(v) != len(query) {
			continue
		}
		hits = append(hits, vector.Hit{ID: id, Distance: vector.SquaredL2(query, v)})
	}

	// nearest first, ties by insertion order
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Drop forgets a generation.
func (e *FlatL2) Drop(_ context.Context, generation string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.generations, generation)
	return nil
}

// Generations returns how many generations are held.
func (e *FlatL2) Generations() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.generations)
}
