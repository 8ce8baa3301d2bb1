package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/retry"
	"github.com/sweetpotato0/travel-router/pkg/telemetry"
	"github.com/sweetpotato0/travel-router/rag/document"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const defaultBatchSize = 64

// Source produces the full chunk set for a rebuild.
type Source func(ctx context.Context) ([]document.Chunk, error)

type snapshot struct {
	generation string
	chunks     []document.Chunk
	vectors    [][]float32
	builtAt    time.Time

	// guarded by Index.refMu
	readers int
	retired bool
}

// Index serves retrieval from the current snapshot while rebuilds run on the side.
// Readers never see a partially built snapshot.
type Index struct {
	embedder  Embedder
	engine    Engine
	policy    retry.Policy
	batchSize int
	logger    *slog.Logger

	current atomic.Pointer[snapshot]
	refMu   sync.Mutex
	buildMu sync.Mutex
	group   singleflight.Group
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithRetryPolicy sets the timeout and retry budget for embedding and engine calls.
func WithRetryPolicy(p retry.Policy) IndexOption {
	return func(i *Index) {
		i.policy = p
	}
}

// WithBatchSize sets how many texts are embedded per call.
func WithBatchSize(n int) IndexOption {
	return func(i *Index) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithLogger sets the index logger.
func WithLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIndex creates an empty index.
func NewIndex(embedder Embedder, engine Engine, opts ...IndexOption) *Index {
	if embedder == nil || engine == nil {
		panic("vector: embedder and engine are required")
	}
	i := &Index{
		embedder:  embedder,
		engine:    engine,
		policy:    retry.Default(),
		batchSize: defaultBatchSize,
		logger:    logging.WithComponent("vector"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	if i.policy.Logger == nil {
		i.policy.Logger = i.logger
	}
	return i
}

// Len returns the number of chunks in the served snapshot.
func (i *Index) Len() int {
	if s := i.current.Load(); s != nil {
		return len(s.chunks)
	}
	return 0
}

// Build embeds chunks, writes them to a new engine generation and swaps it in.
// Builds are exclusive; retrieval keeps using the previous snapshot until the swap.
func (i *Index) Build(ctx context.Context, chunks []document.Chunk) (int, error) {
	i.buildMu.Lock()
	defer i.buildMu.Unlock()

	ctx, span := telemetry.Start(ctx, "vector.build", attribute.Int("chunks", len(chunks)))
	n, err := i.build(ctx, chunks)
	telemetry.End(span, err)
	return n, err
}

func (i *Index) build(ctx context.Context, chunks []document.Chunk) (int, error) {
	if len(chunks) == 0 {
		i.logger.Warn("no chunks to index")
		i.swap(ctx, &snapshot{builtAt: time.Now().UTC()})
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Text
	}
	vectors, err := i.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}
	return i.install(ctx, chunks, vectors)
}

func (i *Index) install(ctx context.Context, chunks []document.Chunk, vectors [][]float32) (int, error) {
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("vector: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	for n, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("vector: chunk %d has dimension %d, want %d", n, len(v), dim)
		}
	}

	generation := "gen_" + uuid.NewString()[:8]
	err := retry.Do(ctx, i.policy, "vector create", func(ctx context.Context) error {
		return i.engine.Create(ctx, generation, vectors)
	})
	if err != nil {
		return 0, err
	}

	i.swap(ctx, &snapshot{
		generation: generation,
		chunks:     chunks,
		vectors:    vectors,
		builtAt:    time.Now().UTC(),
	})
	i.logger.Info("index built", "engine", i.engine.Name(), "generation", generation, "vectors", len(vectors), "dim", dim)
	return len(chunks), nil
}

// swap installs next. The previous generation is dropped once its last reader releases it.
func (i *Index) swap(ctx context.Context, next *snapshot) {
	i.refMu.Lock()
	prev := i.current.Swap(next)
	drop := false
	if prev != nil {
		prev.retired = true
		drop = prev.readers == 0
	}
	i.refMu.Unlock()
	if drop {
		i.drop(ctx, prev)
	}
}

func (i *Index) acquire() *snapshot {
	i.refMu.Lock()
	defer i.refMu.Unlock()
	snap := i.current.Load()
	if snap != nil {
		snap.readers++
	}
	return snap
}

func (i *Index) release(ctx context.Context, snap *snapshot) {
	i.refMu.Lock()
	snap.readers--
	drop := snap.retired && snap.readers == 0
	i.refMu.Unlock()
	if drop {
		i.drop(context.WithoutCancel(ctx), snap)
	}
}

func (i *Index) drop(ctx context.Context, snap *snapshot) {
	if snap.generation == "" {
		return
	}
	if err := i.engine.Drop(ctx, snap.generation); err != nil {
		i.logger.Warn("failed to drop old generation", "generation", snap.generation, "error", err)
		return
	}
	i.logger.Debug("dropped old generation", "generation", snap.generation)
}

// Rebuild reloads from source and builds. Concurrent callers share one rebuild.
func (i *Index) Rebuild(ctx context.Context, source Source) (int, error) {
	v, err, shared := i.group.Do("rebuild", func() (any, error) {
		chunks, err := source(ctx)
		if err != nil {
			return 0, fmt.Errorf("vector: load chunks: %w", err)
		}
		return i.Build(ctx, chunks)
	})
	if shared {
		i.logger.Debug("joined in-flight rebuild")
	}
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Retrieve returns up to k chunks nearest to query. An empty index yields no matches.
// The snapshot loaded at the start stays searchable until Retrieve returns, even if a
// rebuild swaps in a new one meanwhile.
func (i *Index) Retrieve(ctx context.Context, query string, k int) ([]Match, error) {
	snap := i.acquire()
	if snap != nil {
		defer i.release(ctx, snap)
	}
	if snap == nil || len(snap.chunks) == 0 {
		i.logger.Warn("vector index is empty, returning no results")
		return nil, nil
	}
	if k <= 0 {
		k = 3
	}

	ctx, span := telemetry.Start(ctx, "vector.retrieve", attribute.Int("k", k))
	matches, err := i.retrieve(ctx, snap, query, k)
	telemetry.End(span, err)
	return matches, err
}

func (i *Index) retrieve(ctx context.Context, snap *snapshot, query string, k int) ([]Match, error) {
	var qvec []float32
	err := retry.Do(ctx, i.policy, "embed query", func(ctx context.Context) error {
		v, err := i.embedder.Embed(ctx, query)
		qvec = v
		return err
	})
	if err != nil {
		return nil, err
	}

	var hits []Hit
	err = retry.Do(ctx, i.policy, "vector search", func(ctx context.Context) error {
		h, err := i.engine.Search(ctx, snap.generation, qvec, k)
		hits = h
		return err
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		if h.ID < 0 || h.ID >= len(snap.chunks) {
			continue
		}
		matches = append(matches, Match{Chunk: snap.chunks[h.ID], Distance: h.Distance})
	}
	return matches, nil
}

func (i *Index) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.batchSize {
		batch := texts[start:min(start+i.batchSize, len(texts))]
		var vecs [][]float32
		err := retry.Do(ctx, i.policy, "embed batch", func(ctx context.Context) error {
			v, err := i.embedder.EmbedBatch(ctx, batch)
			vecs = v
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("vector: embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (i *Index) snapshotOrErr() (*snapshot, error) {
	snap := i.current.Load()
	if snap == nil || len(snap.chunks) == 0 {
		return nil, errors.ErrIndexEmpty
	}
	return snap, nil
}
