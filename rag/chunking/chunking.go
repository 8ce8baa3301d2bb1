package chunking

import (
	"strings"

	"github.com/sweetpotato0/travel-router/rag/document"
)

// Defaults for the word chunker.
const (
	DefaultChunkSize = 300
	DefaultOverlap   = 75
)

// Chunker splits documents into chunks that can be embedded and indexed.
type Chunker interface {
	Chunk(doc document.Document) []document.Chunk
}

type Options struct {
	ChunkSize int
	Overlap   int
}

// Option customizes the word chunker.
type Option func(*Options)

// WithChunkSize overrides the default chunk size (words).
func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithOverlap configures overlap (words) between consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(o *Options) {
		if overlap >= 0 {
			o.Overlap = overlap
		}
	}
}

// WordChunker slides a fixed window of whitespace-separated words over the document.
type WordChunker struct {
	size    int
	overlap int
}

// NewWordChunker constructs a chunker, 300 words with 75 overlap unless overridden.
func NewWordChunker(opts ...Option) *WordChunker {
	cfg := &Options{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &WordChunker{
		size:    cfg.ChunkSize,
		overlap: cfg.Overlap,
	}
}

// Chunk splits the document. Windows advance by max(size-overlap, 1) words and the
// last windows may be shorter than size.
func (c *WordChunker) Chunk(doc document.Document) []document.Chunk {
	words := strings.Fields(doc.Content)
	step := max(c.size-c.overlap, 1)

	var chunks []document.Chunk
	for start := 0; start < len(words); start += step {
		end := min(start+c.size, len(words))
		chunks = append(chunks, document.Chunk{
			DocID:   doc.ID,
			ChunkID: len(chunks),
			Text:    strings.Join(words[start:end], " "),
		})
	}
	return chunks
}
