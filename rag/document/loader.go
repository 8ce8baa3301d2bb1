package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sweetpotato0/travel-router/pkg/logging"
)

// Chunker cuts a document into chunks. rag/chunking provides the word chunker.
type Chunker interface {
	Chunk(doc Document) []Chunk
}

// Converter turns raw file bytes into plain text.
type Converter func(raw string) (string, error)

// Loader reads a policy directory and chunks every supported file.
type Loader struct {
	dir        string
	chunker    Chunker
	converters map[string]Converter
	logger     *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConverter registers a converter for a file extension such as ".html".
func WithConverter(ext string, c Converter) LoaderOption {
	return func(l *Loader) {
		l.converters[strings.ToLower(ext)] = c
	}
}

// WithLoaderLogger sets the loader logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func plainText(raw string) (string, error) { return raw, nil }

// NewLoader creates a loader for dir. .txt and .md files are read as-is.
func NewLoader(dir string, chunker Chunker, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:     dir,
		chunker: chunker,
		converters: map[string]Converter{
			".txt": plainText,
			".md":  plainText,
		},
		logger: logging.WithComponent("loader"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Dir returns the corpus directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Supported reports whether path has a loadable extension.
func (l *Loader) Supported(path string) bool {
	_, ok := l.converters[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load reads files in name order. The document id is the file name without extension.
// A missing directory yields no chunks and a warning.
func (l *Loader) Load(ctx context.Context) ([]Chunk, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("policy directory not found", "dir", l.dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", l.dir, err)
	}

	var chunks []Chunk
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		convert, ok := l.converters[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("document: read %s: %w", path, err)
		}
		text, err := convert(strings.ToValidUTF8(string(raw), "�"))
		if err != nil {
			return nil, fmt.Errorf("document: convert %s: %w", path, err)
		}

		doc := Document{
			ID:      strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:    path,
			Content: text,
		}
		docChunks := l.chunker.Chunk(doc)
		chunks = append(chunks, docChunks...)
		l.logger.Info("loaded document", "file", entry.Name(), "chunks", len(docChunks))
	}

	l.logger.Info("total document chunks", "chunks", len(chunks))
	return chunks, nil
}
