package vector

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sweetpotato0/travel-router/rag/document"
)

type persisted struct {
	Engine  string           `json:"engine"`
	BuiltAt time.Time        `json:"built_at"`
	Chunks  []document.Chunk `json:"chunks"`
	Vectors [][]float32      `json:"vectors"`
}

// Persist writes the served snapshot to path. The file is replaced atomically.
func (i *Index) Persist(path string) error {
	snap, err := i.snapshotOrErr()
	if err != nil {
		return err
	}

	data, err := json.Marshal(persisted{
		Engine:  i.engine.Name(),
		BuiltAt: snap.builtAt,
		Chunks:  snap.chunks,
		Vectors: snap.vectors,
	})
	if err != nil {
		return fmt.Errorf("vector: encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vector: create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("vector: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("vector: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vector: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("vector: replace snapshot: %w", err)
	}
	i.logger.Info("index saved", "path", path, "chunks", len(snap.chunks))
	return nil
}

// RemoveSnapshot deletes a persisted snapshot. A missing file is not an error.
func RemoveSnapshot(path string) error {
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vector: remove snapshot: %w", err)
	}
	return nil
}

// Load restores a persisted snapshot without re-embedding. It reports false when path
// does not exist.
func (i *Index) Load(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vector: read snapshot: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("vector: decode snapshot: %w", err)
	}
	if len(p.Chunks) == 0 {
		return false, nil
	}

	i.buildMu.Lock()
	defer i.buildMu.Unlock()
	n, err := i.install(ctx, p.Chunks, p.Vectors)
	if err != nil {
		return false, err
	}
	i.logger.Info("loaded index snapshot", "path", path, "chunks", n, "built_at", p.BuiltAt)
	return true, nil
}
