package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/thread"
)

// DefaultDir is where FileStore keeps threads when no directory is configured.
const DefaultDir = ".threads"

// FileStore persists one JSON file per thread.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thread dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes t through a temp file and rename so readers never see a partial file.
func (s *FileStore) Save(_ context.Context, t *thread.Thread) error {
	if t == nil {
		return fmt.Errorf("%w: thread cannot be nil", errors.ErrInvalidInput)
	}
	path, ok := s.path(t.ID)
	if !ok {
		return fmt.Errorf("%w: thread id %q", errors.ErrInvalidInput, t.ID)
	}
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode thread: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, t.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("write thread: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write thread: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write thread: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write thread: %w", err)
	}
	return nil
}

// Load reads a thread file.
func (s *FileStore) Load(_ context.Context, id string) (*thread.Thread, error) {
	path, ok := s.path(id)
	if !ok {
		return nil, fmt.Errorf("thread %q: %w", id, errors.ErrNotFound)
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("thread %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read thread: %w", err)
	}
	var t thread.Thread
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode thread %s: %w", id, err)
	}
	return &t, nil
}

// Delete removes a thread file.
func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	path, ok := s.path(id)
	if !ok {
		return false, nil
	}
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete thread: %w", err)
	}
	return true, nil
}

// List returns the ids of all thread files.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

// path maps an id to its file. Ids that could escape the directory are refused.
func (s *FileStore) path(id string) (string, bool) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", false
	}
	return filepath.Join(s.dir, id+".json"), true
}
