package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweetpotato0/travel-router/pkg/logging"
)

type lineChunker struct{}

func (lineChunker) Chunk(doc Document) []Chunk {
	var out []Chunk
	for _, line := range strings.Split(strings.TrimSpace(doc.Content), "\n") {
		out = append(out, Chunk{DocID: doc.ID, ChunkID: len(out), Text: line})
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoaderReadsSupportedFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_visa.md", "visa line one\nvisa line two")
	writeFile(t, dir, "a_expenses.txt", "expenses line")
	writeFile(t, dir, "notes.pdf", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir, lineChunker{}, WithLoaderLogger(logging.Discard()))
	chunks, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].DocID != "a_expenses" || chunks[1].DocID != "b_visa" || chunks[2].ChunkID != 1 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}

func TestLoaderMissingDirectory(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing"), lineChunker{}, WithLoaderLogger(logging.Discard()))
	chunks, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestLoaderConverter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "policy.HTML", "<p>x</p>")

	loader := NewLoader(dir, lineChunker{},
		WithLoaderLogger(logging.Discard()),
		WithConverter(".html", func(raw string) (string, error) { return "converted", nil }))
	chunks, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "converted" || chunks[0].DocID != "policy" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}

func TestWatcherTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir, lineChunker{}, WithLoaderLogger(logging.Discard()))

	var calls atomic.Int32
	done := make(chan struct{}, 1)
	w := NewWatcher(loader, 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})
	w.logger = logging.Discard()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "ignored.pdf", "x")
	writeFile(t, dir, "policy.txt", "a")
	writeFile(t, dir, "policy.txt", "a\nb")

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() < 1 {
		t.Fatal("expected at least one rebuild")
	}
}
