package markdown

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sweetpotato0/travel-router/rag/chunking"
	"github.com/sweetpotato0/travel-router/rag/document"
)

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestChunkerSplitsByHeadings(t *testing.T) {
	ch := New(WithMaxHeadingLevel(2), WithMinWords(0))
	doc := document.Document{
		ID:      "flight_policy",
		Content: "# Flights\n\nEconomy for short trips.\n\n## Business class\n\nAllowed above six hours.\n\n### Upgrades\n\nNever reimbursed.\n",
	}

	chunks := ch.Chunk(doc)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0].Text, "# Flights") {
		t.Fatalf("first chunk should open with its heading: %q", chunks[0].Text)
	}
	if !strings.Contains(chunks[1].Text, "Upgrades") {
		t.Fatalf("level 3 heading should stay inside its parent section: %q", chunks[1].Text)
	}
	for i, c := range chunks {
		if c.ChunkID != i || c.DocID != "flight_policy" {
			t.Fatalf("chunk %d: got id %d doc %q", i, c.ChunkID, c.DocID)
		}
	}
}

func TestChunkerMergesShortSections(t *testing.T) {
	ch := New(WithMinWords(5))
	doc := document.Document{
		ID:      "visa",
		Content: "# A\n\none two\n\n# B\n\n" + words("b", 10) + "\n",
	}

	chunks := ch.Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected the short section to merge, got %d chunks", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Text, "# A one two # B") {
		t.Fatalf("unexpected merged text %q", chunks[0].Text)
	}
}

func TestChunkerWindowsLongSections(t *testing.T) {
	ch := New(WithWindow(chunking.NewWordChunker(chunking.WithChunkSize(10), chunking.WithOverlap(0))), WithMinWords(0))
	doc := document.Document{ID: "per_diem", Content: "# Rates\n\n" + words("r", 25) + "\n\n# Receipts\n\nkeep them\n"}

	chunks := ch.Chunk(doc)
	// 27 words in the first section give 3 windows, the second section one more.
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if chunks[3].ChunkID != 3 || !strings.HasPrefix(chunks[3].Text, "# Receipts") {
		t.Fatalf("unexpected last chunk %+v", chunks[3])
	}
}

func TestChunkerPlainTextMatchesWordChunker(t *testing.T) {
	doc := document.Document{ID: "plain", Content: words("w", 700)}
	got := New().Chunk(doc)
	want := chunking.NewWordChunker().Chunk(doc)
	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("chunk %d differs: %+v vs %+v", i, got[i], want[i])
		}
	}
}
