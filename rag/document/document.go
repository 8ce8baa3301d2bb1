// Package document defines policy documents and the chunks cut from them,
// and loads them from a corpus directory.
package document

import "unicode/utf8"

// SnippetLength is the citation snippet size in characters.
const SnippetLength = 200

// Document is one policy file.
type Document struct {
	ID      string `json:"id"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content"`
}

// Chunk is a window of a document. ChunkID is the position within the document, so it is
// stable across rebuilds as long as file order and chunking parameters do not change.
type Chunk struct {
	DocID   string `json:"doc_id"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
}

// Snippet returns the first SnippetLength characters of the chunk text.
func (c Chunk) Snippet() string {
	if utf8.RuneCountInString(c.Text) <= SnippetLength {
		return c.Text
	}
	runes := []rune(c.Text)
	return string(runes[:SnippetLength])
}
