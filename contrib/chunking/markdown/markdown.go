// Package markdown chunks policy documents along their heading structure so a chunk
// never straddles two policy sections.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sweetpotato0/travel-router/rag/chunking"
	"github.com/sweetpotato0/travel-router/rag/document"
)

// Chunker splits documents by heading using a goldmark AST, then windows each section
// with a word chunker. Documents without headings chunk exactly like the word chunker.
type Chunker struct {
	maxHeadingLevel int
	minWords        int
	window          document.Chunker
	parser          goldmark.Markdown
}

// Option customises the markdown chunker.
type Option func(*Chunker)

// WithMaxHeadingLevel caps which heading level starts a new section (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(c *Chunker) {
		if level > 0 {
			c.maxHeadingLevel = level
		}
	}
}

// WithMinWords merges a section shorter than n words into the next one (default 40).
func WithMinWords(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minWords = n
		}
	}
}

// WithWindow swaps the chunker applied inside each section.
func WithWindow(ch document.Chunker) Option {
	return func(c *Chunker) {
		if ch != nil {
			c.window = ch
		}
	}
}

func New(opts ...Option) *Chunker {
	ch := &Chunker{
		maxHeadingLevel: 3,
		minWords:        40,
		window:          chunking.NewWordChunker(),
		parser:          goldmark.New(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Chunk implements document.Chunker. Chunk ids run across sections in document order.
func (c *Chunker) Chunk(doc document.Document) []document.Chunk {
	var chunks []document.Chunk
	for _, sec := range c.sections(doc.Content) {
		for _, part := range c.window.Chunk(document.Document{ID: doc.ID, Path: doc.Path, Content: sec}) {
			part.DocID = doc.ID
			part.ChunkID = len(chunks)
			chunks = append(chunks, part)
		}
	}
	return chunks
}

func (c *Chunker) sections(content string) []string {
	source := []byte(content)
	root := c.parser.Parser().Parse(text.NewReader(source))

	var starts []int
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level > c.maxHeadingLevel {
			return ast.WalkContinue, nil
		}
		lines := heading.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		// Lines start after the "#" marker; back up to the line start.
		start := lines.At(0).Start
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		starts = append(starts, start)
		return ast.WalkSkipChildren, nil
	})

	if len(starts) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []string{content}
	}

	var raw []string
	if intro := strings.TrimSpace(string(source[:starts[0]])); intro != "" {
		raw = append(raw, intro)
	}
	for i, start := range starts {
		end := len(source)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if sec := strings.TrimSpace(string(source[start:end])); sec != "" {
			raw = append(raw, sec)
		}
	}
	return c.mergeShort(raw)
}

func (c *Chunker) mergeShort(sections []string) []string {
	if c.minWords <= 0 {
		return sections
	}
	merged := make([]string, 0, len(sections))
	var pending string
	for i, sec := range sections {
		if pending != "" {
			sec = pending + "\n\n" + sec
			pending = ""
		}
		if len(strings.Fields(sec)) < c.minWords && i < len(sections)-1 {
			pending = sec
			continue
		}
		merged = append(merged, sec)
	}
	return merged
}
