// Package rag answers policy questions from retrieved document chunks and checks that
// the answer is supported by them.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/travel-router/llm"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/telemetry"
	"github.com/sweetpotato0/travel-router/prompt"
	"github.com/sweetpotato0/travel-router/vector"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 3

// NoContextAnswer is returned when retrieval finds nothing.
const NoContextAnswer = "I don't have enough information in the travel policies to answer that."

// UngroundedAnswer replaces an answer that failed verification.
const UngroundedAnswer = NoContextAnswer + " Please consult the full policy documents or contact HR."

const noChunksExplanation = "no chunks retrieved"

// Retriever returns the chunks nearest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]vector.Match, error)
}

// Source cites one retrieved chunk.
type Source struct {
	DocID       string `json:"doc_id"`
	ChunkID     int    `json:"chunk_id"`
	TextSnippet string `json:"text_snippet"`
}

// Result is the outcome of Answer.
type Result struct {
	Answer      string
	Sources     []Source
	Grounded    bool
	Explanation string
	Confidence  float64
}

// Pipeline runs retrieve, generate and verify.
type Pipeline struct {
	retriever Retriever
	model     llm.Invoker
	prompts   *prompt.Manager
	topK      int
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTopK sets how many chunks are retrieved.
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithPrompts replaces the prompt set.
func WithPrompts(m *prompt.Manager) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.prompts = m
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline.
func New(retriever Retriever, model llm.Invoker, opts ...Option) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("rag: retriever cannot be nil")
	}
	if model == nil {
		return nil, fmt.Errorf("rag: model cannot be nil")
	}
	p := &Pipeline{
		retriever: retriever,
		model:     model,
		prompts:   prompt.Default(),
		topK:      DefaultTopK,
		logger:    logging.WithComponent("rag"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Answer retrieves context for query, generates an answer with the generator role and
// verifies it with the classifier role. An answer that fails verification is replaced
// with UngroundedAnswer.
func (p *Pipeline) Answer(ctx context.Context, query string, overrides *llm.Overrides, usage *llm.Usage) (*Result, error) {
	ctx, span := telemetry.Start(ctx, "rag.answer")

	matches, err := p.retriever.Retrieve(ctx, query, p.topK)
	if err != nil {
		telemetry.End(span, err)
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	span.SetAttributes(attribute.Int("chunks", len(matches)))
	if len(matches) == 0 {
		p.logger.Info("no chunks retrieved")
		telemetry.End(span, nil)
		return &Result{Answer: NoContextAnswer, Explanation: noChunksExplanation}, nil
	}

	blocks := make([]string, len(matches))
	sources := make([]Source, len(matches))
	for i, m := range matches {
		blocks[i] = fmt.Sprintf("[Source %d]: %s", i+1, m.Text)
		sources[i] = Source{DocID: m.DocID, ChunkID: m.ChunkID, TextSnippet: m.Snippet()}
	}
	contextText := strings.Join(blocks, "\n\n")

	text, err := p.prompts.Render(prompt.RAGAnswer, map[string]any{"context": contextText, "question": query})
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}
	answer, err := p.model.Invoke(ctx, llm.Request{Role: llm.RoleGenerator, Prompt: text, Overrides: overrides, Usage: usage})
	if err != nil {
		telemetry.End(span, err)
		return nil, fmt.Errorf("rag: generate: %w", err)
	}
	p.logger.Info("answer generated", "chars", len(answer))

	verdict, err := p.verify(ctx, contextText, query, answer, overrides, usage)
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}
	if !verdict.Grounded {
		p.logger.Warn("answer failed groundedness check, returning fallback", "explanation", verdict.Explanation)
		answer = UngroundedAnswer
	}
	span.SetAttributes(attribute.Bool("grounded", verdict.Grounded))
	telemetry.End(span, nil)

	return &Result{
		Answer:      answer,
		Sources:     sources,
		Grounded:    verdict.Grounded,
		Explanation: verdict.Explanation,
		Confidence:  verdict.Confidence,
	}, nil
}
