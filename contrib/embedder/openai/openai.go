package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sweetpotato0/travel-router/vector"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = string(openaisdk.EmbeddingModelTextEmbedding3Small)

// OpenAIEmbedder implements vector.Embedder by using openai.
type OpenAIEmbedder struct {
	client    openaisdk.Client
	model     openaisdk.EmbeddingModel
	dimension int
}

// New create OpenAIEmbedder.
func New(apiKey, baseURL, model string, dimension int) (vector.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedder: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if dimension <= 0 {
		dimension = 1536
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		client:    openaisdk.NewClient(opts...),
		model:     openaisdk.EmbeddingModel(model),
		dimension: dimension,
	}, nil
}

// Dimension return number of embedding dimensions
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed converts text to a vector embedding
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts to embeddings
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, emb := range resp.Data {
		if emb.Index < 0 || int(emb.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", emb.Index)
		}
		out[emb.Index] = convertVector(emb.Embedding, e.dimension)
	}
	return out, nil
}

func convertVector(input []float64, expected int) []float32 {
	vec := make([]float32, expected)
	for i := 0; i < len(input) && i < expected; i++ {
		vec[i] = float32(input[i])
	}
	return vec
}
