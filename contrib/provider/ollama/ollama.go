// Package ollama talks to a local Ollama server over its REST API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sweetpotato0/travel-router/llm"
)

// DefaultBaseURL is the address Ollama listens on out of the box.
const DefaultBaseURL = "http://localhost:11434"

// Config holds Ollama provider configuration
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	NumPredict  int64
	TopP        float64
	TopK        int64
	Format      string
	HTTPClient  *http.Client
}

// FromParams builds a provider config from resolved gateway parameters.
func FromParams(baseURL string, p llm.Params) *Config {
	return &Config{
		BaseURL:     baseURL,
		Model:       p.Model,
		Temperature: p.Temperature,
		NumPredict:  p.MaxTokens,
		TopP:        p.TopP,
		TopK:        p.TopK,
		Format:      p.Format,
	}
}

// Provider is an llm.Client backed by /api/generate.
type Provider struct {
	config *Config
	client *http.Client
}

// New creates a provider. The HTTP client carries no timeout of its own; deadlines come from ctx.
func New(config *Config) (*Provider, error) {
	if config == nil || config.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Provider{config: config, client: client}, nil
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int64   `json:"num_predict,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int64   `json:"top_k,omitempty"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Format  string  `json:"format,omitempty"`
	Options options `json:"options"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Complete runs a non-streaming generation.
func (p *Provider) Complete(ctx context.Context, prompt string) (*llm.Completion, error) {
	body, err := json.Marshal(generateRequest{
		Model:  p.config.Model,
		Prompt: prompt,
		Format: p.config.Format,
		Options: options{
			Temperature: p.config.Temperature,
			NumPredict:  p.config.NumPredict,
			TopP:        p.config.TopP,
			TopK:        p.config.TopK,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ollama: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, out.Error)
	}

	return &llm.Completion{
		Text:             out.Response,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}
