// Package provider selects the model backend for the LLM gateway.
package provider

import (
	"fmt"

	"github.com/sweetpotato0/travel-router/contrib/provider/claude"
	"github.com/sweetpotato0/travel-router/contrib/provider/ollama"
	"github.com/sweetpotato0/travel-router/contrib/provider/openai"
	"github.com/sweetpotato0/travel-router/llm"
)

// Credentials carries the per-backend connection settings.
type Credentials struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OllamaBaseURL    string
}

// NewFactory returns an llm.Factory building clients for the backend named in Params.
func NewFactory(creds Credentials) llm.Factory {
	return func(p llm.Params) (llm.Client, error) {
		switch p.Backend {
		case llm.BackendLocal:
			return ollama.New(ollama.FromParams(creds.OllamaBaseURL, p))
		case llm.BackendOpenAI:
			return openai.New(openai.FromParams(creds.OpenAIAPIKey, creds.OpenAIBaseURL, p))
		case llm.BackendAnthropic:
			return claude.New(claude.FromParams(creds.AnthropicAPIKey, creds.AnthropicBaseURL, p))
		default:
			return nil, fmt.Errorf("provider: unsupported backend %q", p.Backend)
		}
	}
}
