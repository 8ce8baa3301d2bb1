package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/sweetpotato0/travel-router/llm"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// FromParams builds a provider config from resolved gateway parameters.
func FromParams(apiKey, baseURL string, p llm.Params) *Config {
	return &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       p.Model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
}

// Provider is an llm.Client backed by the chat completions API.
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider using official SDK
func New(config *Config) (*Provider, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if config.Model == "" {
		config.Model = string(openai.ChatModelGPT4oMini)
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(options...),
	}, nil
}

// Complete sends prompt as a single user message.
func (p *Provider) Complete(ctx context.Context, prompt string) (*llm.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(p.config.Model),
		// zero is a meaningful temperature for classification
		Temperature: param.NewOpt(p.config.Temperature),
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(p.config.MaxTokens)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	return &llm.Completion{
		Text:             completion.Choices[0].Message.Content,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}
