package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/sweetpotato0/travel-router/llm"
)

const defaultMaxTokens = 1024

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
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

// Provider is an llm.Client backed by the Messages API.
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using official SDK
func New(config *Config) (*Provider, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("claude: api key is required")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}, nil
}

// Complete sends prompt as a single user turn and joins the text blocks of the reply.
func (p *Provider) Complete(ctx context.Context, prompt string) (*llm.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.config.Model),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   p.config.MaxTokens,
		Temperature: param.NewOpt(p.config.Temperature),
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude: create message: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.Completion{
		Text:             text.String(),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}
