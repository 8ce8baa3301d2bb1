// Package llm is the single call site for language-model requests. It resolves
// per-role parameters, memoizes backend clients and applies the retry policy.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/retry"
	"github.com/sweetpotato0/travel-router/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Completion is the text and token usage reported by a backend.
type Completion struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// maxClients bounds the client memo. Overrides make the key space open-ended.
const maxClients = 16

// Client sends one prompt to one configured model.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// Factory builds a client for a resolved parameter set.
type Factory func(Params) (Client, error)

// TokenCounter estimates token counts when a backend reports none.
type TokenCounter interface {
	Count(text string) int
}

// Request is one model invocation.
type Request struct {
	Role      Role
	Prompt    string
	Overrides *Overrides
	// Usage receives the token counts of this call. May be nil.
	Usage *Usage
}

// Gateway resolves parameters and dispatches prompts to memoized clients.
type Gateway struct {
	backend    string
	factory    Factory
	governance Governance
	defaults   Governance
	policy     retry.Policy
	counter    TokenCounter
	logger     *slog.Logger

	mu      sync.Mutex
	clients *lru.Cache[Params, Client]
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithGovernance installs the governance parameter table.
func WithGovernance(g Governance) Option {
	return func(gw *Gateway) {
		gw.governance = g
	}
}

// WithDefaults replaces the built-in defaults table.
func WithDefaults(d Governance) Option {
	return func(gw *Gateway) {
		if d != nil {
			gw.defaults = d
		}
	}
}

// WithRetryPolicy sets the per-attempt timeout and retry budget.
func WithRetryPolicy(p retry.Policy) Option {
	return func(gw *Gateway) {
		gw.policy = p
	}
}

// WithTokenCounter sets the fallback token estimator.
func WithTokenCounter(c TokenCounter) Option {
	return func(gw *Gateway) {
		gw.counter = c
	}
}

// WithLogger sets the logger used for retries and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(gw *Gateway) {
		if logger != nil {
			gw.logger = logger
		}
	}
}

// NewGateway creates a gateway for backend.
func NewGateway(backend string, factory Factory, opts ...Option) *Gateway {
	if factory == nil {
		panic("llm: factory cannot be nil")
	}
	gw := &Gateway{
		backend:  backend,
		factory:  factory,
		defaults: Defaults(),
		policy:   retry.Default(),
		logger:   logging.WithComponent("llm"),
	}
	gw.clients, _ = lru.New[Params, Client](maxClients)
	for _, opt := range opts {
		if opt != nil {
			opt(gw)
		}
	}
	if gw.policy.Logger == nil {
		gw.policy.Logger = gw.logger
	}
	return gw
}

// Backend returns the active backend name.
func (g *Gateway) Backend() string {
	return g.backend
}

// Resolve returns the parameters a request for role would run with.
func (g *Gateway) Resolve(role Role, o *Overrides) Params {
	return Resolve(g.backend, role, g.governance, o, g.defaults)
}

// Invoke sends the prompt and returns the trimmed response text.
func (g *Gateway) Invoke(ctx context.Context, req Request) (string, error) {
	params := g.Resolve(req.Role, req.Overrides)
	ctx, span := telemetry.Start(ctx, "llm.invoke",
		attribute.String("llm.backend", params.Backend),
		attribute.String("llm.role", string(params.Role)),
		attribute.String("llm.model", params.Model),
	)

	client, err := g.client(params)
	if err != nil {
		telemetry.End(span, err)
		return "", err
	}

	var completion *Completion
	err = retry.Do(ctx, g.policy, "llm "+string(req.Role), func(ctx context.Context) error {
		c, callErr := client.Complete(ctx, req.Prompt)
		if callErr != nil {
			return callErr
		}
		completion = c
		return nil
	})
	if err != nil {
		g.logger.Error("model call failed", "params", params.String(), "error", err)
		telemetry.End(span, err)
		return "", err
	}

	promptTokens, completionTokens := completion.PromptTokens, completion.CompletionTokens
	if promptTokens+completionTokens == 0 && g.counter != nil {
		promptTokens = int64(g.counter.Count(req.Prompt))
		completionTokens = int64(g.counter.Count(completion.Text))
	}
	req.Usage.Add(promptTokens, completionTokens)
	span.SetAttributes(attribute.Int64("llm.tokens", promptTokens+completionTokens))
	telemetry.End(span, nil)

	return strings.TrimSpace(completion.Text), nil
}

func (g *Gateway) client(params Params) (Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients.Get(params); ok {
		return c, nil
	}
	c, err := g.factory(params)
	if err != nil {
		return nil, fmt.Errorf("llm: create %s client: %w", params.Backend, err)
	}
	g.clients.Add(params, c)
	g.logger.Debug("model client created", "params", params.String())
	return c, nil
}

// CachedClients reports how many distinct parameter sets have a live client.
func (g *Gateway) CachedClients() int {
	return g.clients.Len()
}

// Invoker is what pipeline stages depend on. *Gateway satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
