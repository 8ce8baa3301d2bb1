package router

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sweetpotato0/travel-router/llm"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/telemetry"
	"github.com/sweetpotato0/travel-router/prompt"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultThreshold is the confidence a rule decision must exceed to skip the model.
const DefaultThreshold = 0.85

const defaultReasoning = "LLM classification"

// Router is the hybrid classifier.
type Router struct {
	rules   *RuleEngine
	model   llm.Invoker
	prompts *prompt.Manager
	logger  *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPrompts replaces the prompt set.
func WithPrompts(m *prompt.Manager) Option {
	return func(r *Router) {
		if m != nil {
			r.prompts = m
		}
	}
}

// New creates a router. A nil rule engine uses the default tables.
func New(engine *RuleEngine, model llm.Invoker, opts ...Option) (*Router, error) {
	if model == nil {
		return nil, fmt.Errorf("router: model cannot be nil")
	}
	if engine == nil {
		var err error
		if engine, err = NewRuleEngine(RuleConfig{}); err != nil {
			return nil, err
		}
	}
	r := &Router{
		rules:   engine,
		model:   model,
		prompts: prompt.Default(),
		logger:  logging.WithComponent("router"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Classify routes query. A rule decision wins only when its confidence is strictly above
// threshold; otherwise the classifier model decides. Token usage is added to usage.
func (r *Router) Classify(ctx context.Context, query string, overrides *llm.Overrides, threshold float64, usage *llm.Usage) (Decision, error) {
	ctx, span := telemetry.Start(ctx, "router.classify")

	if d, ok := r.rules.Match(query); ok && d.Confidence > threshold {
		r.logger.Info("rule-based route", "route", d.Route, "confidence", d.Confidence)
		span.SetAttributes(attribute.String("route", string(d.Route)), attribute.Bool("rule", true))
		telemetry.End(span, nil)
		return d, nil
	}

	r.logger.Info("falling back to LLM classifier")
	text, err := r.prompts.Render(prompt.Router, map[string]any{"query": query})
	if err != nil {
		telemetry.End(span, err)
		return Decision{}, err
	}
	raw, err := r.model.Invoke(ctx, llm.Request{Role: llm.RoleClassifier, Prompt: text, Overrides: overrides, Usage: usage})
	if err != nil {
		telemetry.End(span, err)
		return Decision{}, fmt.Errorf("router: classify: %w", err)
	}
	r.logger.Debug("LLM router raw output", "raw", raw)

	d := ParseDecision(raw)
	r.logger.Info("LLM route", "route", d.Route, "confidence", d.Confidence)
	span.SetAttributes(attribute.String("route", string(d.Route)), attribute.Bool("rule", false))
	telemetry.End(span, nil)
	return d, nil
}

// ParseDecision reads ROUTE, CONFIDENCE and REASONING lines. Unknown routes become
// OUT_OF_SCOPE and an unreadable confidence becomes 0.5.
func ParseDecision(raw string) Decision {
	d := Decision{Route: OutOfScope, Confidence: 0.5, Reasoning: defaultReasoning}
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := field(line)
		if !ok {
			continue
		}
		switch key {
		case "ROUTE":
			d.Route, _ = ParseRoute(strings.ToUpper(value))
		case "CONFIDENCE":
			c, err := strconv.ParseFloat(value, 64)
			if err != nil {
				d.Confidence = 0.5
				continue
			}
			d.Confidence = clamp(c)
		case "REASONING":
			d.Reasoning = value
		}
	}
	return d
}

// field splits a "KEY: value" line. The key is matched case-insensitively.
func field(line string) (string, string, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok {
		return "", "", false
	}
	return strings.ToUpper(key), strings.TrimSpace(value), true
}
