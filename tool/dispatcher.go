package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/llm"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/telemetry"
	"github.com/sweetpotato0/travel-router/prompt"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher extracts a tool call from a query with the classifier model and runs it.
type Dispatcher struct {
	registry *Registry
	model    llm.Invoker
	prompts  *prompt.Manager
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithPrompts replaces the prompt set.
func WithPrompts(m *prompt.Manager) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.prompts = m
		}
	}
}

// NewDispatcher creates a dispatcher over registry. A nil registry holds the builtin tools.
func NewDispatcher(registry *Registry, model llm.Invoker, opts ...Option) (*Dispatcher, error) {
	if model == nil {
		return nil, fmt.Errorf("tool: model cannot be nil")
	}
	if registry == nil {
		var err error
		if registry, err = NewRegistry(Builtin()...); err != nil {
			return nil, err
		}
	}
	d := &Dispatcher{
		registry: registry,
		model:    model,
		prompts:  prompt.Default(),
		logger:   logging.WithComponent("tool"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Execute asks the model which tool and parameters the query needs, validates them and
// runs the tool. Names outside the registry are rejected and never executed.
func (d *Dispatcher) Execute(ctx context.Context, query string, overrides *llm.Overrides, usage *llm.Usage) (*Result, error) {
	ctx, span := telemetry.Start(ctx, "tool.execute")

	text, err := d.prompts.Render(prompt.ToolExtraction, map[string]any{
		"tools": d.registry.Signatures(),
		"query": query,
	})
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}
	raw, err := d.model.Invoke(ctx, llm.Request{Role: llm.RoleClassifier, Prompt: text, Overrides: overrides, Usage: usage})
	if err != nil {
		telemetry.End(span, err)
		return nil, fmt.Errorf("tool: extract: %w", err)
	}
	d.logger.Debug("tool extraction raw output", "raw", raw)

	name, args := ParseExtraction(raw)
	span.SetAttributes(attribute.String("tool", name))
	t, err := d.registry.Get(name)
	if name == "" || err != nil {
		err = &failure{msg: fmt.Sprintf("Could not identify a valid tool for this query (got: %s)", name), kind: errors.ErrUnknownTool}
		d.logger.Warn("unknown tool requested", "tool", name)
		telemetry.End(span, err)
		return nil, err
	}

	res, err := t.Run(ctx, args)
	if err != nil {
		d.logger.Warn("tool call failed", "tool", name, "error", err)
		telemetry.End(span, err)
		return nil, err
	}
	d.logger.Info("tool executed", "tool", name, "source", res.Source)
	telemetry.End(span, nil)
	return res, nil
}

// ParseExtraction reads the TOOL and PARAMS lines of an extraction reply. The tool name
// is lowercased; parameters are comma separated key=value pairs.
func ParseExtraction(raw string) (string, map[string]string) {
	var name string
	args := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "TOOL":
			name = strings.ToLower(strings.TrimSpace(value))
		case "PARAMS":
			for _, pair := range strings.Split(value, ",") {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					continue
				}
				if k = strings.TrimSpace(k); k != "" {
					args[k] = strings.TrimSpace(v)
				}
			}
		}
	}
	return name, args
}
