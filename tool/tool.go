package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sweetpotato0/travel-router/errors"
)

// Parameter describes a tool parameter for prompts and schema listings.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Result is the payload of a successful tool call.
type Result struct {
	OK        bool           `json:"ok"`
	Tool      string         `json:"tool"`
	Data      map[string]any `json:"data"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// Tool is a named lookup with a typed parameter struct.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Source      string      `json:"source"`

	// Decode turns raw extracted parameters into the tool's validated Params.
	Decode func(args map[string]string) (Params, error) `json:"-"`
	// Handler runs the lookup. It is only called with Params produced by Decode.
	Handler func(ctx context.Context, p Params) (map[string]any, error) `json:"-"`
}

// Signature renders the tool as name(param, param) for extraction prompts.
func (t *Tool) Signature() string {
	names := make([]string, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		name := p.Name
		if !p.Required {
			name += "?"
		}
		if len(p.Enum) > 0 {
			name += ": " + strings.Join(p.Enum, "|")
		}
		names = append(names, name)
	}
	return fmt.Sprintf("%s(%s)", t.Name, strings.Join(names, ", "))
}

// Execute runs the tool with already validated params. Handler errors and panics are
// reported as ErrToolFailed.
func (t *Tool) Execute(ctx context.Context, p Params) (res *Result, err error) {
	if t.Handler == nil {
		return nil, fmt.Errorf("tool %s has no handler", t.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &failure{msg: fmt.Sprintf("Tool execution failed: %v", r), kind: errors.ErrToolFailed}
		}
	}()

	data, err := t.Handler(ctx, p)
	if err != nil {
		return nil, &failure{msg: "Tool execution failed: " + err.Error(), kind: errors.ErrToolFailed, cause: err}
	}
	return &Result{
		OK:        true,
		Tool:      t.Name,
		Data:      data,
		Source:    t.Source,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Run decodes, validates and executes in one step.
func (t *Tool) Run(ctx context.Context, args map[string]string) (*Result, error) {
	if t.Decode == nil {
		return nil, fmt.Errorf("tool %s has no decoder", t.Name)
	}
	p, err := t.Decode(args)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, p)
}

// failure carries a user-facing message while keeping the sentinel reachable with errors.Is.
type failure struct {
	msg   string
	kind  error
	cause error
}

func (e *failure) Error() string { return e.msg }

func (e *failure) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Registry manages the allow-list of callable tools.
// All operations are thread-safe using RWMutex protection
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, errors.ErrUnknownTool)
	}
	return tool, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Signatures returns the prompt signature of every tool in name order.
func (r *Registry) Signatures() []string {
	tools := r.List()
	sigs := make([]string, len(tools))
	for i, t := range tools {
		sigs[i] = t.Signature()
	}
	return sigs
}
