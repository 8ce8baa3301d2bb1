// Package prompt holds the text/template prompts sent to the model.
package prompt

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// Template represents a prompt template with variables
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate creates a new prompt template
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render renders the template with given variables
func (t *Template) Render(vars map[string]any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Manager manages prompt templates
// All operations are thread-safe using RWMutex protection
type Manager struct {
	mu        sync.RWMutex // Protects templates map
	templates map[string]*Template
}

// NewManager creates a new prompt manager
func NewManager() *Manager {
	return &Manager{
		templates: make(map[string]*Template),
	}
}

// Set adds or replaces a template, so operators can tune wording without code changes.
func (m *Manager) Set(name, content string) error {
	if name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[name] = tmpl
	return nil
}

// Get retrieves a template by name
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return tmpl, nil
}

// Render renders a template by name with given variables
func (m *Manager) Render(name string, vars map[string]any) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars)
}

// Default returns a manager with every built-in prompt registered.
func Default() *Manager {
	m := NewManager()
	for name, content := range builtin {
		if err := m.Set(name, content); err != nil {
			panic(err)
		}
	}
	return m
}
