package llm

import "fmt"

// Role names a logical model call site.
type Role string

const (
	// RoleClassifier serves routing, groundedness checks and tool extraction.
	RoleClassifier Role = "classifier"
	// RoleGenerator serves answer generation and tool-result narration.
	RoleGenerator Role = "generator"
)

// Supported backends.
const (
	BackendLocal     = "local"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Params is a fully resolved parameter set. It is comparable and keys the client cache.
type Params struct {
	Backend     string
	Role        Role
	Model       string
	Temperature float64
	MaxTokens   int64
	TopP        float64
	TopK        int64
	Format      string
}

func (p Params) String() string {
	return fmt.Sprintf("%s/%s model=%s temperature=%.2f max_tokens=%d", p.Backend, p.Role, p.Model, p.Temperature, p.MaxTokens)
}

// Overrides carries optional per-request parameters. NumPredict and MaxTokens are aliases.
type Overrides struct {
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int64   `json:"top_k,omitempty"`
	NumPredict  *int64   `json:"num_predict,omitempty"`
	MaxTokens   *int64   `json:"max_tokens,omitempty"`
	Format      *string  `json:"format,omitempty"`
}

// RoleParams is a partial parameter set as found in governance files and default tables.
type RoleParams struct {
	Model       *string  `json:"model,omitempty" koanf:"model"`
	Temperature *float64 `json:"temperature,omitempty" koanf:"temperature"`
	TopP        *float64 `json:"top_p,omitempty" koanf:"top_p"`
	TopK        *int64   `json:"top_k,omitempty" koanf:"top_k"`
	NumPredict  *int64   `json:"num_predict,omitempty" koanf:"num_predict"`
	MaxTokens   *int64   `json:"max_tokens,omitempty" koanf:"max_tokens"`
	Format      *string  `json:"format,omitempty" koanf:"format"`
}

// Governance maps backend → role → parameters. It takes precedence over request overrides.
type Governance map[string]map[string]RoleParams

func (g Governance) lookup(backend string, role Role) RoleParams {
	if g == nil {
		return RoleParams{}
	}
	return g[backend][string(role)]
}

// Defaults returns the built-in parameter table for every backend.
func Defaults() Governance {
	return Governance{
		BackendLocal: {
			string(RoleClassifier): {
				Model: ptr("llama3.2:3b"), Temperature: ptr(0.1), NumPredict: ptr[int64](256),
				TopP: ptr(0.9), TopK: ptr[int64](40), Format: ptr("json"),
			},
			string(RoleGenerator): {
				Model: ptr("llama3.1:8b"), Temperature: ptr(0.3), NumPredict: ptr[int64](1024),
				TopP: ptr(0.9), TopK: ptr[int64](40), Format: ptr(""),
			},
		},
		BackendOpenAI: {
			string(RoleClassifier): {Model: ptr("gpt-4o-mini"), Temperature: ptr(0.1), MaxTokens: ptr[int64](256)},
			string(RoleGenerator):  {Model: ptr("gpt-4o-mini"), Temperature: ptr(0.3), MaxTokens: ptr[int64](1024)},
		},
		BackendAnthropic: {
			string(RoleClassifier): {Model: ptr("claude-3-5-haiku-latest"), Temperature: ptr(0.1), MaxTokens: ptr[int64](256)},
			string(RoleGenerator):  {Model: ptr("claude-sonnet-4-5-20250929"), Temperature: ptr(0.3), MaxTokens: ptr[int64](1024)},
		},
	}
}

// Resolve merges the three tiers: governance, then overrides, then defaults.
func Resolve(backend string, role Role, governance Governance, o *Overrides, defaults Governance) Params {
	gov := governance.lookup(backend, role)
	def := defaults.lookup(backend, role)
	var req Overrides
	if o != nil {
		req = *o
	}

	return Params{
		Backend:     backend,
		Role:        role,
		Model:       pick(gov.Model, req.Model, def.Model),
		Temperature: pick(gov.Temperature, req.Temperature, def.Temperature),
		MaxTokens:   pick(gov.limit(), firstSet(req.MaxTokens, req.NumPredict), def.limit()),
		TopP:        pick(gov.TopP, req.TopP, def.TopP),
		TopK:        pick(gov.TopK, req.TopK, def.TopK),
		Format:      pick(gov.Format, req.Format, def.Format),
	}
}

func (r RoleParams) limit() *int64 {
	return firstSet(r.MaxTokens, r.NumPredict)
}

func pick[T any](tiers ...*T) T {
	for _, v := range tiers {
		if v != nil {
			return *v
		}
	}
	var zero T
	return zero
}

func firstSet[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
