package guardrail

import (
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/travel-router/pkg/rules"
)

// DefaultMaxChars is the default ceiling on query length, in characters.
const DefaultMaxChars = 10000

// DefaultPIIRules is the built-in PII bank, in evaluation order.
func DefaultPIIRules() []rules.Rule {
	return []rules.Rule{
		{Label: "SSN", Pattern: `\b\d{3}-\d{2}-\d{4}\b`},
		{Label: "credit_card", Pattern: `\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`},
		{Label: "passport_number", Pattern: `\b[A-Z]{1,2}\d{7,8}\b`},
		{Label: "aadhaar", Pattern: `\b\d{12}\b`},
	}
}

// DefaultInjectionRules is the built-in prompt-injection bank. Patterns are
// written in lowercase and matched against the lowercased query.
func DefaultInjectionRules() []rules.Rule {
	return rules.Patterns(
		`(ignore|disregard|forget)\s+(previous|above|prior|all)\s+(instructions|prompts|rules)`,
		`system\s*prompt`,
		`you\s+are\s+now\s+`,
		`act\s+as\s+if`,
		`pretend\s+(you|to)\s+`,
		`reveal\s+(your|the)\s+(system|hidden|secret)`,
	)
}

// EmptyQuery rejects empty and whitespace-only text.
type EmptyQuery struct{}

func (EmptyQuery) Name() string { return "empty_query" }

func (EmptyQuery) Check(query string) Result {
	if strings.TrimSpace(query) == "" {
		return Fail(ReasonEmptyQuery)
	}
	return Pass()
}

// MaxLength rejects queries longer than Max characters.
type MaxLength struct {
	Max int
}

func (MaxLength) Name() string { return "max_length" }

func (m MaxLength) Check(query string) Result {
	limit := m.Max
	if limit <= 0 {
		limit = DefaultMaxChars
	}
	if utf8.RuneCountInString(query) > limit {
		return Fail(ReasonQueryTooLong)
	}
	return Pass()
}

// PII rejects text matching any rule in the bank, reporting the rule label.
type PII struct {
	bank *rules.Bank
}

// NewPII compiles a case-insensitive PII guard.
func NewPII(rs []rules.Rule) (*PII, error) {
	bank, err := rules.Compile(rs, rules.CaseInsensitive())
	if err != nil {
		return nil, err
	}
	return &PII{bank: bank}, nil
}

func (*PII) Name() string { return "pii" }

func (p *PII) Check(query string) Result {
	if label, ok := p.bank.Match(query); ok {
		return Fail(CodeBlockedPII + ":" + label)
	}
	return Pass()
}

// Injection rejects prompt-injection phrasing.
type Injection struct {
	bank *rules.Bank
}

// NewInjection compiles an injection guard.
func NewInjection(rs []rules.Rule) (*Injection, error) {
	bank, err := rules.Compile(rs)
	if err != nil {
		return nil, err
	}
	return &Injection{bank: bank}, nil
}

func (*Injection) Name() string { return "prompt_injection" }

func (i *Injection) Check(query string) Result {
	if _, ok := i.bank.Match(strings.ToLower(query)); ok {
		return Fail(ReasonPromptInjection)
	}
	return Pass()
}

// InputConfig configures the primary input chain. Nil rule slices select the defaults.
type InputConfig struct {
	MaxChars       int
	PIIRules       []rules.Rule
	InjectionRules []rules.Rule
}

// NewInputChain builds the primary chain: empty → length → PII → injection.
func NewInputChain(cfg InputConfig) (*Chain, error) {
	piiRules := cfg.PIIRules
	if piiRules == nil {
		piiRules = DefaultPIIRules()
	}
	injRules := cfg.InjectionRules
	if injRules == nil {
		injRules = DefaultInjectionRules()
	}
	pii, err := NewPII(piiRules)
	if err != nil {
		return nil, err
	}
	inj, err := NewInjection(injRules)
	if err != nil {
		return nil, err
	}
	return NewChain(EmptyQuery{}, MaxLength{Max: cfg.MaxChars}, pii, inj), nil
}
