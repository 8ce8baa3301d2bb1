package router

import (
	"strings"

	"github.com/sweetpotato0/travel-router/pkg/rules"
)

// Rule-pass confidences.
const (
	SmallTalkConfidence      = 0.98
	OutOfScopeConfidence     = 0.95
	StructuredDataConfidence = 0.87
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// DefaultGreetings is the small-talk vocabulary matched after trimming punctuation.
func DefaultGreetings() []string {
	return []string{
		"hi", "hello", "hey", "howdy", "hola", "bonjour", "yo", "sup",
		"good morning", "good afternoon", "good evening", "good night",
		"thanks", "thank you", "thankyou", "bye", "goodbye", "see you", "cheers",
		"how are you", "what's up", "whats up",
	}
}

// DefaultOutOfScopeRules covers booking requests and PII solicitation.
func DefaultOutOfScopeRules() []rules.Rule {
	return rules.Patterns(
		`\b(book|reserve|purchase)\b.*\b(ticket|flight|hotel)\b`,
		`\bcredit\s*card\b`,
		`\bpassport\s*number\b`,
	)
}

// DefaultStructuredRules covers vocabulary answered by the lookup tools.
func DefaultStructuredRules() []rules.Rule {
	return rules.Patterns(
		`\bvisa\s+(check|status|requirements?|application|process)\b`,
		`\bper[\s-]?diem\b`,
		`\bflight\s+(policy|rule|class|booking)\b`,
		`\bapproval\s+(requirements?|limits?|thresholds?)\b`,
		`\bcabin\s+class\b`,
	)
}

// RuleConfig lists the rule-pass tables. Nil fields select the defaults.
type RuleConfig struct {
	Greetings       []string     `koanf:"greetings"`
	OutOfScopeRules []rules.Rule `koanf:"out_of_scope"`
	StructuredRules []rules.Rule `koanf:"structured"`
}

// RuleEngine is the deterministic first pass. It never calls out.
type RuleEngine struct {
	greetings  map[string]struct{}
	outOfScope *rules.Bank
	structured *rules.Bank
}

// NewRuleEngine compiles the rule tables.
func NewRuleEngine(cfg RuleConfig) (*RuleEngine, error) {
	greetings := cfg.Greetings
	if greetings == nil {
		greetings = DefaultGreetings()
	}
	oos := cfg.OutOfScopeRules
	if oos == nil {
		oos = DefaultOutOfScopeRules()
	}
	structured := cfg.StructuredRules
	if structured == nil {
		structured = DefaultStructuredRules()
	}

	e := &RuleEngine{greetings: make(map[string]struct{}, len(greetings))}
	for _, g := range greetings {
		e.greetings[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}
	var err error
	if e.outOfScope, err = rules.Compile(oos); err != nil {
		return nil, err
	}
	if e.structured, err = rules.Compile(structured); err != nil {
		return nil, err
	}
	return e, nil
}

// Match returns a decision, or false when no rule applies.
func (e *RuleEngine) Match(query string) (Decision, bool) {
	raw := strings.ToLower(strings.TrimSpace(query))
	clean := strings.Trim(raw, asciiPunctuation)

	if _, ok := e.greetings[clean]; ok || strings.Contains(clean, "hello") {
		return Decision{Route: SmallTalk, Confidence: SmallTalkConfidence, Reasoning: "Matched greeting / small-talk keyword"}, true
	}
	if _, ok := e.outOfScope.Match(raw); ok {
		return Decision{Route: OutOfScope, Confidence: OutOfScopeConfidence, Reasoning: "Matched out-of-scope pattern (booking/PII)"}, true
	}
	if _, ok := e.structured.Match(raw); ok {
		return Decision{Route: StructuredData, Confidence: StructuredDataConfidence, Reasoning: "Matched structured-data keyword pattern"}, true
	}
	return Decision{}, false
}
