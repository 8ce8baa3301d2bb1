// Package rules holds ordered, table-driven regular-expression banks.
// A bank is evaluated in declaration order and the first matching rule wins.
package rules

import (
	"fmt"
	"regexp"
)

// Rule is one labeled pattern. Label may be empty when a bank only needs a yes/no answer.
type Rule struct {
	Label   string `json:"label" koanf:"label"`
	Pattern string `json:"pattern" koanf:"pattern"`
}

type compiled struct {
	label string
	re    *regexp.Regexp
}

// Bank is an immutable, compiled rule list. Safe for concurrent use.
type Bank struct {
	rules []compiled
}

// Option customizes bank compilation.
type Option func(*options)

type options struct {
	caseInsensitive bool
}

// CaseInsensitive compiles every pattern with the (?i) flag.
func CaseInsensitive() Option {
	return func(o *options) {
		o.caseInsensitive = true
	}
}

// Compile builds a bank from rules, preserving order.
func Compile(rules []Rule, opts ...Option) (*Bank, error) {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	bank := &Bank{rules: make([]compiled, 0, len(rules))}
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %d (%q): empty pattern", i, r.Label)
		}
		expr := r.Pattern
		if cfg.caseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Label, err)
		}
		bank.rules = append(bank.rules, compiled{label: r.Label, re: re})
	}
	return bank, nil
}

// MustCompile is like Compile but panics on error. Intended for built-in tables.
func MustCompile(rules []Rule, opts ...Option) *Bank {
	bank, err := Compile(rules, opts...)
	if err != nil {
		panic(err)
	}
	return bank
}

// Match returns the label of the first rule matching text.
func (b *Bank) Match(text string) (string, bool) {
	if b == nil {
		return "", false
	}
	for _, r := range b.rules {
		if r.re.MatchString(text) {
			return r.label, true
		}
	}
	return "", false
}

// Len returns the number of rules in the bank.
func (b *Bank) Len() int {
	if b == nil {
		return 0
	}
	return len(b.rules)
}

// Patterns builds unlabeled rules from bare expressions.
func Patterns(exprs ...string) []Rule {
	out := make([]Rule, len(exprs))
	for i, e := range exprs {
		out[i] = Rule{Pattern: e}
	}
	return out
}
