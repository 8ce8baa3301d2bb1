// Package guardrail implements the synchronous input checks that run before routing.
//
// Guards are pure functions of the query text and compose into a Chain that
// stops at the first failure.
package guardrail

import (
	"log/slog"
	"strings"

	"github.com/sweetpotato0/travel-router/pkg/logging"
)

// Reason codes reported by the built-in guards.
const (
	ReasonOK              = "ok"
	ReasonEmptyQuery      = "empty_query"
	ReasonQueryTooLong    = "query_too_long"
	ReasonPromptInjection = "prompt_injection"

	CodeBlockedPII          = "blocked_pii"
	CodeTokenBudgetExceeded = "token_budget_exceeded"
	CodeLowConfidence       = "low_confidence"
)

// Result is the outcome of a guard: pass/fail plus a machine-readable reason.
type Result struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Pass returns a passing result.
func Pass() Result {
	return Result{Passed: true, Reason: ReasonOK}
}

// Fail returns a failing result with the given reason.
func Fail(reason string) Result {
	return Result{Passed: false, Reason: reason}
}

// Code returns the reason code without its detail suffix,
// e.g. "blocked_pii" for "blocked_pii:SSN".
func Code(reason string) string {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		return reason[:i]
	}
	return reason
}

// Guardrail checks a query before it reaches the router.
type Guardrail interface {
	// Name identifies the guard in logs.
	Name() string

	// Check inspects the query. It must not block or perform I/O.
	Check(query string) Result
}

// Chain runs guards in order and stops at the first failure.
type Chain struct {
	guards []Guardrail
	logger *slog.Logger
}

// NewChain creates a chain from the given guards.
func NewChain(guards ...Guardrail) *Chain {
	return &Chain{
		guards: guards,
		logger: logging.WithComponent("guardrail"),
	}
}

// WithLogger overrides the chain logger.
func (c *Chain) WithLogger(logger *slog.Logger) *Chain {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Add appends a guard to the chain.
func (c *Chain) Add(g Guardrail) *Chain {
	c.guards = append(c.guards, g)
	return c
}

// Len returns the number of guards.
func (c *Chain) Len() int {
	return len(c.guards)
}

// Check runs the chain.
func (c *Chain) Check(query string) Result {
	return c.check(query, 0)
}

func (c *Chain) check(query string, index int) Result {
	if index >= len(c.guards) {
		return Pass()
	}
	g := c.guards[index]
	res := g.Check(query)
	if !res.Passed {
		c.logger.Warn("guardrail rejected query", "guard", g.Name(), "reason", res.Reason)
		return res
	}
	return c.check(query, index+1)
}
