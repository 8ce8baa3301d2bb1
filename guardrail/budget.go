package guardrail

import (
	"fmt"
	"strings"
)

// DefaultMaxWords is the default word ceiling for TokenBudget.
const DefaultMaxWords = 2000

// TokenBudget rejects queries whose whitespace-separated word count exceeds MaxWords.
type TokenBudget struct {
	MaxWords int
}

func (TokenBudget) Name() string { return "token_budget" }

func (b TokenBudget) Check(query string) Result {
	limit := b.MaxWords
	if limit <= 0 {
		limit = DefaultMaxWords
	}
	if n := len(strings.Fields(query)); n > limit {
		return Fail(fmt.Sprintf("%s:%d", CodeTokenBudgetExceeded, n))
	}
	return Pass()
}
