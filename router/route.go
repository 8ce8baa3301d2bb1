// Package router classifies a query into one of four routes with a rule pass
// and a model fallback.
package router

import "fmt"

// Route is the top-level query category.
type Route string

const (
	SmallTalk      Route = "SMALL_TALK"
	FactFromDocs   Route = "FACT_FROM_DOCS"
	StructuredData Route = "STRUCTURED_DATA"
	OutOfScope     Route = "OUT_OF_SCOPE"
)

// ParseRoute maps a label onto a Route.
func ParseRoute(s string) (Route, bool) {
	switch r := Route(s); r {
	case SmallTalk, FactFromDocs, StructuredData, OutOfScope:
		return r, true
	}
	return OutOfScope, false
}

// Decision is the outcome of classification. Confidence is always in [0, 1].
type Decision struct {
	Route      Route   `json:"route"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (d Decision) String() string {
	return fmt.Sprintf("%s (%.2f): %s", d.Route, d.Confidence, d.Reasoning)
}

// Escalate forces the decision to OUT_OF_SCOPE, keeping the original route in the reasoning.
func (d Decision) Escalate() Decision {
	return Decision{
		Route:      OutOfScope,
		Confidence: d.Confidence,
		Reasoning:  fmt.Sprintf("Confidence %.2f < 0.5. Original route: %s", d.Confidence, d.Route),
	}
}

func clamp(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0.5
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
