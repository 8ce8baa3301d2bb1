package guardrail

import "fmt"

// DefaultConfidenceThreshold is used when no threshold is configured.
const DefaultConfidenceThreshold = 0.85

// Confidence checks a routing confidence against a threshold.
// The threshold itself passes.
type Confidence struct {
	Threshold float64
}

// Check returns a failing result with reason "low_confidence:<c>" when c < threshold.
func (g Confidence) Check(c float64) Result {
	if c < g.Threshold {
		return Fail(fmt.Sprintf("%s:%.2f", CodeLowConfidence, c))
	}
	return Pass()
}
