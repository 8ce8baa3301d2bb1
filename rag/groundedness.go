package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sweetpotato0/travel-router/llm"
	"github.com/sweetpotato0/travel-router/prompt"
)

const defaultExplanation = "No explanation provided"

// Verdict is the groundedness check outcome.
type Verdict struct {
	Grounded    bool
	Confidence  float64
	Explanation string
}

func (p *Pipeline) verify(ctx context.Context, contextText, question, answer string, overrides *llm.Overrides, usage *llm.Usage) (Verdict, error) {
	text, err := p.prompts.Render(prompt.Groundedness, map[string]any{
		"context":  contextText,
		"question": question,
		"answer":   answer,
	})
	if err != nil {
		return Verdict{}, err
	}
	raw, err := p.model.Invoke(ctx, llm.Request{Role: llm.RoleClassifier, Prompt: text, Overrides: overrides, Usage: usage})
	if err != nil {
		return Verdict{}, fmt.Errorf("rag: groundedness: %w", err)
	}
	p.logger.Debug("groundedness raw output", "raw", raw)
	return ParseVerdict(raw), nil
}

// ParseVerdict reads GROUNDED, CONFIDENCE and EXPLANATION lines. Only GROUNDED: YES
// counts as grounded.
func ParseVerdict(raw string) Verdict {
	v := Verdict{Explanation: defaultExplanation}
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "GROUNDED":
			v.Grounded = strings.EqualFold(value, "YES")
		case "CONFIDENCE":
			if c, err := strconv.ParseFloat(value, 64); err == nil && c >= 0 && c <= 1 {
				v.Confidence = c
			}
		case "EXPLANATION":
			if value != "" {
				v.Explanation = value
			}
		}
	}
	return v
}
