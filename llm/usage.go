package llm

import "sync/atomic"

// Usage accumulates token counts for a single request. A nil *Usage discards updates,
// so callers that do not care about accounting may pass nil.
type Usage struct {
	prompt     atomic.Int64
	completion atomic.Int64
	calls      atomic.Int64
}

// NewUsage returns an empty accumulator.
func NewUsage() *Usage {
	return &Usage{}
}

// Add records one model call.
func (u *Usage) Add(prompt, completion int64) {
	if u == nil {
		return
	}
	u.prompt.Add(prompt)
	u.completion.Add(completion)
	u.calls.Add(1)
}

// Total returns prompt plus completion tokens.
func (u *Usage) Total() int64 {
	if u == nil {
		return 0
	}
	return u.prompt.Load() + u.completion.Load()
}

// Prompt returns the prompt tokens recorded so far.
func (u *Usage) Prompt() int64 {
	if u == nil {
		return 0
	}
	return u.prompt.Load()
}

// Completion returns the completion tokens recorded so far.
func (u *Usage) Completion() int64 {
	if u == nil {
		return 0
	}
	return u.completion.Load()
}

// Calls returns the number of recorded model calls.
func (u *Usage) Calls() int64 {
	if u == nil {
		return 0
	}
	return u.calls.Load()
}
