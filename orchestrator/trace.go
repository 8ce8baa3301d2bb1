package orchestrator

import "time"

// Event names a pipeline stage in the trace.
type Event string

const (
	EventInputGuardrail      Event = "INPUT_GUARDRAIL"
	EventRouting             Event = "ROUTING"
	EventConfidenceGuardrail Event = "CONFIDENCE_GUARDRAIL"
	EventExecution           Event = "EXECUTION"
	EventRAGPipeline         Event = "RAG_PIPELINE"
	EventToolExecution       Event = "TOOL_EXECUTION"
)

// Status is the outcome of a step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusWarning Status = "warning"
)

// Step is one entry of the reasoning trace.
type Step struct {
	Event     Event          `json:"event"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// trace is append-only; steps are kept in pipeline order.
type trace struct {
	steps []Step
	now   func() time.Time
}

func (t *trace) add(event Event, status Status, message string, data map[string]any) {
	t.steps = append(t.steps, Step{
		Event:     event,
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: t.now().UTC(),
	})
}

// Steps returns a copy of the recorded steps.
func (t *trace) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}
