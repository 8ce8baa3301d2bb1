// Package audit records one flattened entry per processed query and user feedback.
package audit

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/pkg/logging"
)

// QueryLogEntry is the write-only audit record of one request.
type QueryLogEntry struct {
	Timestamp           time.Time `json:"timestamp" bson:"timestamp"`
	RequestID           string    `json:"request_id" bson:"_id"`
	UserID              string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	QueryText           string    `json:"query_text" bson:"query_text"`
	QueryLength         int       `json:"query_length" bson:"query_length"`
	RouteTaken          string    `json:"route_taken" bson:"route_taken"`
	RouteConfidence     float64   `json:"route_confidence" bson:"route_confidence"`
	RouteReasoning      string    `json:"route_reasoning" bson:"route_reasoning"`
	ToolsCalled         []string  `json:"tools_called" bson:"tools_called"`
	ChunksRetrieved     int       `json:"chunks_retrieved" bson:"chunks_retrieved"`
	Groundedness        *bool     `json:"groundedness" bson:"groundedness"`
	AnswerLength        int       `json:"answer_length" bson:"answer_length"`
	LatencyMS           float64   `json:"latency_ms" bson:"latency_ms"`
	TotalTokens         int64     `json:"total_tokens" bson:"total_tokens"`
	GuardrailsTriggered []string  `json:"guardrails_triggered" bson:"guardrails_triggered"`
}

// Feedback values.
const (
	Positive = "positive"
	Negative = "negative"
)

// Feedback is a thumbs up or down on an earlier answer.
type Feedback struct {
	RequestID string    `json:"request_id" bson:"request_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Feedback  string    `json:"feedback" bson:"feedback"`
	Comment   *string   `json:"comment" bson:"comment"`
}

// Validate checks the request id and the feedback value.
func (f Feedback) Validate() error {
	if f.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", errors.ErrInvalidInput)
	}
	if f.Feedback != Positive && f.Feedback != Negative {
		return fmt.Errorf("%w: feedback must be %q or %q", errors.ErrInvalidInput, Positive, Negative)
	}
	return nil
}

// Sink persists audit records.
type Sink interface {
	LogQuery(ctx context.Context, e QueryLogEntry) error
	SaveFeedback(ctx context.Context, f Feedback) error
	Close(ctx context.Context) error
}

// Multi fans records out to several sinks. Every sink is tried; errors are joined.
type Multi []Sink

func (m Multi) LogQuery(ctx context.Context, e QueryLogEntry) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.LogQuery(ctx, e))
	}
	return stderrors.Join(errs...)
}

func (m Multi) SaveFeedback(ctx context.Context, f Feedback) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SaveFeedback(ctx, f))
	}
	return stderrors.Join(errs...)
}

func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close(ctx))
	}
	return stderrors.Join(errs...)
}

// Recorder stamps records, writes them to a sink and logs a summary line.
type Recorder struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder wraps sink. A nil logger uses the component logger.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.WithComponent("audit")
	}
	return &Recorder{sink: sink, now: time.Now, logger: logger}
}

// Query records e. A sink failure is logged and returned; it never changes the answer
// already computed for the user.
func (r *Recorder) Query(ctx context.Context, e QueryLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	if e.ToolsCalled == nil {
		e.ToolsCalled = []string{}
	}
	if e.GuardrailsTriggered == nil {
		e.GuardrailsTriggered = []string{}
	}
	if err := r.sink.LogQuery(ctx, e); err != nil {
		r.logger.Error("failed to write query log", "request_id", e.RequestID, "error", err)
		return err
	}
	r.logger.Info("logged query",
		"request_id", e.RequestID,
		"route", e.RouteTaken,
		"confidence", e.RouteConfidence,
		"latency_ms", e.LatencyMS,
	)
	return nil
}

// Feedback validates and records f.
func (r *Recorder) Feedback(ctx context.Context, f Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = r.now().UTC()
	}
	if err := r.sink.SaveFeedback(ctx, f); err != nil {
		r.logger.Error("failed to save feedback", "request_id", f.RequestID, "error", err)
		return err
	}
	r.logger.Info("feedback saved", "request_id", f.RequestID, "feedback", f.Feedback)
	return nil
}

// Close closes the sink.
func (r *Recorder) Close(ctx context.Context) error {
	return r.sink.Close(ctx)
}
