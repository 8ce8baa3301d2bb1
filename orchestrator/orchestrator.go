// Package orchestrator runs one query through guards, routing, execution and logging,
// and assembles the response envelope with its reasoning trace.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sweetpotato0/travel-router/audit"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/guardrail"
	"github.com/sweetpotato0/travel-router/llm"
	"github.com/sweetpotato0/travel-router/message"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/telemetry"
	"github.com/sweetpotato0/travel-router/prompt"
	"github.com/sweetpotato0/travel-router/rag"
	"github.com/sweetpotato0/travel-router/router"
	"github.com/sweetpotato0/travel-router/thread"
	"github.com/sweetpotato0/travel-router/tool"
	"go.opentelemetry.io/otel/attribute"
)

// escalationFloor is the confidence below which a low-confidence route is replaced by OUT_OF_SCOPE.
const escalationFloor = 0.5

// Canned answers.
const (
	OutOfScopeAnswer = "I'm sorry, but that request is outside the scope of what I can help with. " +
		"I can assist with travel policy questions, visa requirements, per-diem rates, and flight booking rules."
	ApologyAnswer = "Sorry, I'm having trouble reaching one of my backing services right now. Please try again in a moment."
)

// SmallTalkAnswers are the replies to greetings; one is picked at random.
var SmallTalkAnswers = []string{
	"Hello! 👋 I'm your travel-policy assistant. Ask me about travel policies, visa requirements, per-diem rates, or flight booking rules.",
	"Hi there! How can I help you with travel policies today?",
	"Hey! Feel free to ask me anything about your company's travel policies.",
}

// Classifier routes a query.
type Classifier interface {
	Classify(ctx context.Context, query string, overrides *llm.Overrides, threshold float64, usage *llm.Usage) (router.Decision, error)
}

// Answerer answers a policy question from the document corpus.
type Answerer interface {
	Answer(ctx context.Context, query string, overrides *llm.Overrides, usage *llm.Usage) (*rag.Result, error)
}

// ToolExecutor extracts and runs a structured lookup.
type ToolExecutor interface {
	Execute(ctx context.Context, query string, overrides *llm.Overrides, usage *llm.Usage) (*tool.Result, error)
}

// Deps are the services a request passes through. Every field except Logger and
// Prompts is required.
type Deps struct {
	Input      *guardrail.Chain
	Budget     guardrail.TokenBudget
	// Confidence defaults to guardrail.DefaultConfidenceThreshold when nil.
	Confidence *guardrail.Confidence
	Router     Classifier
	RAG        Answerer
	Tools      ToolExecutor
	// Model narrates tool results with the generator role.
	Model   llm.Invoker
	Threads *thread.Manager
	Audit   *audit.Recorder
	Prompts *prompt.Manager
	Logger  *slog.Logger
}

// Request is one incoming query.
type Request struct {
	Query    string         `json:"query"`
	UserID   string         `json:"user_id,omitempty"`
	ThreadID string         `json:"thread_id,omitempty"`
	Config   *llm.Overrides `json:"config,omitempty"`
}

// Response is the envelope returned for a handled query.
type Response struct {
	RequestID    string         `json:"request_id"`
	ThreadID     string         `json:"thread_id"`
	Route        router.Route   `json:"route"`
	Confidence   float64        `json:"confidence"`
	Answer       string         `json:"answer"`
	Reasoning    string         `json:"reasoning"`
	Sources      []rag.Source   `json:"sources"`
	Groundedness *bool          `json:"groundedness"`
	ToolUsed     *string        `json:"tool_used"`
	ToolData     map[string]any `json:"tool_data"`
	Trace        []Step         `json:"trace"`
	LatencyMS    float64        `json:"latency_ms"`
	TotalTokens  int64          `json:"total_tokens"`
}

// Orchestrator drives requests through the pipeline. It holds no per-request state
// and is safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	now    func() time.Time
	pick   func(n int) int
	logger *slog.Logger
}

// New validates deps and creates an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Input == nil:
		return nil, fmt.Errorf("orchestrator: input guardrail chain is required")
	case deps.Router == nil:
		return nil, fmt.Errorf("orchestrator: router is required")
	case deps.RAG == nil:
		return nil, fmt.Errorf("orchestrator: rag pipeline is required")
	case deps.Tools == nil:
		return nil, fmt.Errorf("orchestrator: tool dispatcher is required")
	case deps.Model == nil:
		return nil, fmt.Errorf("orchestrator: model is required")
	case deps.Threads == nil:
		return nil, fmt.Errorf("orchestrator: thread manager is required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("orchestrator: audit recorder is required")
	}
	if deps.Confidence == nil {
		deps.Confidence = &guardrail.Confidence{Threshold: guardrail.DefaultConfidenceThreshold}
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.WithComponent("orchestrator")
	}
	return &Orchestrator{
		deps:   deps,
		now:    time.Now,
		pick:   rand.IntN,
		logger: logger,
	}, nil
}

// run is the state of one request.
type run struct {
	id        string
	req       Request
	start     time.Time
	usage     *llm.Usage
	trace     *trace
	triggered []string
	logged    bool
}

// Handle processes req. Guard failures return a *Rejection; unexpected faults return an
// *InternalError. External-service failures degrade the answer and still return a response.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (resp *Response, err error) {
	r := &run{
		id:    uuid.NewString(),
		req:   req,
		start: o.now(),
		usage: llm.NewUsage(),
		trace: &trace{now: o.now},
	}
	ctx, span := telemetry.Start(ctx, "orchestrator.handle", attribute.String("request_id", r.id))
	logger := o.logger.With("request_id", r.id)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("request panicked", "panic", rec, "stack", string(debug.Stack()))
			resp, err = nil, o.fail(ctx, r, fmt.Errorf("panic: %v", rec))
		}
		telemetry.End(span, err)
	}()

	resp, err = o.handle(ctx, r, logger)
	if err != nil {
		var rej *Rejection
		if !errors.As(err, &rej) {
			logger.Error("request failed", "error", err)
			return nil, o.fail(ctx, r, err)
		}
	}
	return resp, err
}

func (o *Orchestrator) handle(ctx context.Context, r *run, logger *slog.Logger) (*Response, error) {
	req := r.req

	// RECEIVED → GUARDED
	res := o.deps.Input.Check(req.Query)
	if !res.Passed {
		r.trace.add(EventInputGuardrail, StatusFailure, "Input validation: "+res.Reason, map[string]any{"reason": res.Reason})
		return nil, o.reject(ctx, r, res.Reason)
	}
	r.trace.add(EventInputGuardrail, StatusSuccess, "Input validation: "+res.Reason, nil)
	if res := o.deps.Budget.Check(req.Query); !res.Passed {
		r.trace.add(EventInputGuardrail, StatusFailure, "Token budget: "+res.Reason, map[string]any{"reason": res.Reason})
		return nil, o.reject(ctx, r, res.Reason)
	}

	threadID, history, err := o.thread(ctx, req, logger)
	if err != nil {
		return nil, err
	}

	// GUARDED → ROUTED
	decision, err := o.deps.Router.Classify(ctx, req.Query, req.Config, o.deps.Confidence.Threshold, r.usage)
	if err != nil {
		logger.Error("routing failed", "error", err)
		r.trace.add(EventRouting, StatusFailure, "Routing failed: "+err.Error(), nil)
		resp := o.envelope(r, threadID, router.Decision{Route: router.OutOfScope, Reasoning: "routing failed"}, ApologyAnswer)
		o.finish(ctx, r, resp, logger)
		return resp, nil
	}
	r.trace.add(EventRouting, StatusSuccess,
		fmt.Sprintf("Routed to %s (confidence: %.2f)", decision.Route, decision.Confidence),
		map[string]any{"route": decision.Route, "confidence": decision.Confidence, "reasoning": decision.Reasoning})

	// ROUTED → ESCALATED
	if res := o.deps.Confidence.Check(decision.Confidence); !res.Passed {
		r.triggered = append(r.triggered, res.Reason)
		if decision.Confidence < escalationFloor {
			logger.Warn("confidence too low, forcing OUT_OF_SCOPE", "confidence", decision.Confidence, "route", decision.Route)
			r.trace.add(EventConfidenceGuardrail, StatusFailure,
				fmt.Sprintf("Confidence too low (%.2f). Fallback to OUT_OF_SCOPE.", decision.Confidence), nil)
			decision = decision.Escalate()
		} else {
			logger.Warn("low confidence routing", "confidence", decision.Confidence)
			r.trace.add(EventConfidenceGuardrail, StatusWarning, "Low confidence routing detected: "+res.Reason, nil)
		}
	}

	// → EXECUTED
	resp := o.envelope(r, threadID, decision, "")
	switch decision.Route {
	case router.SmallTalk:
		resp.Answer = SmallTalkAnswers[o.pick(len(SmallTalkAnswers))]
		r.trace.add(EventExecution, StatusSuccess, "Handled as small talk", nil)
	case router.FactFromDocs:
		o.answerFromDocs(ctx, r, resp, history, logger)
	case router.StructuredData:
		o.answerFromTools(ctx, r, resp, history, logger)
	default:
		resp.Answer = OutOfScopeAnswer
		r.trace.add(EventExecution, StatusSuccess, "Query out of scope", nil)
	}

	// EXECUTED → LOGGED
	if err := o.deps.Threads.AppendTurn(ctx, threadID, req.Query, resp.Answer); err != nil {
		logger.Warn("failed to append turn to thread", "thread_id", threadID, "error", err)
	}
	o.finish(ctx, r, resp, logger)
	return resp, nil
}

// thread resolves the conversation of req, creating one when none is given, and returns
// its prior messages.
func (o *Orchestrator) thread(ctx context.Context, req Request, logger *slog.Logger) (string, []message.Message, error) {
	if req.ThreadID == "" {
		user := req.UserID
		if user == "" {
			user = thread.DefaultUser
		}
		id, err := o.deps.Threads.Create(ctx, user, nil)
		if err != nil {
			return "", nil, err
		}
		return id, nil, nil
	}
	history, err := o.deps.Threads.Messages(ctx, req.ThreadID)
	if err != nil {
		logger.Warn("failed to load thread history", "thread_id", req.ThreadID, "error", err)
		return req.ThreadID, nil, nil
	}
	return req.ThreadID, history, nil
}

func (o *Orchestrator) answerFromDocs(ctx context.Context, r *run, resp *Response, history []message.Message, logger *slog.Logger) {
	query := r.req.Query
	if prior := message.Transcript("\n\nPrevious conversation:\n", history); prior != "" {
		query = prior + query
	}

	res, err := o.deps.RAG.Answer(ctx, query, r.req.Config, r.usage)
	if err != nil {
		logger.Error("rag pipeline failed", "error", err)
		resp.Answer = ApologyAnswer
		r.trace.add(EventRAGPipeline, StatusFailure, "RAG execution failed: "+err.Error(), nil)
		return
	}

	grounded := res.Grounded
	resp.Answer = res.Answer
	resp.Sources = append(resp.Sources, res.Sources...)
	resp.Groundedness = &grounded
	status := StatusSuccess
	if !grounded {
		status = StatusWarning
	}
	r.trace.add(EventRAGPipeline, status, fmt.Sprintf("RAG execution completed. Grounded: %t", grounded), map[string]any{
		"chunks_retrieved": len(res.Sources),
		"grounded":         grounded,
		"explanation":      res.Explanation,
	})
}

func (o *Orchestrator) answerFromTools(ctx context.Context, r *run, resp *Response, history []message.Message, logger *slog.Logger) {
	res, err := o.deps.Tools.Execute(ctx, r.req.Query, r.req.Config, r.usage)
	if err != nil {
		r.trace.add(EventToolExecution, StatusFailure, "Tool execution failed: "+err.Error(), nil)
		if recoverable(err) {
			logger.Warn("structured request failed", "error", err)
			resp.Answer = "I couldn't process that structured request: " + err.Error()
			return
		}
		logger.Error("tool dispatch failed", "error", err)
		resp.Answer = ApologyAnswer
		return
	}

	name := res.Tool
	resp.ToolUsed = &name
	resp.ToolData = res.Data

	answer, err := o.narrate(ctx, r, res, message.Transcript("Previous context:\n", history))
	if err != nil {
		logger.Error("tool narration failed", "tool", name, "error", err)
		resp.Answer = ApologyAnswer
		r.trace.add(EventToolExecution, StatusFailure, fmt.Sprintf("Tool %s executed but the answer could not be generated: %v", name, err), res.Data)
		return
	}
	resp.Answer = answer
	r.trace.add(EventToolExecution, StatusSuccess, fmt.Sprintf("Tool %s executed successfully", name), res.Data)
}

func (o *Orchestrator) narrate(ctx context.Context, r *run, res *tool.Result, history string) (string, error) {
	data, err := json.Marshal(res.Data)
	if err != nil {
		return "", err
	}
	text, err := o.deps.Prompts.Render(prompt.ToolNarration, map[string]any{
		"history": history,
		"query":   r.req.Query,
		"tool":    res.Tool,
		"data":    string(data),
	})
	if err != nil {
		return "", err
	}
	return o.deps.Model.Invoke(ctx, llm.Request{Role: llm.RoleGenerator, Prompt: text, Overrides: r.req.Config, Usage: r.usage})
}

// recoverable reports whether a tool error is the user's or the extractor's fault
// rather than an outage.
func recoverable(err error) bool {
	return errors.Is(err, errors.ErrInvalidInput) ||
		errors.Is(err, errors.ErrUnknownTool) ||
		errors.Is(err, errors.ErrToolFailed)
}

func (o *Orchestrator) envelope(r *run, threadID string, d router.Decision, answer string) *Response {
	return &Response{
		RequestID:  r.id,
		ThreadID:   threadID,
		Route:      d.Route,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		Answer:     answer,
		Sources:    []rag.Source{},
	}
}

// finish stamps latency, token usage and the trace onto resp and writes the audit entry.
func (o *Orchestrator) finish(ctx context.Context, r *run, resp *Response, logger *slog.Logger) {
	elapsed := o.since(r.start)
	resp.Trace = r.trace.Steps()
	resp.LatencyMS = math.Round(elapsed*10) / 10
	resp.TotalTokens = r.usage.Total()

	var tools []string
	if resp.ToolUsed != nil {
		tools = []string{*resp.ToolUsed}
	}
	o.record(ctx, r, audit.QueryLogEntry{
		RouteTaken:      string(resp.Route),
		RouteConfidence: resp.Confidence,
		RouteReasoning:  resp.Reasoning,
		ToolsCalled:     tools,
		ChunksRetrieved: len(resp.Sources),
		Groundedness:    resp.Groundedness,
		AnswerLength:    utf8.RuneCountInString(resp.Answer),
		LatencyMS:       elapsed,
	})
	logger.Info("request handled", "route", resp.Route, "latency_ms", resp.LatencyMS,
		"prompt_tokens", r.usage.Prompt(), "completion_tokens", r.usage.Completion(), "total_tokens", resp.TotalTokens)
}

func (o *Orchestrator) reject(ctx context.Context, r *run, reason string) error {
	r.triggered = append(r.triggered, reason)
	o.record(ctx, r, audit.QueryLogEntry{
		RouteTaken:     string(router.OutOfScope),
		RouteReasoning: reason,
	})
	return newRejection(r.id, reason, r.trace.Steps())
}

// fail logs an unexpected fault under the request id and hides its detail from the caller.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) error {
	if !r.logged {
		o.record(ctx, r, audit.QueryLogEntry{
			RouteTaken:     string(router.OutOfScope),
			RouteReasoning: "internal error: " + cause.Error(),
			LatencyMS:      o.since(r.start),
		})
	}
	return &InternalError{RequestID: r.id, cause: cause}
}

// record writes the single audit entry of r. Sink failures are logged by the recorder
// and never change the response.
func (o *Orchestrator) record(ctx context.Context, r *run, e audit.QueryLogEntry) {
	if r.logged {
		return
	}
	r.logged = true
	e.RequestID = r.id
	e.UserID = r.req.UserID
	e.QueryText = r.req.Query
	e.QueryLength = utf8.RuneCountInString(r.req.Query)
	e.TotalTokens = r.usage.Total()
	e.GuardrailsTriggered = append([]string(nil), r.triggered...)
	_ = o.deps.Audit.Query(ctx, e)
}

func (o *Orchestrator) since(t time.Time) float64 {
	return float64(o.now().Sub(t)) / float64(time.Millisecond)
}
