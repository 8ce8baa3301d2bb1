package orchestrator

import (
	"fmt"

	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/guardrail"
)

// Rejection ends a request that failed an input guard. It is user-correctable.
type Rejection struct {
	// Code is the reason without its detail suffix, e.g. "blocked_pii".
	Code      string
	Reason    string
	Message   string
	RequestID string
	Trace     []Step
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return errors.ErrInvalidInput }

func newRejection(requestID, reason string, steps []Step) *Rejection {
	code := guardrail.Code(reason)
	var msg string
	switch code {
	case guardrail.CodeBlockedPII:
		msg = "Request contains sensitive personal data. Remove PII and retry."
	case guardrail.CodeTokenBudgetExceeded:
		msg = fmt.Sprintf("Request exceeds token budget. Please shorten your query. (%s)", reason)
	default:
		msg = "Input validation failed: " + reason
	}
	return &Rejection{Code: code, Reason: reason, Message: msg, RequestID: requestID, Trace: steps}
}

// InternalError hides an unexpected fault behind a correlation id.
// The detail is only written to the logs and the audit entry.
type InternalError struct {
	RequestID string
	cause     error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (request %s)", e.RequestID)
}

func (e *InternalError) Unwrap() []error { return []error{errors.ErrInternal, e.cause} }
