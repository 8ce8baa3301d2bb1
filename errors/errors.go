package errors

import "errors"

// Sentinel errors shared across the router packages.
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownTool indicates that tool extraction produced a name outside the allow-list
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolFailed indicates that a tool function returned an error or panicked
	ErrToolFailed = errors.New("tool execution failed")

	// ErrServiceUnavailable indicates an external service (model, embeddings, index engine)
	// kept failing after the retry budget was spent
	ErrServiceUnavailable = errors.New("external service unavailable")

	// ErrIndexEmpty indicates that the vector index has no snapshot to search
	ErrIndexEmpty = errors.New("vector index is empty")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
