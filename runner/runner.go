package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/travel-router/orchestrator"
)

// DefaultConcurrency bounds in-flight requests when none is configured.
const DefaultConcurrency = 10

// Handler processes one query.
type Handler interface {
	Handle(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
}

// Runner executes queries with bounded concurrency
type Runner interface {
	// Run executes a query once a slot is free
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)

	// InFlight returns the number of queries currently holding a slot
	InFlight() int
}

// runner is the default implementation of Runner
type runner struct {
	handler   Handler
	semaphore chan struct{}
}

// New creates a new runner
func New(handler Handler, maxConcurrency int) Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}
	return &runner{
		handler:   handler,
		semaphore: make(chan struct{}, maxConcurrency),
	}
}

// Run executes a query with the handler
func (r *runner) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	// Acquire semaphore
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return r.handler.Handle(ctx, req)
}

func (r *runner) InFlight() int {
	return len(r.semaphore)
}

// Task represents a query to be executed
type Task struct {
	ID      string
	Request orchestrator.Request
}

// Result represents the result of a task execution
type Result struct {
	TaskID   string
	Response *orchestrator.Response
	Error    error
}

// ParallelRunner executes multiple queries in parallel
type ParallelRunner struct {
	runner Runner
}

// NewParallelRunner creates a new parallel runner
func NewParallelRunner(r Runner) *ParallelRunner {
	return &ParallelRunner{runner: r}
}

// RunParallel executes tasks in parallel. Results keep the task order.
func (pr *ParallelRunner) RunParallel(ctx context.Context, tasks []*Task) []*Result {
	results := make([]*Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t *Task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[index] = &Result{
						TaskID: t.ID,
						Error:  fmt.Errorf("panic in task %s: %v", t.ID, r),
					}
				}
			}()

			resp, err := pr.runner.Run(ctx, t.Request)
			results[index] = &Result{
				TaskID:   t.ID,
				Response: resp,
				Error:    err,
			}
		}(i, task)
	}

	wg.Wait()
	return results
}
