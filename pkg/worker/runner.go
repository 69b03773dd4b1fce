package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cuemby/flock/pkg/types"
)

// Runner executes one job invocation, bounding it with the configured
// timeout and converting panics into a crashed result.
//
// The original process-per-job isolation does not translate to an in-process
// Go function: a goroutine cannot be killed. Instead the function runs on
// its own goroutine with a context deadline; on expiry the runner cancels
// the context, abandons the goroutine, and synthesizes the timeout result.
// Users who need hard kill semantics run their job as an external command
// through Exec, whose child process is terminated on deadline.
type Runner struct {
	Timeout time.Duration
}

// NewRunner returns a runner with the given per-job timeout; zero disables
// the deadline and runs the function inline.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Run invokes fn over input. A timeout, a cancelled context, or a panic
// yields a crashed result; otherwise fn's result is returned unchanged, and
// mapping a non-terminal status to crashed is left to the caller.
func (r *Runner) Run(ctx context.Context, fn JobFunc, input any, info map[string]any) types.Result {
	if r.Timeout <= 0 {
		return safeCall(ctx, fn, input, info)
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	resultCh := make(chan types.Result, 1)
	go func() {
		resultCh <- safeCall(jobCtx, fn, input, info)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-jobCtx.Done():
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			return types.Result{Status: types.JobCrashed, Error: "job timeout"}
		}
		return types.Result{Status: types.JobCrashed, Error: jobCtx.Err().Error()}
	}
}

// safeCall runs fn and converts a panic into a crashed result carrying the
// stack trace.
func safeCall(ctx context.Context, fn JobFunc, input any, info map[string]any) (result types.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = types.Result{
				Status: types.JobCrashed,
				Error:  fmt.Sprintf("panic: %v\n%s", r, debug.Stack()),
			}
		}
	}()
	return fn(ctx, input, info)
}
