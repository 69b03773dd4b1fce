package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/flock/pkg/types"
)

func TestRunnerInline(t *testing.T) {
	r := NewRunner(0)
	result := r.Run(context.Background(), func(ctx context.Context, input any, info map[string]any) types.Result {
		return types.Result{Status: types.JobSuccess, Output: input}
	}, 42, nil)

	assert.Equal(t, types.JobSuccess, result.Status)
	assert.Equal(t, 42, result.Output)
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(50 * time.Millisecond)
	start := time.Now()
	result := r.Run(context.Background(), func(ctx context.Context, input any, info map[string]any) types.Result {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return types.Result{Status: types.JobSuccess}
	}, nil, nil)

	assert.Equal(t, types.JobCrashed, result.Status)
	assert.Equal(t, "job timeout", result.Error)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunnerFastJobBeatsTimeout(t *testing.T) {
	r := NewRunner(time.Second)
	result := r.Run(context.Background(), func(ctx context.Context, input any, info map[string]any) types.Result {
		return types.Result{Status: types.JobFailed, Error: "bad input"}
	}, nil, nil)

	assert.Equal(t, types.JobFailed, result.Status)
	assert.Equal(t, "bad input", result.Error)
}

func TestRunnerRecoversPanic(t *testing.T) {
	for _, timeout := range []time.Duration{0, time.Second} {
		r := NewRunner(timeout)
		result := r.Run(context.Background(), func(ctx context.Context, input any, info map[string]any) types.Result {
			panic("boom")
		}, nil, nil)

		assert.Equal(t, types.JobCrashed, result.Status)
		assert.Contains(t, result.Error, "panic: boom")
	}
}

func TestRunnerParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	r := NewRunner(time.Minute)
	result := r.Run(ctx, func(ctx context.Context, input any, info map[string]any) types.Result {
		<-ctx.Done()
		time.Sleep(5 * time.Second)
		return types.Result{Status: types.JobSuccess}
	}, nil, nil)

	assert.Equal(t, types.JobCrashed, result.Status)
}
