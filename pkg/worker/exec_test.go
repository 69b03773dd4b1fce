package worker

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/flock/pkg/types"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix shell utilities")
	}
}

func TestExecSuccess(t *testing.T) {
	skipOnWindows(t)

	fn := Exec("echo", "hello", "{input}")
	result := fn(context.Background(), "world", nil)

	assert.Equal(t, types.JobSuccess, result.Status)
	assert.Equal(t, "hello world", result.Output)
}

func TestExecAppendsInputWithoutPlaceholder(t *testing.T) {
	skipOnWindows(t)

	fn := Exec("echo")
	result := fn(context.Background(), 7, nil)

	assert.Equal(t, types.JobSuccess, result.Status)
	assert.Equal(t, "7", result.Output)
}

func TestExecNonZeroExitIsFailed(t *testing.T) {
	skipOnWindows(t)

	fn := Exec("false")
	result := fn(context.Background(), "x", nil)

	assert.Equal(t, types.JobFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestExecKilledOnTimeout(t *testing.T) {
	skipOnWindows(t)

	r := NewRunner(100 * time.Millisecond)
	start := time.Now()
	result := r.Run(context.Background(), Exec("sleep", "{input}"), 5, nil)

	assert.Equal(t, types.JobCrashed, result.Status)
	assert.Equal(t, "job timeout", result.Error)
	assert.Less(t, time.Since(start), 2*time.Second)
}
