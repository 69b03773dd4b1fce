package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flock/pkg/store"
	"github.com/cuemby/flock/pkg/types"
)

func testWorker(t *testing.T, st store.Store, cfg Config, fn JobFunc) *Worker {
	t.Helper()
	cfg.BaseDir = "/run"
	cfg.HeartbeatPeriod = 50 * time.Millisecond
	cfg.ReaderMaxRetries = 2
	cfg.ReaderBackoff = time.Millisecond
	cfg.Store = st
	if fn == nil {
		fn = func(ctx context.Context, input any, info map[string]any) types.Result {
			return types.Result{Status: types.JobSuccess, Output: input}
		}
	}
	w, err := New(cfg, fn)
	require.NoError(t, err)
	return w
}

func makeDirs(t *testing.T, st store.Store, layout types.Layout) {
	t.Helper()
	for _, dir := range layout.Dirs() {
		require.NoError(t, st.MkdirAll(dir))
	}
}

func liveHeart(t *testing.T, w *Worker) {
	t.Helper()
	require.NoError(t, store.WriteJSON(w.st, w.layout.HeartPath(w.nodeID), &types.Heartbeat{
		Status: types.HeartAvailable, LastHeartbeat: time.Now().Unix(),
	}))
}

func TestNodeIDCarriesPrefix(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{NodeID: "gpu"}, nil)
	assert.Regexp(t, `^gpu_[0-9a-f-]{36}$`, w.NodeID())

	other := testWorker(t, st, Config{NodeID: "gpu"}, nil)
	assert.NotEqual(t, w.NodeID(), other.NodeID())
}

func TestCheckWorkerStatusPriority(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{MaxJob: 2, MaxWorkTime: time.Hour}, nil)
	makeDirs(t, st, w.layout)
	liveHeart(t, w)
	w.startTime = time.Now()

	assert.Equal(t, Running, w.checkWorkerStatus())

	// max_job wins over everything else.
	w.finishedJobs = 2
	require.NoError(t, st.Touch(w.layout.FinishedFile()))
	assert.Equal(t, MaxJobReached, w.checkWorkerStatus())

	w.finishedJobs = 0
	assert.Equal(t, FinishedFileExists, w.checkWorkerStatus())

	require.NoError(t, st.Unlink(w.layout.FinishedFile()))
	w.startTime = time.Now().Add(-2 * time.Hour)
	assert.Equal(t, MaxWorkTimeReached, w.checkWorkerStatus())
}

func TestCheckWorkerStatusHeartDead(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{}, nil)
	makeDirs(t, st, w.layout)
	w.startTime = time.Now()

	// The manager rewrote this worker's heartbeat to dead.
	require.NoError(t, store.WriteJSON(st, w.layout.HeartPath(w.nodeID), &types.Heartbeat{
		Status: types.HeartDead, LastHeartbeat: time.Now().Unix(),
	}))
	assert.Equal(t, HeartDead, w.checkWorkerStatus())
}

func TestProcessJobIdle(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{}, nil)
	makeDirs(t, st, w.layout)
	require.NoError(t, store.WriteJSON(st, w.layout.NodeStatusPath(w.nodeID), &types.NodeStatus{Status: types.NodeIdle}))

	found, err := w.processJob(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, w.finishedJobs)
}

func TestProcessJobWritesTerminalStatus(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{}, nil)
	makeDirs(t, st, w.layout)
	liveHeart(t, w)
	w.startTime = time.Now()

	statusPath := w.layout.TaskStatusPath("task1")
	require.NoError(t, store.WriteJSON(st, statusPath, &types.JobStatus{
		Status: types.JobAssigned, Input: 9.0, TaskStatusPath: statusPath, AssignedTo: w.nodeID,
	}))
	require.NoError(t, store.WriteJSON(st, w.layout.NodeStatusPath(w.nodeID), &types.NodeStatus{
		Status: types.NodeBusy, Task: "task1", TaskStatusPath: statusPath,
	}))

	found, err := w.processJob(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, w.finishedJobs)

	reader := store.NewReader(st, 1, time.Millisecond)
	job := &types.JobStatus{}
	require.NoError(t, reader.Load(statusPath, job))
	assert.Equal(t, types.JobSuccess, job.Status)
	// The input survives the rewrite.
	assert.Equal(t, 9.0, job.Input)

	node := &types.NodeStatus{}
	require.NoError(t, reader.Load(w.layout.NodeStatusPath(w.nodeID), node))
	assert.Equal(t, types.NodeIdle, node.Status)

	// Still running, so availability is re-advertised.
	exists, err := st.Exists(w.layout.AvailablePath(w.nodeID))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProcessJobNonTerminalResultBecomesCrashed(t *testing.T) {
	st := store.NewMem()
	fn := func(ctx context.Context, input any, info map[string]any) types.Result {
		return types.Result{} // user function forgot the status
	}
	w := testWorker(t, st, Config{}, fn)
	makeDirs(t, st, w.layout)
	liveHeart(t, w)
	w.startTime = time.Now()

	statusPath := w.layout.TaskStatusPath("task1")
	require.NoError(t, store.WriteJSON(st, statusPath, &types.JobStatus{
		Status: types.JobAssigned, Input: 1, TaskStatusPath: statusPath, AssignedTo: w.nodeID,
	}))
	require.NoError(t, store.WriteJSON(st, w.layout.NodeStatusPath(w.nodeID), &types.NodeStatus{
		Status: types.NodeBusy, Task: "task1", TaskStatusPath: statusPath,
	}))

	_, err := w.processJob(context.Background())
	require.NoError(t, err)

	job := &types.JobStatus{}
	require.NoError(t, store.NewReader(st, 1, time.Millisecond).Load(statusPath, job))
	assert.Equal(t, types.JobCrashed, job.Status)
	assert.Contains(t, job.Error, "non-terminal status")
}

func TestProcessJobNoTokenAfterMaxJob(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{MaxJob: 1}, nil)
	makeDirs(t, st, w.layout)
	liveHeart(t, w)
	w.startTime = time.Now()

	statusPath := w.layout.TaskStatusPath("task1")
	require.NoError(t, store.WriteJSON(st, statusPath, &types.JobStatus{
		Status: types.JobAssigned, Input: 1, TaskStatusPath: statusPath, AssignedTo: w.nodeID,
	}))
	require.NoError(t, store.WriteJSON(st, w.layout.NodeStatusPath(w.nodeID), &types.NodeStatus{
		Status: types.NodeBusy, Task: "task1", TaskStatusPath: statusPath,
	}))

	_, err := w.processJob(context.Background())
	require.NoError(t, err)

	// max_job was hit, so no new availability token was published.
	exists, err := st.Exists(w.layout.AvailablePath(w.nodeID))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, MaxJobReached, w.checkWorkerStatus())
}

func TestRunFailsFastOnMissingDirs(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{}, nil)

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing dirs")

	// Nothing was published before the failure.
	exists, statErr := st.Exists(w.layout.HeartPath(w.nodeID))
	require.NoError(t, statErr)
	assert.False(t, exists)
}

func TestRunWaitsForManagerDirs(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{WaitManager: true}, nil)

	go func() {
		time.Sleep(100 * time.Millisecond)
		for _, dir := range w.layout.Dirs() {
			_ = st.MkdirAll(dir)
		}
		_ = st.Touch(w.layout.FinishedFile())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))
}

func TestRunDrainsOnFinishedMarker(t *testing.T) {
	st := store.NewMem()
	w := testWorker(t, st, Config{}, nil)
	makeDirs(t, st, w.layout)
	require.NoError(t, st.Touch(w.layout.FinishedFile()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	// The final heartbeat reports dead and the token is gone.
	hb := &types.Heartbeat{}
	require.NoError(t, store.NewReader(st, 1, time.Millisecond).Load(w.layout.HeartPath(w.nodeID), hb))
	assert.Equal(t, types.HeartDead, hb.Status)

	exists, err := st.Exists(w.layout.AvailablePath(w.nodeID))
	require.NoError(t, err)
	assert.False(t, exists)
}
