package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/store"
	"github.com/cuemby/flock/pkg/types"
)

// ExitReason is the worker's answer to "should I keep running".
type ExitReason string

const (
	Running            ExitReason = "running"
	MaxJobReached      ExitReason = "max_job_reached"
	MaxWorkTimeReached ExitReason = "max_work_time_reached"
	FinishedFileExists ExitReason = "finished_file_exists"
	HeartDead          ExitReason = "heart_dead"
)

// JobFunc is the user job contract: a pure function over one opaque input.
// The returned Status is propagated verbatim into the job document; a
// missing or unknown status is recorded as crashed. ctx carries the per-job
// deadline when a timeout is configured.
type JobFunc func(ctx context.Context, input any, info map[string]any) types.Result

// Config holds worker configuration.
type Config struct {
	BaseDir string

	// NodeID is an optional human-readable prefix; a UUID suffix is always
	// appended so ids never collide across a fleet.
	NodeID string

	// Timeout bounds each job's wall-clock run. Zero runs jobs inline with
	// no deadline.
	Timeout time.Duration

	// WaitManager makes startup poll until the manager has created the
	// required sub-directories instead of failing fast.
	WaitManager bool

	// MaxJob triggers voluntary exit after that many completed jobs.
	// Zero disables the condition.
	MaxJob int

	// MaxWorkTime triggers voluntary exit after that much wall time.
	// Zero disables the condition.
	MaxWorkTime time.Duration

	HeartbeatPeriod  time.Duration
	ReaderMaxRetries int
	ReaderBackoff    time.Duration

	// Info is passed through to every job invocation.
	Info map[string]any

	// Store overrides the backing store; nil selects the os-backed one.
	Store store.Store
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HeartbeatPeriod <= 0 {
		out.HeartbeatPeriod = 5 * time.Second
	}
	if out.Store == nil {
		out.Store = store.NewFS()
	}
	return out
}

// Worker polls its own node record for work handed out by the manager,
// executes the user function over each input, and writes the terminal
// status back. It exits voluntarily on the configured conditions and
// involuntarily when the manager declares it dead.
type Worker struct {
	cfg     Config
	nodeID  string
	layout  types.Layout
	st      store.Store
	reader  *store.Reader
	logger  zerolog.Logger
	jobFunc JobFunc
	runner  *Runner
	heart   *heartbeat

	startTime     time.Time
	finishedJobs  int
	notFindJobNum int
}

// New creates a worker around jobFunc. The node id is fixed here; directory
// checks happen in Run so WaitManager can honor its context.
func New(cfg Config, jobFunc JobFunc) (*Worker, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseDir == "" {
		return nil, errors.New("worker: base dir is required")
	}
	if jobFunc == nil {
		return nil, errors.New("worker: job function is required")
	}

	nodeID := uuid.NewString()
	if cfg.NodeID != "" {
		nodeID = cfg.NodeID + "_" + nodeID
	}

	layout := types.NewLayout(cfg.BaseDir)
	w := &Worker{
		cfg:     cfg,
		nodeID:  nodeID,
		layout:  layout,
		st:      cfg.Store,
		reader:  store.NewReader(cfg.Store, cfg.ReaderMaxRetries, cfg.ReaderBackoff),
		logger:  log.WithComponent("worker").With().Str("node_id", nodeID).Logger(),
		jobFunc: jobFunc,
		runner:  NewRunner(cfg.Timeout),
	}
	w.heart = newHeartbeat(w.st, layout, nodeID, cfg.HeartbeatPeriod)
	return w, nil
}

// NodeID returns the worker's full node id (prefix plus UUID suffix).
func (w *Worker) NodeID() string {
	return w.nodeID
}

// missingDirs returns the required sub-directories that do not exist yet.
func (w *Worker) missingDirs() ([]string, error) {
	var missing []string
	for _, dir := range []string{
		w.layout.NodesDir(),
		w.layout.StatusDir(),
		w.layout.HeartDir(),
		w.layout.AvailableDir(),
	} {
		exists, err := w.st.Exists(dir)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, dir)
		}
	}
	return missing, nil
}

// awaitDirs blocks until the manager has created the directory tree, or
// fails immediately when WaitManager is off. Missing directories without
// WaitManager are the one startup error that aborts before any state is
// published.
func (w *Worker) awaitDirs(ctx context.Context) error {
	missing, err := w.missingDirs()
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	if !w.cfg.WaitManager {
		return fmt.Errorf("worker: missing dirs %v (is the manager running?)", missing)
	}

	waited := 0
	for len(missing) > 0 {
		if waited%30 == 0 {
			w.logger.Info().Strs("missing", missing).Msg("Waiting for manager to create dirs")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		waited++
		missing, err = w.missingDirs()
		if err != nil {
			return err
		}
	}
	return nil
}

// register publishes the worker's initial state: idle node record, first
// heartbeat, availability token.
func (w *Worker) register() error {
	if err := store.WriteJSON(w.st, w.layout.NodeStatusPath(w.nodeID), &types.NodeStatus{Status: types.NodeIdle}); err != nil {
		return fmt.Errorf("failed to write node record: %w", err)
	}
	w.heart.start()
	if err := w.st.Touch(w.layout.AvailablePath(w.nodeID)); err != nil {
		w.heart.stop()
		return fmt.Errorf("failed to create availability token: %w", err)
	}
	w.logger.Info().Msg("Node registered")
	return nil
}

// Run executes the worker main loop until a voluntary-exit condition fires,
// the manager declares this worker dead, or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.awaitDirs(ctx); err != nil {
		return err
	}

	w.startTime = time.Now()
	w.finishedJobs = 0

	if err := w.register(); err != nil {
		return err
	}

	defer func() {
		w.heart.stop()
		if err := w.st.Unlink(w.layout.AvailablePath(w.nodeID)); err != nil {
			w.logger.Error().Err(err).Msg("Failed to remove availability token on exit")
		}
	}()

	for {
		if ctx.Err() != nil {
			w.logger.Info().Msg("Context cancelled, exiting")
			return ctx.Err()
		}

		found, err := w.processJob(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Job processing failed")
		}
		w.idleBackoff(found)

		reason := w.checkWorkerStatus()
		if reason == FinishedFileExists {
			// Let an in-flight job finish before draining.
			busy, busyErr := w.isBusy()
			if busyErr == nil && busy {
				continue
			}
			w.logger.Info().Msg("Finished marker present, exiting")
			return nil
		}
		if reason != Running {
			w.logger.Info().Str("reason", string(reason)).Msg("Worker finished")
			return nil
		}
	}
}

func (w *Worker) isBusy() (bool, error) {
	node := &types.NodeStatus{}
	if err := w.reader.Load(w.layout.NodeStatusPath(w.nodeID), node); err != nil {
		return false, err
	}
	return node.Status == types.NodeBusy, nil
}

// processJob checks the worker's own node record and, when the manager has
// marked it busy, runs the referenced job to a terminal status. It reports
// whether a job was found.
func (w *Worker) processJob(ctx context.Context) (bool, error) {
	node := &types.NodeStatus{}
	if err := w.reader.Load(w.layout.NodeStatusPath(w.nodeID), node); err != nil {
		if errors.Is(err, store.ErrUnreadable) {
			return false, nil
		}
		return false, err
	}
	if node.Status != types.NodeBusy {
		return false, nil
	}

	job := &types.JobStatus{}
	if err := w.reader.Load(node.TaskStatusPath, job); err != nil {
		return false, err
	}

	w.logger.Info().Str("task", node.Task).Msg("Processing task")

	timer := metrics.NewTimer()
	result := w.runner.Run(ctx, w.jobFunc, job.Input, w.cfg.Info)
	timer.ObserveDuration(metrics.JobDuration)

	if !result.Status.Terminal() {
		// The user function must answer with a terminal status; anything
		// else counts as a crash.
		result.Error = fmt.Sprintf("job returned non-terminal status %q", result.Status)
		result.Status = types.JobCrashed
	}

	w.finishedJobs++
	metrics.JobsExecutedTotal.WithLabelValues(string(result.Status)).Inc()

	job.Status = result.Status
	if result.Error != "" {
		job.Error = result.Error
	}
	if err := store.WriteJSON(w.st, node.TaskStatusPath, job); err != nil {
		return true, fmt.Errorf("failed to write terminal job status: %w", err)
	}

	if err := store.WriteJSON(w.st, w.layout.NodeStatusPath(w.nodeID), &types.NodeStatus{Status: types.NodeIdle}); err != nil {
		return true, fmt.Errorf("failed to rewrite node record idle: %w", err)
	}

	if w.checkWorkerStatus() == Running {
		if err := w.st.Touch(w.layout.AvailablePath(w.nodeID)); err != nil {
			return true, fmt.Errorf("failed to re-advertise availability: %w", err)
		}
	}

	w.logger.Info().
		Str("task", node.Task).
		Str("status", string(result.Status)).
		Msg("Task done")
	return true, nil
}

// idleBackoff sleeps between empty polls: fast for the first 20, slower
// afterwards, with a throttled no-work log line.
func (w *Worker) idleBackoff(found bool) {
	if found {
		w.notFindJobNum = 0
		return
	}

	if w.notFindJobNum%100 == 20 {
		w.logger.Debug().Msg("No task assigned")
	}
	if w.notFindJobNum < 20 {
		time.Sleep(100 * time.Millisecond)
	} else {
		time.Sleep(500 * time.Millisecond)
	}
	w.notFindJobNum++
}

// checkWorkerStatus evaluates the exit conditions in fixed priority order.
func (w *Worker) checkWorkerStatus() ExitReason {
	if w.cfg.MaxJob > 0 && w.finishedJobs >= w.cfg.MaxJob {
		return MaxJobReached
	}
	if w.cfg.MaxWorkTime > 0 && time.Since(w.startTime) > w.cfg.MaxWorkTime {
		return MaxWorkTimeReached
	}
	if exists, err := w.st.Exists(w.layout.FinishedFile()); err == nil && exists {
		return FinishedFileExists
	}
	if !w.heartAlive() {
		return HeartDead
	}
	return Running
}

// heartAlive is the watchdog read on the worker's own heartbeat record; the
// manager rewrites it to dead to tell this worker to shut down.
func (w *Worker) heartAlive() bool {
	hb := &types.Heartbeat{}
	if err := w.reader.Load(w.layout.HeartPath(w.nodeID), hb); err != nil {
		return false
	}
	return hb.Status != types.HeartDead
}
