package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/store"
	"github.com/cuemby/flock/pkg/tracker"
	"github.com/cuemby/flock/pkg/types"
)

// Config holds manager configuration.
type Config struct {
	BaseDir string

	// HeartbeatTimeout is the maximum heartbeat age before a node is
	// declared dead. Defaults to 120s.
	HeartbeatTimeout time.Duration

	// ReconcilePeriod is the pause between reconciliation cycles.
	// Defaults to 100ms.
	ReconcilePeriod time.Duration

	// AssignPeriod is the assignment loop's pause when no availability
	// tokens are advertised. Defaults to 100ms.
	AssignPeriod time.Duration

	ReaderMaxRetries int
	ReaderBackoff    time.Duration

	// Store overrides the backing store; nil selects the os-backed one.
	Store store.Store
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HeartbeatTimeout <= 0 {
		out.HeartbeatTimeout = 120 * time.Second
	}
	if out.ReconcilePeriod <= 0 {
		out.ReconcilePeriod = 100 * time.Millisecond
	}
	if out.AssignPeriod <= 0 {
		out.AssignPeriod = 100 * time.Millisecond
	}
	if out.Store == nil {
		out.Store = store.NewFS()
	}
	return out
}

// Manager owns a run: it initializes the job documents, hands jobs to
// available workers through the assignment loop, and reconciles progress
// until every job reaches a terminal status.
type Manager struct {
	cfg    Config
	layout types.Layout
	st     store.Store
	reader *store.Reader
	logger zerolog.Logger

	jobList   []any
	totalJobs int

	unassigned map[string]*types.JobStatus

	workingNum  int
	finishedNum int
	successNum  int
	failedNum   int
	crashedNum  int

	aliveNodes map[string]*types.Heartbeat
	deadNodes  map[string]*types.Heartbeat

	tracker     *tracker.Tracker
	previousLog time.Time
}

// New creates a manager for jobList and prepares the shared directory tree.
func New(cfg Config, jobList []any) (*Manager, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseDir == "" {
		return nil, errors.New("manager: base dir is required")
	}

	layout := types.NewLayout(cfg.BaseDir)
	st := cfg.Store
	if err := st.MkdirAll(layout.BaseDir); err != nil {
		return nil, fmt.Errorf("failed to create base dir: %w", err)
	}
	for _, dir := range layout.Dirs() {
		if err := st.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	m := &Manager{
		cfg:        cfg,
		layout:     layout,
		st:         st,
		reader:     store.NewReader(st, cfg.ReaderMaxRetries, cfg.ReaderBackoff),
		logger:     log.WithComponent("manager"),
		jobList:    jobList,
		totalJobs:  len(jobList),
		unassigned: make(map[string]*types.JobStatus),
		aliveNodes: make(map[string]*types.Heartbeat),
		deadNodes:  make(map[string]*types.Heartbeat),
		tracker:    tracker.New(len(jobList)),
	}
	return m, nil
}

// TaskName returns the well-known name of the i-th job (1-based on disk).
func TaskName(i int) string {
	return fmt.Sprintf("task%d", i+1)
}

// initializeJobs creates one status document per job, or adopts the recorded
// state when the document already exists so a restarted manager resumes
// where the previous run stopped.
func (m *Manager) initializeJobs() error {
	m.finishedNum = 0

	for idx, input := range m.jobList {
		task := TaskName(idx)
		statusPath := m.layout.TaskStatusPath(task)

		exists, err := m.st.Exists(statusPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", statusPath, err)
		}

		doc := &types.JobStatus{}
		if !exists {
			doc.Status = types.JobUnassigned
			doc.Input = input
			doc.TaskStatusPath = statusPath
			if err := store.WriteJSON(m.st, statusPath, doc); err != nil {
				return fmt.Errorf("failed to create job status: %w", err)
			}
		} else if err := m.reader.Load(statusPath, doc); err != nil {
			if errors.Is(err, store.ErrUnreadable) {
				m.logger.Warn().Str("task", task).Msg("Job status unreadable at init, skipping")
				continue
			}
			return err
		}

		switch {
		case doc.Status.Terminal():
			m.finishedNum++
			m.countTerminal(doc.Status)
		case doc.Status == types.JobUnassigned:
			doc.TaskStatusPath = statusPath
			m.unassigned[task] = doc
		default:
			// Recorded as assigned: make sure the working ticket survives
			// the restart so reconciliation can track the in-flight job.
			doc.TaskStatusPath = statusPath
			workingPath := m.layout.WorkingPath(task)
			ticketExists, err := m.st.Exists(workingPath)
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", workingPath, err)
			}
			if !ticketExists {
				if err := store.WriteJSON(m.st, workingPath, doc); err != nil {
					return fmt.Errorf("failed to recreate working ticket: %w", err)
				}
			}
		}
	}

	m.tracker.Set(m.finishedNum)
	m.logger.Info().
		Int("total", m.totalJobs).
		Int("finished", m.finishedNum).
		Int("unassigned", len(m.unassigned)).
		Msg("Jobs initialized")
	return nil
}

func (m *Manager) countTerminal(s types.JobState) {
	switch s {
	case types.JobSuccess:
		m.successNum++
	case types.JobFailed:
		m.failedNum++
	case types.JobCrashed:
		m.crashedNum++
	}
	metrics.JobsFinishedTotal.WithLabelValues(string(s)).Inc()
}

// Run drives the run to completion: it initializes jobs, starts the
// assignment loop, and reconciles until every job is terminal or ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.initializeJobs(); err != nil {
		return err
	}

	assigner := newAssigner(m.cfg, m.layout, m.st, m.unassigned)
	assignCtx, cancelAssign := context.WithCancel(ctx)
	defer cancelAssign()
	assignDone := make(chan struct{})
	go func() {
		defer close(assignDone)
		assigner.run(assignCtx)
	}()

	err := m.reconcileUntilDone(ctx)

	cancelAssign()
	<-assignDone
	return err
}

func (m *Manager) reconcileUntilDone(ctx context.Context) error {
	for {
		if m.finishedNum == m.totalJobs || m.workingNum+m.finishedNum == m.totalJobs {
			if err := m.st.Touch(m.layout.FinishedFile()); err != nil {
				m.logger.Error().Err(err).Msg("Failed to touch finished marker")
			}
		}
		if m.finishedNum == m.totalJobs {
			m.logStatus(true)
			m.logger.Info().Int("total", m.totalJobs).Msg("All jobs finished")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ReconcilePeriod):
		}

		m.reconcile()
	}
}

// reconcile performs one reconciliation pass: heartbeat scan, dead-node
// cascade, working-ticket sweep, status report.
func (m *Manager) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileDuration)
		metrics.ReconcileCyclesTotal.Inc()
	}()

	newDead := m.monitorHeartbeats()
	m.cascadeDeadNodes(newDead)
	m.sweepWorkingTickets()
	m.logStatus(false)
}

// monitorHeartbeats classifies every advertised node as alive or dead for
// this cycle. Dead classification is sticky for the remainder of the run:
// a resurrected worker reusing the same id is not accepted back.
func (m *Manager) monitorHeartbeats() map[string]*types.Heartbeat {
	m.aliveNodes = make(map[string]*types.Heartbeat)
	newDead := make(map[string]*types.Heartbeat)

	names, err := m.st.List(m.layout.HeartDir())
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list heartbeat dir")
		return newDead
	}

	now := time.Now()
	for _, name := range names {
		nodeID := strings.TrimSuffix(name, ".heart")
		if _, dead := m.deadNodes[nodeID]; dead {
			continue
		}

		heartPath := m.layout.HeartPath(nodeID)
		hb := &types.Heartbeat{}
		loadErr := m.reader.Load(heartPath, hb)

		if loadErr == nil && hb.Status == types.HeartAvailable && hb.Age(now) <= m.cfg.HeartbeatTimeout {
			m.aliveNodes[nodeID] = hb
			continue
		}

		var reason string
		switch {
		case loadErr != nil:
			reason = fmt.Sprintf("heartbeat unreadable: %s", heartPath)
			hb = &types.Heartbeat{}
		case hb.Status == types.HeartDead:
			reason = "worker sent dead"
		default:
			reason = fmt.Sprintf("no heartbeat since %s",
				time.Unix(hb.LastHeartbeat, 0).Format("2006-01-02 15:04:05"))
		}

		hb.Status = types.HeartDead
		hb.DeadReason = reason
		if err := store.WriteJSON(m.st, heartPath, hb); err != nil {
			m.logger.Error().Err(err).Str("node_id", nodeID).Msg("Failed to mark heartbeat dead")
		}

		m.deadNodes[nodeID] = hb
		newDead[nodeID] = hb
		m.logger.Warn().Str("node_id", nodeID).Str("reason", reason).Msg("Node declared dead")
	}

	metrics.NodesTotal.WithLabelValues("alive").Set(float64(len(m.aliveNodes)))
	metrics.NodesTotal.WithLabelValues("dead").Set(float64(len(m.deadNodes)))
	return newDead
}

// cascadeDeadNodes crashes the in-flight job of every newly dead node. The
// job stays terminal; crashed work is not re-queued.
func (m *Manager) cascadeDeadNodes(newDead map[string]*types.Heartbeat) {
	for nodeID := range newDead {
		nodePath := m.layout.NodeStatusPath(nodeID)
		node := &types.NodeStatus{}
		if err := m.reader.Load(nodePath, node); err != nil {
			continue
		}
		if node.Status != types.NodeBusy {
			continue
		}

		job := &types.JobStatus{}
		if err := m.reader.Load(node.TaskStatusPath, job); err != nil {
			continue
		}
		if job.Status != types.JobAssigned {
			continue
		}

		job.Status = types.JobCrashed
		job.Error = "worker died while job was assigned"
		if err := store.WriteJSON(m.st, node.TaskStatusPath, job); err != nil {
			m.logger.Error().Err(err).Str("node_id", nodeID).Msg("Failed to crash job of dead node")
			continue
		}

		node.Status = types.NodeDead
		if err := store.WriteJSON(m.st, nodePath, node); err != nil {
			m.logger.Error().Err(err).Str("node_id", nodeID).Msg("Failed to mark node record dead")
		}

		m.logger.Warn().
			Str("node_id", nodeID).
			Str("task", node.Task).
			Msg("Crashed in-flight job of dead node")
	}
}

// sweepWorkingTickets walks working/, counts still-assigned jobs, and
// retires tickets whose job reached a terminal status.
func (m *Manager) sweepWorkingTickets() {
	m.workingNum = 0

	names, err := m.st.List(m.layout.WorkingDir())
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list working dir")
		return
	}

	for _, task := range names {
		ticketPath := m.layout.WorkingPath(task)
		ticket := &types.JobStatus{}
		if err := m.reader.Load(ticketPath, ticket); err != nil {
			continue
		}

		job := &types.JobStatus{}
		if err := m.reader.Load(ticket.TaskStatusPath, job); err != nil {
			continue
		}

		switch {
		case job.Status == types.JobAssigned:
			m.workingNum++
		case job.Status.Terminal():
			m.finishedNum++
			m.countTerminal(job.Status)
			m.tracker.Update(1)
			if err := m.st.Unlink(ticketPath); err != nil {
				m.logger.Error().Err(err).Str("task", task).Msg("Failed to unlink working ticket")
			}
		default:
			m.logger.Warn().
				Str("task", task).
				Str("status", string(job.Status)).
				Msg("Working ticket references job in unexpected state")
		}
	}
}

// logStatus emits the aggregate progress line, throttled to once per second
// unless forced.
func (m *Manager) logStatus(force bool) {
	now := time.Now()
	if !force && !m.previousLog.IsZero() && now.Sub(m.previousLog) < time.Second {
		return
	}
	m.previousLog = now

	successRate := 0.0
	if m.finishedNum > 0 {
		successRate = float64(m.successNum) / float64(m.finishedNum) * 100
	}

	metrics.JobsTotal.WithLabelValues(string(types.JobSuccess)).Set(float64(m.successNum))
	metrics.JobsTotal.WithLabelValues(string(types.JobFailed)).Set(float64(m.failedNum))
	metrics.JobsTotal.WithLabelValues(string(types.JobCrashed)).Set(float64(m.crashedNum))
	metrics.JobsTotal.WithLabelValues(string(types.JobAssigned)).Set(float64(m.workingNum))
	metrics.JobsTotal.WithLabelValues(string(types.JobUnassigned)).
		Set(float64(m.totalJobs - m.finishedNum - m.workingNum))

	m.logger.Info().
		Str("success_rate", fmt.Sprintf("%.2f%%", successRate)).
		Int("finished", m.finishedNum).
		Int("working", m.workingNum).
		Int("total", m.totalJobs).
		Int("nodes_good", len(m.aliveNodes)).
		Int("nodes_dead", len(m.deadNodes)).
		Str("time", m.tracker.Summary()).
		Msg("Progress")
}
