package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/store"
	"github.com/cuemby/flock/pkg/types"
)

// pendingJob is one not-yet-assigned job in the assigner's queue.
type pendingJob struct {
	task string
	doc  *types.JobStatus
}

// assigner matches unassigned jobs to advertised-available workers. It runs
// concurrently with reconciliation and owns its snapshot of the unassigned
// set, taken once at startup; reconciliation never touches it afterwards.
type assigner struct {
	cfg    Config
	layout types.Layout
	st     store.Store
	logger zerolog.Logger

	queue []pendingJob
}

func newAssigner(cfg Config, layout types.Layout, st store.Store, unassigned map[string]*types.JobStatus) *assigner {
	queue := make([]pendingJob, 0, len(unassigned))
	for task, doc := range unassigned {
		queue = append(queue, pendingJob{task: task, doc: doc})
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].task < queue[j].task })

	return &assigner{
		cfg:    cfg,
		layout: layout,
		st:     st,
		logger: log.WithComponent("assigner"),
		queue:  queue,
	}
}

// run loops until every queued job has been handed out or ctx is cancelled.
func (a *assigner) run(ctx context.Context) {
	for len(a.queue) > 0 {
		assigned := a.assignBatch()

		if assigned == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.cfg.AssignPeriod):
			}
		}
	}
	a.logger.Info().Msg("All jobs assigned")
}

// availableNode is one advertised availability token and the node record it
// points at.
type availableNode struct {
	nodeID        string
	nodePath      string
	availablePath string
}

// snapshotAvailable lists the availability tokens advertised right now.
func (a *assigner) snapshotAvailable() []availableNode {
	names, err := a.st.List(a.layout.AvailableDir())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list available dir")
		return nil
	}

	nodes := make([]availableNode, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, availableNode{
			nodeID:        name,
			nodePath:      a.layout.NodeStatusPath(name),
			availablePath: a.layout.AvailablePath(name),
		})
	}
	return nodes
}

// assignBatch pops one available node per queued job and performs the
// assignment transactions, fanning the writes out concurrently. It returns
// the number of jobs handed out.
func (a *assigner) assignBatch() int {
	available := a.snapshotAvailable()
	if len(available) == 0 {
		return 0
	}

	var batch []pendingJob
	var chosen []availableNode
	for len(a.queue) > 0 && len(available) > 0 {
		job := a.queue[0]
		a.queue = a.queue[1:]

		node := available[len(available)-1]
		available = available[:len(available)-1]

		batch = append(batch, job)
		chosen = append(chosen, node)
	}

	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(job pendingJob, node availableNode) {
			defer wg.Done()
			a.assign(job, node)
		}(batch[i], chosen[i])
	}
	wg.Wait()

	if len(batch) > 0 {
		a.logger.Info().Int("count", len(batch)).Msg("Assigned jobs to nodes")
	}
	return len(batch)
}

// assign performs the four-step assignment transaction. The steps are
// ordinary whole-file writes executed in an order chosen so a crash between
// any two leaves the system recoverable: the working ticket comes last, so
// seeing it implies the job document already reads assigned.
func (a *assigner) assign(job pendingJob, node availableNode) {
	doc := *job.doc
	doc.Status = types.JobAssigned
	doc.AssignedTo = node.nodeID

	if err := store.WriteJSON(a.st, doc.TaskStatusPath, &doc); err != nil {
		a.logger.Error().Err(err).Str("task", job.task).Msg("Failed to write job status")
		return
	}

	nodeDoc := &types.NodeStatus{
		Status:         types.NodeBusy,
		Task:           job.task,
		TaskStatusPath: doc.TaskStatusPath,
	}
	if err := store.WriteJSON(a.st, node.nodePath, nodeDoc); err != nil {
		a.logger.Error().Err(err).Str("task", job.task).Msg("Failed to write node status")
		return
	}

	if err := a.st.Unlink(node.availablePath); err != nil {
		a.logger.Error().Err(err).Str("node_id", node.nodeID).Msg("Failed to consume availability token")
	}

	workingPath := a.layout.WorkingPath(job.task)
	exists, err := a.st.Exists(workingPath)
	if err == nil && !exists {
		if err := store.WriteJSON(a.st, workingPath, &doc); err != nil {
			a.logger.Error().Err(err).Str("task", job.task).Msg("Failed to write working ticket")
		}
	}

	metrics.AssignmentsTotal.Inc()
	a.logger.Info().
		Str("task", job.task).
		Str("node_id", node.nodeID).
		Msg("Assigned task to node")
}
