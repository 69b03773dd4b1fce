package worker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flock/pkg/hostinfo"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/store"
	"github.com/cuemby/flock/pkg/types"
)

const (
	// heartbeatWriteRetries bounds how often a single heartbeat write is
	// retried before the failure is logged and tolerated; the manager will
	// declare the node dead soon enough.
	heartbeatWriteRetries = 20

	heartbeatWriteBackoff = time.Second
)

// heartbeat periodically rewrites the worker's liveness record on a
// background goroutine, and writes the final dead record on stop so the
// manager does not have to wait out the timeout.
type heartbeat struct {
	st     store.Store
	layout types.Layout
	nodeID string
	period time.Duration
	logger zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func newHeartbeat(st store.Store, layout types.Layout, nodeID string, period time.Duration) *heartbeat {
	return &heartbeat{
		st:     st,
		layout: layout,
		nodeID: nodeID,
		period: period,
		logger: log.WithComponent("heartbeat").With().Str("node_id", nodeID).Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// start writes the first heartbeat synchronously so the manager can see the
// node immediately, then continues on a background goroutine.
func (h *heartbeat) start() {
	h.write(types.HeartAvailable)

	go func() {
		defer close(h.doneCh)
		ticker := time.NewTicker(h.period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.write(types.HeartAvailable)
			case <-h.stopCh:
				return
			}
		}
	}()
}

// stop halts the loop and writes the final dead record.
func (h *heartbeat) stop() {
	close(h.stopCh)
	<-h.doneCh
	h.write(types.HeartDead)
}

// write rewrites the heartbeat document with a bounded retry. Failures past
// the budget are logged and tolerated.
func (h *heartbeat) write(status types.HeartState) {
	doc := &types.Heartbeat{
		Status:        status,
		LastHeartbeat: time.Now().Unix(),
	}
	if snap := hostinfo.Collect(); snap != nil {
		doc.Hostname = snap.Hostname
		doc.CPUPercent = snap.CPUPercent
		doc.MemPercent = snap.MemPercent
	}

	path := h.layout.HeartPath(h.nodeID)
	for attempt := 1; ; attempt++ {
		err := store.WriteJSON(h.st, path, doc)
		if err == nil {
			metrics.HeartbeatsWrittenTotal.Inc()
			return
		}

		metrics.HeartbeatWriteFailures.Inc()
		h.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("Failed to write heartbeat")

		if attempt >= heartbeatWriteRetries {
			h.logger.Error().Str("path", path).Msg("Giving up on heartbeat write")
			return
		}
		time.Sleep(heartbeatWriteBackoff)
	}
}
