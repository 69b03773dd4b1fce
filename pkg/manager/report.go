package manager

import (
	"errors"
	"strings"
	"time"

	"github.com/cuemby/flock/pkg/store"
	"github.com/cuemby/flock/pkg/types"
)

// Report is a one-shot aggregate view of a run directory, built without
// mutating anything. The status CLI renders it.
type Report struct {
	Total      int `json:"total" yaml:"total"`
	Unassigned int `json:"unassigned" yaml:"unassigned"`
	Assigned   int `json:"assigned" yaml:"assigned"`
	Success    int `json:"success" yaml:"success"`
	Failed     int `json:"failed" yaml:"failed"`
	Crashed    int `json:"crashed" yaml:"crashed"`

	NodesAlive int `json:"nodes_alive" yaml:"nodes_alive"`
	NodesDead  int `json:"nodes_dead" yaml:"nodes_dead"`

	Finished bool `json:"finished" yaml:"finished"`
}

// BuildReport scans a run directory and tallies job and node states.
// Unreadable job documents are skipped; an unreadable heartbeat counts its
// node as dead, as the manager's liveness check does.
func BuildReport(reader *store.Reader, layout types.Layout, heartbeatTimeout time.Duration) (*Report, error) {
	st := reader.Store()
	report := &Report{}

	names, err := st.List(layout.StatusDir())
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		task := strings.TrimSuffix(name, ".status")
		doc := &types.JobStatus{}
		if err := reader.Load(layout.TaskStatusPath(task), doc); err != nil {
			if errors.Is(err, store.ErrUnreadable) {
				continue
			}
			return nil, err
		}
		report.Total++
		switch doc.Status {
		case types.JobUnassigned:
			report.Unassigned++
		case types.JobAssigned:
			report.Assigned++
		case types.JobSuccess:
			report.Success++
		case types.JobFailed:
			report.Failed++
		case types.JobCrashed:
			report.Crashed++
		}
	}

	hearts, err := st.List(layout.HeartDir())
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, name := range hearts {
		nodeID := strings.TrimSuffix(name, ".heart")
		hb := &types.Heartbeat{}
		if err := reader.Load(layout.HeartPath(nodeID), hb); err != nil {
			report.NodesDead++
			continue
		}
		if hb.Status == types.HeartAvailable && hb.Age(now) <= heartbeatTimeout {
			report.NodesAlive++
		} else {
			report.NodesDead++
		}
	}

	report.Finished, err = st.Exists(layout.FinishedFile())
	if err != nil {
		return nil, err
	}
	return report, nil
}
