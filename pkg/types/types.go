package types

import (
	"path/filepath"
	"time"
)

// JobState represents the lifecycle state of a job.
type JobState string

const (
	JobUnassigned JobState = "unassigned"
	JobAssigned   JobState = "assigned"
	JobSuccess    JobState = "success"
	JobFailed     JobState = "failed"
	JobCrashed    JobState = "crashed"
)

// Terminal reports whether the state is final. Terminal states are never
// revisited.
func (s JobState) Terminal() bool {
	switch s {
	case JobSuccess, JobFailed, JobCrashed:
		return true
	}
	return false
}

// Valid reports whether s is one of the recognized job states.
func (s JobState) Valid() bool {
	switch s {
	case JobUnassigned, JobAssigned, JobSuccess, JobFailed, JobCrashed:
		return true
	}
	return false
}

// jobTransitions is the edge set of the job state machine. A job advances
// only along these edges; everything else is rejected.
var jobTransitions = map[JobState][]JobState{
	JobUnassigned: {JobAssigned},
	JobAssigned:   {JobSuccess, JobFailed, JobCrashed},
}

// CanTransition reports whether a job may move from one state to another.
func CanTransition(from, to JobState) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NodeState represents the state of a worker node record.
type NodeState string

const (
	NodeIdle NodeState = "idle"
	NodeBusy NodeState = "busy"
	NodeDead NodeState = "dead"
)

// HeartState represents the state carried in a heartbeat document.
type HeartState string

const (
	HeartAvailable HeartState = "available"
	HeartDead      HeartState = "dead"
)

// JobStatus is the job status document persisted at status/{task}.status.
// The file is rewritten in full on every update; its writer is whichever
// party the current state authorizes.
type JobStatus struct {
	Status JobState `json:"status"`
	Input  any      `json:"input"`
	// TaskStatusPath is a self-reference so a worker can locate the file
	// given only its node record.
	TaskStatusPath string `json:"task_status_path"`
	AssignedTo     string `json:"assigned_to,omitempty"`
	Error          string `json:"error,omitempty"`
}

// NodeStatus is the node record persisted at nodes/{node_id}.status.
// Ownership flips between the worker (idle) and the manager (busy).
type NodeStatus struct {
	Status         NodeState `json:"status"`
	Task           string    `json:"task,omitempty"`
	TaskStatusPath string    `json:"task_status_path,omitempty"`
}

// Heartbeat is the liveness document persisted at heart/{node_id}.heart.
// The worker rewrites it periodically; the manager writes it only to mark
// the node dead. Host telemetry fields are informational and ignored by
// the liveness check.
type Heartbeat struct {
	Status        HeartState `json:"status"`
	LastHeartbeat int64      `json:"last_heartbeat"`
	DeadReason    string     `json:"dead_reason,omitempty"`
	Hostname      string     `json:"hostname,omitempty"`
	CPUPercent    float64    `json:"cpu_percent,omitempty"`
	MemPercent    float64    `json:"mem_percent,omitempty"`
}

// Age returns how long ago the heartbeat was written, relative to now.
func (h *Heartbeat) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(h.LastHeartbeat, 0))
}

// Result is what a user job function returns. Status is propagated verbatim
// into the job status document; a missing status is treated as crashed.
type Result struct {
	Status JobState `json:"status"`
	Error  string   `json:"error,omitempty"`
	Output any      `json:"output,omitempty"`
}

// Layout computes the well-known paths of one run under a base directory.
type Layout struct {
	BaseDir string
}

func NewLayout(baseDir string) Layout {
	return Layout{BaseDir: baseDir}
}

func (l Layout) NodesDir() string     { return filepath.Join(l.BaseDir, "nodes") }
func (l Layout) StatusDir() string    { return filepath.Join(l.BaseDir, "status") }
func (l Layout) HeartDir() string     { return filepath.Join(l.BaseDir, "heart") }
func (l Layout) AvailableDir() string { return filepath.Join(l.BaseDir, "available") }
func (l Layout) WorkingDir() string   { return filepath.Join(l.BaseDir, "working") }

// FinishedFile is the marker the manager touches once the run is done.
func (l Layout) FinishedFile() string { return filepath.Join(l.BaseDir, "finished") }

// Dirs returns every sub-directory a run requires, in creation order.
func (l Layout) Dirs() []string {
	return []string{l.NodesDir(), l.StatusDir(), l.HeartDir(), l.AvailableDir(), l.WorkingDir()}
}

func (l Layout) TaskStatusPath(task string) string {
	return filepath.Join(l.StatusDir(), task+".status")
}

func (l Layout) NodeStatusPath(nodeID string) string {
	return filepath.Join(l.NodesDir(), nodeID+".status")
}

func (l Layout) HeartPath(nodeID string) string {
	return filepath.Join(l.HeartDir(), nodeID+".heart")
}

func (l Layout) AvailablePath(nodeID string) string {
	return filepath.Join(l.AvailableDir(), nodeID)
}

func (l Layout) WorkingPath(task string) string {
	return filepath.Join(l.WorkingDir(), task)
}
