package engine

import (
	"time"

	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/pipeline/resolver"
	"github.com/mfeuerstein/releasegate/internal/pipeline/scheduler"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

// RunStatus enumerates coarse run phases.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	// RunStatusBlocked means nothing is dispatchable right now, typically
	// because another run holds a concurrency group.
	RunStatusBlocked   RunStatus = "blocked"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the run can no longer progress.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// State captures the persisted snapshot of one pipeline run.
type State struct {
	RunID      string              `json:"run_id"`
	PipelineID string              `json:"pipeline_id"`
	Event      trigger.Event       `json:"event"`
	Definition pipeline.Definition `json:"definition"`
	Status     RunStatus           `json:"status"`
	// StatusReason provides a human readable explanation for non-running states.
	StatusReason string                          `json:"status_reason,omitempty"`
	MaxParallel  int                             `json:"max_parallel,omitempty"`
	Nodes        []JobStatus                     `json:"nodes"`
	Runnable     []string                        `json:"runnable,omitempty"`
	Deferred     map[string]scheduler.SkipReason `json:"deferred,omitempty"`
	Running      []string                        `json:"running,omitempty"`
	Results      map[string]JobRun               `json:"results,omitempty"`
	StartedAt    time.Time                       `json:"started_at"`
	UpdatedAt    time.Time                       `json:"updated_at"`
}

// JobStatus exposes resolver metadata for one pipeline node.
type JobStatus struct {
	ID           string             `json:"id"`
	Ref          pipeline.JobRef    `json:"ref"`
	Name         string             `json:"name"`
	Group        string             `json:"group,omitempty"`
	State        resolver.NodeState `json:"state"`
	Dependencies []string           `json:"dependencies,omitempty"`
	Dependents   []string           `json:"dependents,omitempty"`
	BlockedBy    []string           `json:"blocked_by,omitempty"`
	LastRun      *JobRun            `json:"last_run,omitempty"`
}

// JobRun persists the terminal result of one job execution.
type JobRun struct {
	Status     job.Status `json:"status"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Job looks up a node status by instance ID.
func (s State) Job(id string) (JobStatus, bool) {
	for _, node := range s.Nodes {
		if node.ID == id {
			return node, true
		}
	}
	return JobStatus{}, false
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneRuns(values map[string]JobRun) map[string]JobRun {
	out := make(map[string]JobRun, len(values))
	for id, run := range values {
		out[id] = run
	}
	return out
}

func cloneReasons(values map[string]scheduler.SkipReason) map[string]scheduler.SkipReason {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]scheduler.SkipReason, len(values))
	for id, reason := range values {
		out[id] = reason
	}
	return out
}
