package job

import (
	"fmt"

	"github.com/mfeuerstein/releasegate/internal/artifact"
)

// Info describes a job's identity and scheduling constraints.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
	// Group is the concurrency-group key. Across overlapping runs at most one
	// job instance per group may be running; an empty group means unconstrained.
	Group string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("job: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("job: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("job: version is required for %s", i.ID)
	}
	return nil
}

// Status enumerates job run outcomes.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusSkipped is assigned by the engine, never returned by a job itself:
	// a job whose upstream failed is skipped without being started.
	StatusSkipped Status = "skipped"
)

// Result captures the outcome of a job execution.
type Result struct {
	Status  Status
	Message string
}

// Job is implemented by every runtime unit the pipeline schedules.
type Job interface {
	Info() Info
	// Produces declares the artifacts this job writes into the run store.
	Produces() []artifact.Ref
	// Consumes declares the artifacts this job reads. The resolver rejects
	// graphs where a consumed artifact is not produced by an upstream job.
	Consumes() []artifact.Ref
	Run(ctx *Context) (Result, error)
}
