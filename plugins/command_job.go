package plugins

import (
	"fmt"

	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/step"
)

// commandJob runs a plugin definition's steps as external commands in the
// project directory.
type commandJob struct {
	job.Base
	steps []step.Step
}

func newCommandJob(def JobDefinition) (job.Job, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	normalized := def.Normalized()
	version := normalized.Version
	if version == "" {
		version = "1.0.0"
	}
	steps := make([]step.Step, 0, len(normalized.Steps))
	for _, s := range normalized.Steps {
		steps = append(steps, step.Step{
			Name:    s.Name,
			Command: append([]string{}, s.Command...),
			Env:     s.Env,
		})
	}
	return &commandJob{
		Base: job.NewBase(job.Info{
			ID:          normalized.ID,
			Name:        normalized.Name,
			Description: normalized.Description,
			Version:     version,
			Group:       normalized.Group,
		}),
		steps: steps,
	}, nil
}

// Run executes the plugin's steps strictly in order.
func (c *commandJob) Run(jc *job.Context) (job.Result, error) {
	runner := step.Runner{Dir: jc.Config.ProjectDir}
	if err := runner.Run(jc, c.steps); err != nil {
		return job.Result{Status: job.StatusFailed, Message: err.Error()}, err
	}
	return job.Result{
		Status:  job.StatusSucceeded,
		Message: fmt.Sprintf("%d step(s) completed", len(c.steps)),
	}, nil
}
