package jobs

import (
	"fmt"

	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/step"
)

// Tests runs the project's configured test commands in the project directory.
// The commands are opaque; the job only cares whether they all exit zero.
type Tests struct {
	job.Base
}

// NewTests builds the tests job.
func NewTests() *Tests {
	return &Tests{Base: job.NewBase(job.Info{
		ID:          pipeline.JobTests,
		Name:        "Tests",
		Description: "Runs the configured test commands.",
		Version:     "1.0.0",
	})}
}

// Run executes every configured test command sequentially.
func (t *Tests) Run(jc *job.Context) (job.Result, error) {
	commands := jc.Config.Project.Commands.Tests
	if len(commands) == 0 {
		return failure(fmt.Errorf("jobs: no test commands configured"))
	}
	runner := step.Runner{Dir: jc.Config.ProjectDir}
	if err := runner.Run(jc, step.FromCommands("tests", commands)); err != nil {
		return failure(err)
	}
	return job.Result{
		Status:  job.StatusSucceeded,
		Message: fmt.Sprintf("%d test command(s) passed", len(commands)),
	}, nil
}
