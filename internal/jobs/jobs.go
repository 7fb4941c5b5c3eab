// Package jobs holds the built-in release pipeline jobs: tests, the version
// tag check, schema publishing, docs deployment, and distribution publishing.
// Each job reads its inputs from the run's artifact store and the project
// config carried in the job context.
package jobs

import (
	"fmt"
	"os"
	"strings"

	"github.com/mfeuerstein/releasegate/internal/artifact"
	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/version"
)

// RegisterBuiltins adds every built-in job to the registry.
func RegisterBuiltins(registry *job.Registry) {
	registry.MustRegister(pipeline.JobTests, func(job.Config) (job.Job, error) {
		return NewTests(), nil
	})
	registry.MustRegister(pipeline.JobVersionTag, func(job.Config) (job.Job, error) {
		return NewVersionTag(), nil
	})
	registry.MustRegister(pipeline.JobSchemas, func(job.Config) (job.Job, error) {
		return NewSchemas(), nil
	})
	registry.MustRegister(pipeline.JobDocs, func(job.Config) (job.Job, error) {
		return NewDocs(), nil
	})
	registry.MustRegister(pipeline.JobDistributions, func(job.Config) (job.Job, error) {
		return NewDistribution(), nil
	})
}

// releaseVersion reads and re-parses the validated tag the version-tag job
// handed off through the artifact store.
func releaseVersion(jc *job.Context) (version.Version, error) {
	check, err := jc.Artifacts.Check(artifact.ReleaseVersion)
	if err != nil {
		return version.Version{}, fmt.Errorf("jobs: release version artifact: %w", err)
	}
	if check.State != artifact.StateReady {
		return version.Version{}, fmt.Errorf("jobs: release version artifact is %s", check.State)
	}
	data, err := os.ReadFile(check.Path)
	if err != nil {
		return version.Version{}, fmt.Errorf("jobs: read release version: %w", err)
	}
	return version.Parse(strings.TrimSpace(string(data)), true)
}

// failure wraps an error into a failed result without swallowing it.
func failure(err error) (job.Result, error) {
	return job.Result{Status: job.StatusFailed, Message: err.Error()}, err
}
