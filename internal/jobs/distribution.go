package jobs

import (
	"fmt"

	"github.com/mfeuerstein/releasegate/internal/artifact"
	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/step"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

// Distribution builds the package distributions and uploads them to the
// package index via trusted publishing. Eligibility is re-checked here even
// though the pipeline condition already gates the job: the upload must never
// fire off anything but a release tag.
type Distribution struct {
	job.Base
}

// NewDistribution builds the distribution publishing job.
func NewDistribution() *Distribution {
	d := &Distribution{Base: job.NewBase(job.Info{
		ID:          pipeline.JobDistributions,
		Name:        "Build and publish distributions",
		Description: "Builds distributions and uploads them to the package index.",
		Version:     "1.0.0",
		Group:       pipeline.GroupDistributions,
	})}
	d.SetProduces(artifact.DistDir)
	d.SetConsumes(artifact.ReleaseVersion)
	return d
}

// Run builds the distributions and publishes them. A failure is terminal for
// the release; nothing here retries.
func (d *Distribution) Run(jc *job.Context) (job.Result, error) {
	if !trigger.Eligible(jc.Run.Event) {
		return failure(fmt.Errorf("jobs: event %s %q is not a release trigger", jc.Run.Event.Kind, jc.Run.Event.Ref))
	}
	current, err := releaseVersion(jc)
	if err != nil {
		return failure(err)
	}
	if jc.Index == nil {
		return failure(fmt.Errorf("jobs: no package index client configured"))
	}

	runner := step.Runner{Dir: jc.Artifacts.Root()}
	if err := runner.Run(jc, step.FromCommands("distributions", jc.Config.Project.Commands.Distributions)); err != nil {
		return failure(err)
	}
	distDir := jc.Artifacts.Path(artifact.DistDir)
	if err := requireNonEmptyDir(distDir); err != nil {
		return failure(err)
	}
	if err := jc.Artifacts.Record(artifact.DistDir, d.Info().ID, jc.Run.ID); err != nil {
		return failure(err)
	}

	if err := jc.Index.Publish(jc.Ctx, distDir); err != nil {
		return failure(fmt.Errorf("jobs: publish %s: %w", current, err))
	}
	return job.Result{
		Status:  job.StatusSucceeded,
		Message: fmt.Sprintf("published distributions for %s", current),
	}, nil
}
