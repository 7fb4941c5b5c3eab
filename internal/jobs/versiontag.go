package jobs

import (
	"errors"
	"fmt"

	"github.com/mfeuerstein/releasegate/internal/artifact"
	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/repohost"
	"github.com/mfeuerstein/releasegate/internal/version"
)

// VersionTag validates the triggering ref against the release tag grammar and
// checks that it advances the project's latest published release. The parsed
// tag is handed to downstream jobs through the release-version artifact.
type VersionTag struct {
	job.Base
}

// NewVersionTag builds the version-tag check job.
func NewVersionTag() *VersionTag {
	vt := &VersionTag{Base: job.NewBase(job.Info{
		ID:          pipeline.JobVersionTag,
		Name:        "Check version tag",
		Description: "Validates the release tag grammar and ordering.",
		Version:     "1.0.0",
	})}
	vt.SetProduces(artifact.ReleaseVersion)
	return vt
}

// Run parses the ref, enforces ordering against the latest release, and
// writes the canonical tag into the artifact store.
func (v *VersionTag) Run(jc *job.Context) (job.Result, error) {
	current, err := version.Parse(jc.Run.Event.Ref, true)
	if err != nil {
		return failure(err)
	}
	repo := jc.Config.Project.Host.Repo
	if repo == "" {
		return failure(fmt.Errorf("jobs: host.repo is not configured"))
	}
	latest, err := jc.Host.LatestRelease(jc.Ctx, repo)
	switch {
	case errors.Is(err, repohost.ErrNotFound):
		// First release of the project, nothing to order against.
	case err != nil:
		return failure(fmt.Errorf("jobs: latest release lookup: %w", err))
	default:
		previous, parseErr := version.Parse(latest.TagName, true)
		if parseErr != nil {
			return failure(fmt.Errorf("jobs: latest release tag %q: %w", latest.TagName, parseErr))
		}
		if !previous.Before(current) {
			return failure(fmt.Errorf("jobs: tag %s does not advance latest release %s", current, previous))
		}
	}
	if err := jc.Artifacts.WriteFile(artifact.ReleaseVersion, []byte(current.String()+"\n"), v.Info().ID, jc.Run.ID); err != nil {
		return failure(err)
	}
	return job.Result{Status: job.StatusSucceeded, Message: current.String()}, nil
}
