package jobs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mfeuerstein/releasegate/internal/artifact"
	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/repohost"
	"github.com/mfeuerstein/releasegate/internal/step"
)

// Docs builds the documentation site and deploys it under a version-named
// directory on the publishing branch. When the deployed version equals the
// project's latest release tag, the stable alias is repointed at it. The
// latest-tag answer is read once and passed explicitly into the alias update,
// so redeploying with identical inputs reproduces the same alias target.
type Docs struct {
	job.Base
}

// NewDocs builds the docs deployment job.
func NewDocs() *Docs {
	d := &Docs{Base: job.NewBase(job.Info{
		ID:          pipeline.JobDocs,
		Name:        "Deploy documentation",
		Description: "Builds and deploys versioned documentation.",
		Version:     "1.0.0",
		Group:       pipeline.GroupDocs,
	})}
	d.SetProduces(artifact.DocsSite)
	d.SetConsumes(artifact.ReleaseVersion)
	return d
}

// Run builds the site, deploys it, and maybe repoints the stable alias.
func (d *Docs) Run(jc *job.Context) (job.Result, error) {
	current, err := releaseVersion(jc)
	if err != nil {
		return failure(err)
	}
	target := jc.Config.Project.Docs
	if target.Repo == "" || target.Branch == "" {
		return failure(fmt.Errorf("jobs: docs target is not configured"))
	}

	runner := step.Runner{Dir: jc.Artifacts.Root()}
	if err := runner.Run(jc, step.FromCommands("docs", jc.Config.Project.Commands.Docs)); err != nil {
		return failure(err)
	}
	siteDir := jc.Artifacts.Path(artifact.DocsSite)
	if err := requireNonEmptyDir(siteDir); err != nil {
		return failure(err)
	}
	if err := jc.Artifacts.Record(artifact.DocsSite, d.Info().ID, jc.Run.ID); err != nil {
		return failure(err)
	}

	if _, err := jc.Host.PushTree(jc.Ctx, repohost.PushRequest{
		Repo:      target.Repo,
		Branch:    target.Branch,
		DestDir:   current.String(),
		SourceDir: siteDir,
		Message:   fmt.Sprintf("Deploy docs for %s", current),
	}); err != nil {
		return failure(fmt.Errorf("jobs: deploy docs: %w", err))
	}

	latestTag, err := d.latestTag(jc, current.String())
	if err != nil {
		return failure(err)
	}
	if latestTag == current.String() {
		if err := d.pointAlias(jc, target.Alias(), current.String()); err != nil {
			return failure(err)
		}
		return job.Result{
			Status:  job.StatusSucceeded,
			Message: fmt.Sprintf("deployed %s, %s alias updated", current, target.Alias()),
		}, nil
	}
	return job.Result{
		Status:  job.StatusSucceeded,
		Message: fmt.Sprintf("deployed %s, %s alias stays on %s", current, target.Alias(), latestTag),
	}, nil
}

// latestTag queries the project's latest release. A project without any
// recorded release treats the version being deployed as latest.
func (d *Docs) latestTag(jc *job.Context, fallback string) (string, error) {
	repo := jc.Config.Project.Host.Repo
	if repo == "" {
		return "", fmt.Errorf("jobs: host.repo is not configured")
	}
	latest, err := jc.Host.LatestRelease(jc.Ctx, repo)
	if errors.Is(err, repohost.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("jobs: latest release lookup: %w", err)
	}
	return latest.TagName, nil
}

// pointAlias commits a pointer file naming the version directory the alias
// resolves to. Two concurrent deploys that both observe themselves as latest
// race on commit order; the branch history keeps both writes.
func (d *Docs) pointAlias(jc *job.Context, alias, tag string) error {
	dir, err := os.MkdirTemp("", "releasegate-alias-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	if err := os.WriteFile(filepath.Join(dir, alias), []byte(tag+"\n"), 0o644); err != nil {
		return err
	}
	docs := jc.Config.Project.Docs
	if _, err := jc.Host.PushTree(jc.Ctx, repohost.PushRequest{
		Repo:      docs.Repo,
		Branch:    docs.Branch,
		SourceDir: dir,
		Message:   fmt.Sprintf("Point %s at %s", alias, tag),
	}); err != nil {
		return fmt.Errorf("jobs: update %s alias: %w", alias, err)
	}
	return nil
}

func requireNonEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("jobs: read %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("jobs: directory %s is empty", dir)
	}
	return nil
}
