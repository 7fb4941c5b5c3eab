package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mfeuerstein/releasegate/internal/artifact"
	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/repohost"
	"github.com/mfeuerstein/releasegate/internal/step"
)

// ErrUnreconciled signals that the schema repository's branch head is ahead
// of its latest release: a previous run committed but never tagged, and
// pushing on top would bury the evidence. An operator has to reconcile first.
var ErrUnreconciled = errors.New("jobs: schema repository has unreleased commits")

// Schemas generates the JSON schema tree, validates it, and publishes it to
// the sibling schema repository: push the tree, then create a tagged release
// on the resulting commit. The push and the release are separate writes with
// no rollback; the reconciliation guard keeps repeated half-publishes from
// stacking up.
type Schemas struct {
	job.Base
}

// NewSchemas builds the schema publishing job.
func NewSchemas() *Schemas {
	s := &Schemas{Base: job.NewBase(job.Info{
		ID:          pipeline.JobSchemas,
		Name:        "Publish JSON schemas",
		Description: "Generates schemas and publishes them to the sibling repository.",
		Version:     "1.0.0",
		Group:       pipeline.GroupSchemas,
	})}
	s.SetProduces(artifact.SchemasDir)
	s.SetConsumes(artifact.ReleaseVersion)
	return s
}

// Run generates, validates, and publishes the schema tree.
func (s *Schemas) Run(jc *job.Context) (job.Result, error) {
	current, err := releaseVersion(jc)
	if err != nil {
		return failure(err)
	}
	target := jc.Config.Project.SchemaRepo
	if target.Repo == "" || target.Branch == "" {
		return failure(fmt.Errorf("jobs: schema_repo is not configured"))
	}

	runner := step.Runner{Dir: jc.Artifacts.Root()}
	if err := runner.Run(jc, step.FromCommands("schemas", jc.Config.Project.Commands.Schemas)); err != nil {
		return failure(err)
	}
	sourceDir := jc.Artifacts.Path(artifact.SchemasDir)
	if err := validateSchemaTree(sourceDir); err != nil {
		return failure(err)
	}
	if err := jc.Artifacts.Record(artifact.SchemasDir, s.Info().ID, jc.Run.ID); err != nil {
		return failure(err)
	}

	if err := s.checkReconciled(jc, target.Repo, target.Branch); err != nil {
		return failure(err)
	}
	sha, err := jc.Host.PushTree(jc.Ctx, repohost.PushRequest{
		Repo:      target.Repo,
		Branch:    target.Branch,
		DestDir:   target.DestDir,
		SourceDir: sourceDir,
		Message:   fmt.Sprintf("Update schemas for %s", current),
	})
	if err != nil {
		return failure(fmt.Errorf("jobs: push schemas: %w", err))
	}
	if err := jc.Host.CreateRelease(jc.Ctx, target.Repo, current.String(), sha); err != nil {
		// The commit landed but the tag did not: the next run's guard trips
		// until an operator tags or reverts it.
		return failure(fmt.Errorf("jobs: release %s on %s (commit %s pushed): %w", current, target.Repo, sha, err))
	}
	return job.Result{
		Status:  job.StatusSucceeded,
		Message: fmt.Sprintf("published %s at %s", current, sha),
	}, nil
}

// checkReconciled verifies that the target branch head matches the commit of
// the latest release. A repository without any release is trivially clean.
func (s *Schemas) checkReconciled(jc *job.Context, repo, branch string) error {
	latest, err := jc.Host.LatestRelease(jc.Ctx, repo)
	if errors.Is(err, repohost.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jobs: latest schema release lookup: %w", err)
	}
	head, err := jc.Host.BranchHead(jc.Ctx, repo, branch)
	if err != nil {
		return fmt.Errorf("jobs: branch head lookup: %w", err)
	}
	if head != latest.CommitSHA {
		return fmt.Errorf("%w: %s head %s, latest release %s at %s",
			ErrUnreconciled, branch, head, latest.TagName, latest.CommitSHA)
	}
	return nil
}

// validateSchemaTree rejects an empty tree and any file that is not valid
// JSON. A malformed tree is a hard failure, never a silent skip.
func validateSchemaTree(dir string) error {
	files := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		files++
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var payload any
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("jobs: schema %s is not valid json: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if files == 0 {
		return fmt.Errorf("jobs: schema directory %s is empty", dir)
	}
	return nil
}
