// Package repohost talks to the source-control host API: pushing generated
// trees into a repository, resolving branch heads, and creating tagged
// releases. Lookups are idempotent and retried with exponential backoff;
// writes are never retried because a duplicate push or release is worse than
// a failed run.
package repohost

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the host has no matching resource, e.g. a
// repository without any published release.
var ErrNotFound = errors.New("repohost: not found")

// Release describes a published release on the host.
type Release struct {
	TagName   string `json:"tag_name"`
	CommitSHA string `json:"commit_sha"`
}

// PushRequest describes one tree push into a target repository.
type PushRequest struct {
	Repo      string
	Branch    string
	DestDir   string
	SourceDir string
	Message   string
}

// API is the host surface the orchestrator depends on. The HTTP client
// implements it; tests substitute an in-memory fake.
type API interface {
	// PushTree commits the contents of SourceDir under DestDir on the target
	// branch and returns the created commit SHA.
	PushTree(ctx context.Context, req PushRequest) (string, error)
	// BranchHead returns the commit SHA at the tip of a branch.
	BranchHead(ctx context.Context, repo, branch string) (string, error)
	// CreateRelease publishes a release pointing the tag at the commit.
	CreateRelease(ctx context.Context, repo, tag, commitSHA string) error
	// LatestRelease returns the most recently published release, or
	// ErrNotFound when the repository has none.
	LatestRelease(ctx context.Context, repo string) (Release, error)
}
