// Package artifact defines the filesystem-level hand-off contract between
// jobs. Each artifact has a stable identifier, a kind, and a path inside the
// run's working directory. Jobs declare which artifacts they produce and
// consume; the resolver enforces that a job only reads artifacts produced by
// one of its upstream jobs.
package artifact

import (
	"fmt"
	"strings"
	"time"
)

// Kind captures the storage shape of an artifact.
type Kind string

const (
	// KindDirectory represents a directory tree, e.g. generated schemas.
	KindDirectory Kind = "directory"
	// KindFile represents a single opaque file.
	KindFile Kind = "file"
	// KindJSON represents a single file that must parse as JSON.
	KindJSON Kind = "json"
)

// Ref identifies one artifact within a run's store.
type Ref struct {
	ID   string
	Kind Kind
	// Path is relative to the store root.
	Path string
}

// Validate ensures the reference is usable.
func (r Ref) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("artifact: ref id is required")
	}
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("artifact: ref %s needs a path", r.ID)
	}
	switch r.Kind {
	case KindDirectory, KindFile, KindJSON:
		return nil
	default:
		return fmt.Errorf("artifact: ref %s has unknown kind %q", r.ID, r.Kind)
	}
}

// State describes the store's view of an artifact.
type State string

const (
	StateReady   State = "ready"
	StateMissing State = "missing"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// Metadata records which job produced an artifact during which run.
type Metadata struct {
	ArtifactID string    `json:"artifact"`
	JobID      string    `json:"job"`
	RunID      string    `json:"run"`
	CreatedAt  time.Time `json:"created"`
}

// CheckResult reports the outcome of a store inspection.
type CheckResult struct {
	Ref      Ref
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}

// Well-known artifacts of the built-in release pipeline.
var (
	// ReleaseVersion is the validated tag written by the version-tag job.
	ReleaseVersion = Ref{ID: "release-version", Kind: KindFile, Path: "VERSION"}
	// SchemasDir holds the generated schema tree pushed to the sibling repo.
	SchemasDir = Ref{ID: "json-schemas", Kind: KindDirectory, Path: "schemas"}
	// DocsSite holds the rendered documentation for the current version.
	DocsSite = Ref{ID: "docs-site", Kind: KindDirectory, Path: "site"}
	// DistDir holds the built distribution files awaiting upload.
	DistDir = Ref{ID: "distributions", Kind: KindDirectory, Path: "dist"}
)
