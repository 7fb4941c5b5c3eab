// Package trigger decides whether an incoming release event starts a pipeline
// run. The predicate is deliberately loose (a "v" prefix, not the full tag
// grammar): strict tag validation belongs to the version-tag job so that a
// malformed tag produces a visible failed run instead of silence.
package trigger

import "strings"

// Kind classifies the release event that reached the orchestrator.
type Kind string

const (
	KindCreated Kind = "created"
	KindEdited  Kind = "edited"
	KindDeleted Kind = "deleted"
)

// TagPrefix is the reference prefix that marks a release tag.
const TagPrefix = "v"

// Event is the immutable trigger input for one potential run.
type Event struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Ref  string `json:"ref" yaml:"ref"`
}

// Eligible reports whether the event should start a run: the release was
// created or edited and the reference looks like a version tag.
func Eligible(event Event) bool {
	switch event.Kind {
	case KindCreated, KindEdited:
	default:
		return false
	}
	ref := strings.TrimSpace(event.Ref)
	return len(ref) > len(TagPrefix) && strings.HasPrefix(ref, TagPrefix)
}
