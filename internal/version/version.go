// Package version implements the release tag grammar used across the
// orchestrator: v<major>.<functional>.<technical> with an optional -rc<n>
// suffix. The major component is a six digit date stamp, so ordering is
// total and purely numeric.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tagPattern = regexp.MustCompile(
	`^v(?P<major>\d{6})\.(?P<functional>\d+)\.(?P<technical>\d+)(?:-rc(?P<candidate>\d+))?$`,
)

// Version is an immutable parsed release tag.
type Version struct {
	Major      int
	Functional int
	Technical  int
	// Candidate is nil for final releases.
	Candidate *int
}

// Parse decodes a release tag. When allowCandidate is false, -rc tags are
// rejected even if well formed.
func Parse(tag string, allowCandidate bool) (Version, error) {
	match := tagPattern.FindStringSubmatch(strings.TrimSpace(tag))
	if match == nil {
		return Version{}, fmt.Errorf("version: %q does not match %s", tag, tagPattern)
	}
	v := Version{}
	v.Major, _ = strconv.Atoi(match[1])
	v.Functional, _ = strconv.Atoi(match[2])
	v.Technical, _ = strconv.Atoi(match[3])
	if match[4] != "" {
		candidate, _ := strconv.Atoi(match[4])
		v.Candidate = &candidate
	}
	if !allowCandidate && v.IsCandidate() {
		return Version{}, fmt.Errorf("version: %q is a release candidate, expected a final release", tag)
	}
	return v, nil
}

// IsTag reports whether ref parses as a release tag at all.
func IsTag(ref string) bool {
	return tagPattern.MatchString(strings.TrimSpace(ref))
}

// IsCandidate reports whether the version carries an -rc suffix.
func (v Version) IsCandidate() bool {
	return v.Candidate != nil
}

// String renders the canonical tag form, including the leading v.
func (v Version) String() string {
	tag := fmt.Sprintf("v%06d.%d.%d", v.Major, v.Functional, v.Technical)
	if v.Candidate != nil {
		tag += fmt.Sprintf("-rc%d", *v.Candidate)
	}
	return tag
}

// Compare orders two versions. A candidate sorts before the final release it
// precedes, so v202401.1.0-rc1 < v202401.1.0.
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Functional, other.Functional); c != 0 {
		return c
	}
	if c := compareInt(v.Technical, other.Technical); c != 0 {
		return c
	}
	switch {
	case v.Candidate == nil && other.Candidate == nil:
		return 0
	case v.Candidate == nil:
		return 1
	case other.Candidate == nil:
		return -1
	default:
		return compareInt(*v.Candidate, *other.Candidate)
	}
}

// Before reports whether v precedes other in release order.
func (v Version) Before(other Version) bool {
	return v.Compare(other) < 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
