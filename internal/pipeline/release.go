package pipeline

// Job identifiers of the built-in release pipeline. Concrete implementations
// live under internal/jobs.
const (
	JobTests         = "tests"
	JobVersionTag    = "check-version-tag"
	JobSchemas       = "json-schemas"
	JobDocs          = "docs"
	JobDistributions = "build-n-publish-distributions"
)

// Concurrency groups serializing the publishing jobs across overlapping runs.
const (
	GroupSchemas       = "publish-json-schemas"
	GroupDocs          = "publish-docs"
	GroupDistributions = "build-n-publish-distributions"
)

// ReleaseDefinition returns the built-in release pipeline: tests and the
// version-tag check fan out into schema publishing and docs deployment, and
// distribution publishing runs last. Docs deployment is a sibling of the
// distribution job, not an upstream: the latest-tag answer used for the
// stable alias must never gate the registry upload.
func ReleaseDefinition() Definition {
	return Definition{
		ID:   "release",
		Name: "Release",
		Description: "Validates a tagged release, publishes generated schemas " +
			"to the sibling repository, deploys versioned documentation, and " +
			"uploads distributions to the package index.",
		Jobs: []JobRef{
			{
				JobID: JobTests,
				Name:  "Tests",
			},
			{
				JobID: JobVersionTag,
				Name:  "Check version tag",
			},
			{
				JobID:     JobSchemas,
				Name:      "Publish JSON schemas",
				DependsOn: []string{JobTests, JobVersionTag},
				Group:     GroupSchemas,
			},
			{
				JobID:     JobDocs,
				Name:      "Deploy documentation",
				DependsOn: []string{JobTests, JobVersionTag},
				Group:     GroupDocs,
			},
			{
				JobID:     JobDistributions,
				Name:      "Build and publish distributions",
				DependsOn: []string{JobTests, JobVersionTag, JobSchemas},
				Group:     GroupDistributions,
				Condition: ConditionOnReleaseTag,
			},
		},
	}
}
