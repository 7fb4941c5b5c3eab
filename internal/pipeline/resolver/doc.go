// Package resolver contains the dependency resolver core for job-based
// pipelines. It inspects pipeline definitions, instantiates jobs from the
// registry, verifies the artifact hand-off contract, and evaluates dependency
// readiness for the pipeline engine.
package resolver
