// Package scheduler turns resolver snapshots into runnable batches that
// respect dependency order plus runtime constraints: per-run parallelism
// caps, per-job trigger conditions, and cross-run concurrency-group locks.
// It is a thin layer the pipeline engine calls to decide which jobs to
// dispatch next without re-implementing filtering logic.
package scheduler
