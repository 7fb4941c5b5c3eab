// Package engine owns the run lifecycle: it turns a trigger event plus a
// pipeline definition into a persisted run, recomputes resolver and scheduler
// snapshots as job results arrive, and derives the run's externally visible
// status. Execution itself is delegated to a driver so the engine stays a
// pure state machine.
package engine
