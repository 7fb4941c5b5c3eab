package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/logging"
	"github.com/mfeuerstein/releasegate/internal/pipeline/resolver"
)

// ContextFactory builds the per-run job context the driver hands to each job.
type ContextFactory func(run job.RunInfo) (*job.Context, error)

// Runner executes a run to completion: it asks the engine for dispatchable
// nodes, runs each job in its own goroutine, reports results back, and polls
// while jobs are deferred behind a concurrency group held elsewhere.
type Runner struct {
	engine     *Engine
	newContext ContextFactory
	poll       time.Duration
	log        *logging.Logger
}

// RunnerOption customizes driver construction.
type RunnerOption func(*Runner)

// WithPollInterval sets how long the driver waits before re-checking a run
// whose only pending jobs are deferred.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithRunnerLogger attaches a log for dispatch events.
func WithRunnerLogger(log *logging.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// NewRunner wires a driver to an engine and a job-context factory.
func NewRunner(engine *Engine, factory ContextFactory, opts ...RunnerOption) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine: runner requires an engine")
	}
	if factory == nil {
		return nil, fmt.Errorf("engine: runner requires a context factory")
	}
	r := &Runner{engine: engine, newContext: factory, poll: 2 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type completion struct {
	id     string
	result job.Result
	err    error
}

// Run drives the given run until it reaches a terminal status or the context
// is cancelled. It returns the final persisted state.
func (r *Runner) Run(ctx context.Context, runID string) (State, error) {
	state, err := r.engine.Update(runID, nil, nil)
	if err != nil {
		return State{}, err
	}
	jobCtx, err := r.newContext(job.RunInfo{ID: state.RunID, Event: state.Event, StartedAt: state.StartedAt})
	if err != nil {
		return State{}, err
	}
	if jobCtx.Ctx == nil || jobCtx.Ctx == context.Background() {
		jobCtx.Ctx = ctx
	}
	done := make(chan completion)
	running := map[string]struct{}{}
	for {
		if state.Status.Terminal() && len(running) == 0 {
			return state, nil
		}
		nodes, err := r.engine.Dispatchable(runID)
		if err != nil {
			return State{}, err
		}
		for _, node := range nodes {
			if _, active := running[node.ID]; active {
				continue
			}
			running[node.ID] = struct{}{}
			r.logf("run %s: dispatching %s", runID, node.ID)
			go r.execute(node, jobCtx, done)
		}
		if len(running) == 0 {
			if len(state.Deferred) == 0 {
				// Nothing running, nothing dispatchable, nothing deferred:
				// the snapshot must be terminal on the next recompute.
				state, err = r.engine.Update(runID, nil, nil)
				if err != nil {
					return State{}, err
				}
				if state.Status.Terminal() {
					return state, nil
				}
				return state, fmt.Errorf("engine: run %s stalled without deferred jobs", runID)
			}
			select {
			case <-ctx.Done():
				return state, ctx.Err()
			case <-time.After(r.poll):
			}
			state, err = r.engine.Update(runID, nil, keys(running))
			if err != nil {
				return State{}, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case finished := <-done:
			delete(running, finished.id)
			run := JobRun{Status: finished.result.Status, Message: finished.result.Message}
			if finished.err != nil {
				run.Status = job.StatusFailed
				run.Error = finished.err.Error()
			}
			state, err = r.engine.Update(runID, map[string]JobRun{finished.id: run}, keys(running))
			if err != nil {
				return State{}, err
			}
		}
	}
}

func (r *Runner) execute(node *resolver.Node, jobCtx *job.Context, done chan<- completion) {
	defer func() {
		if recovered := recover(); recovered != nil {
			done <- completion{id: node.ID, err: fmt.Errorf("job %s panicked: %v", node.ID, recovered)}
		}
	}()
	result, err := node.Job.Run(jobCtx)
	done <- completion{id: node.ID, result: result, err: err}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *Runner) logf(format string, args ...any) {
	if r.log == nil {
		return
	}
	r.log.Printf(format, args...)
}
