package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/logging"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/pipeline/resolver"
	"github.com/mfeuerstein/releasegate/internal/pipeline/scheduler"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

// ErrNotEligible is returned when a trigger event does not qualify to start a
// run: only created/edited events whose ref carries the tag prefix do.
var ErrNotEligible = errors.New("engine: event not eligible to start a run")

// Engine coordinates run state: it admits trigger events, tracks job results,
// and persists a snapshot after every transition.
type Engine struct {
	registry *job.Registry
	store    StateStore
	locks    *scheduler.GroupLocks
	log      *logging.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// session holds the in-memory graph for one active run. The resolver and
// scheduler are rebuilt from the persisted definition on Resume.
type session struct {
	state State
	res   *resolver.Resolver
	sched *scheduler.Scheduler
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock injects a time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocks shares a concurrency-group lock table across engines.
func WithLocks(locks *scheduler.GroupLocks) Option {
	return func(e *Engine) {
		if locks != nil {
			e.locks = locks
		}
	}
}

// WithLogger attaches a run log.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New builds an engine over a job registry and a state store.
func New(registry *job.Registry, store StateStore, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: job registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: state store is required")
	}
	e := &Engine{
		registry: registry,
		store:    store,
		locks:    scheduler.NewGroupLocks(),
		now:      time.Now,
		sessions: map[string]*session{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Locks exposes the engine's concurrency-group table so serving code can
// share it with sibling engines.
func (e *Engine) Locks() *scheduler.GroupLocks {
	return e.locks
}

// Start admits a trigger event and creates a new persisted run for the given
// pipeline definition. Ineligible events are rejected with ErrNotEligible
// before any state is written.
func (e *Engine) Start(def pipeline.Definition, event trigger.Event) (State, error) {
	if !trigger.Eligible(event) {
		return State{}, fmt.Errorf("engine: %s event for ref %q: %w", event.Kind, event.Ref, ErrNotEligible)
	}
	res, err := resolver.New(def, e.registry)
	if err != nil {
		return State{}, err
	}
	sched, err := scheduler.New(res, e.locks)
	if err != nil {
		return State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now().UTC()
	s := &session{
		res:   res,
		sched: sched,
		state: State{
			RunID:       uuid.NewString(),
			PipelineID:  def.ID,
			Event:       event,
			Definition:  res.Definition(),
			MaxParallel: def.Runtime.MaxParallel,
			Results:     map[string]JobRun{},
			StartedAt:   now,
		},
	}
	if err := e.refresh(s, nil); err != nil {
		return State{}, err
	}
	e.sessions[s.state.RunID] = s
	if err := e.store.Save(s.state); err != nil {
		return State{}, err
	}
	e.logf("run %s started for %s (%s)", s.state.RunID, event.Ref, event.Kind)
	return s.state, nil
}

// Update merges completed job results into a run, releases the concurrency
// groups those jobs held, recomputes the snapshot, and persists it. The
// running list names job instances still executing so they are neither
// re-dispatched nor counted as stalled.
func (e *Engine) Update(runID string, completed map[string]JobRun, running []string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(runID)
	if err != nil {
		return State{}, err
	}
	for id, run := range completed {
		node, ok := s.res.Node(id)
		if !ok {
			return State{}, fmt.Errorf("engine: run %s: result for unknown job %s", runID, id)
		}
		if run.FinishedAt.IsZero() {
			run.FinishedAt = e.now().UTC()
		}
		s.state.Results[id] = run
		e.locks.Release(node.Group, runID)
		e.logf("run %s job %s finished: %s", runID, id, run.Status)
	}
	if err := e.refresh(s, runningSet(running)); err != nil {
		return State{}, err
	}
	if err := e.store.Save(s.state); err != nil {
		return State{}, err
	}
	return s.state, nil
}

// Resume rebuilds the in-memory graph for a persisted run. Jobs that were
// mid-flight when the process stopped have no recorded result and return to
// the ready set.
func (e *Engine) Resume(runID string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.store.Load(runID)
	if err != nil {
		return State{}, err
	}
	res, err := resolver.New(state.Definition, e.registry)
	if err != nil {
		return State{}, err
	}
	sched, err := scheduler.New(res, e.locks)
	if err != nil {
		return State{}, err
	}
	if state.Results == nil {
		state.Results = map[string]JobRun{}
	}
	s := &session{state: state, res: res, sched: sched}
	if err := e.refresh(s, nil); err != nil {
		return State{}, err
	}
	e.sessions[runID] = s
	if err := e.store.Save(s.state); err != nil {
		return State{}, err
	}
	e.logf("run %s resumed (%s)", runID, s.state.Status)
	return s.state, nil
}

// View returns the persisted snapshot without recomputing anything.
func (e *Engine) View(runID string) (State, error) {
	return e.store.Load(runID)
}

// Latest returns the most recently updated persisted run.
func (e *Engine) Latest() (State, error) {
	return e.store.Latest()
}

// Dispatchable resolves the run's current runnable set to executable nodes.
// The scheduler already holds the concurrency groups for these nodes.
func (e *Engine) Dispatchable(runID string) ([]*resolver.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(runID)
	if err != nil {
		return nil, err
	}
	nodes := make([]*resolver.Node, 0, len(s.state.Runnable))
	for _, id := range s.state.Runnable {
		node, ok := s.res.Node(id)
		if !ok {
			return nil, fmt.Errorf("engine: run %s: runnable job %s not in graph", runID, id)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (e *Engine) session(runID string) (*session, error) {
	s, ok := e.sessions[runID]
	if !ok {
		return nil, fmt.Errorf("engine: run %s has no active session, resume it first", runID)
	}
	return s, nil
}

// refresh recomputes node states and the scheduler batch until no new
// condition skips appear, then derives the run status. Condition skips are
// recorded as skipped results so the resolver cascades them to dependents.
func (e *Engine) refresh(s *session, running map[string]struct{}) error {
	var batch scheduler.Batch
	for {
		s.res.Apply(jobResults(s.state.Results), running)
		var err error
		batch, err = s.sched.Runnable(scheduler.Request{
			RunID:       s.state.RunID,
			Event:       s.state.Event,
			Running:     sortedKeys(running),
			MaxParallel: s.state.MaxParallel,
		})
		if err != nil {
			return err
		}
		changed := false
		for id, reason := range batch.Skipped {
			if _, done := s.state.Results[id]; done {
				continue
			}
			s.state.Results[id] = JobRun{
				Status:     job.StatusSkipped,
				Message:    reason.Detail,
				FinishedAt: e.now().UTC(),
			}
			changed = true
		}
		if !changed {
			break
		}
	}
	s.state.Nodes = snapshotNodes(s.res, s.state.Results)
	s.state.Runnable = nodeIDs(batch.Nodes)
	s.state.Deferred = cloneReasons(batch.Deferred)
	s.state.Running = sortedKeys(running)
	s.state.Results = cloneRuns(s.state.Results)
	s.state.Status, s.state.StatusReason = deriveStatus(s.res, s.state.Results, batch, running)
	s.state.UpdatedAt = e.now().UTC()
	if s.state.Status.Terminal() {
		e.releaseRun(s)
	}
	return nil
}

// releaseRun drops every concurrency group the run may still hold. The nodes
// the scheduler never dispatched (skipped downstream of a failure) were never
// acquired, so releasing is holder-checked and safe.
func (e *Engine) releaseRun(s *session) {
	for _, node := range s.res.Nodes() {
		e.locks.Release(node.Group, s.state.RunID)
	}
}

func deriveStatus(res *resolver.Resolver, results map[string]JobRun, batch scheduler.Batch, running map[string]struct{}) (RunStatus, string) {
	if res.Settled() {
		for _, node := range res.Nodes() {
			run, ok := results[node.ID]
			if !ok {
				continue
			}
			switch run.Status {
			case job.StatusFailed:
				return RunStatusFailed, fmt.Sprintf("job %s failed", node.ID)
			case job.StatusSkipped:
				return RunStatusFailed, fmt.Sprintf("job %s was skipped", node.ID)
			}
		}
		return RunStatusSucceeded, ""
	}
	if len(batch.Nodes) == 0 && len(running) == 0 {
		for id, reason := range batch.Deferred {
			return RunStatusBlocked, fmt.Sprintf("job %s deferred: %s", id, reason.Detail)
		}
		return RunStatusBlocked, "no dispatchable jobs"
	}
	return RunStatusRunning, ""
}

func snapshotNodes(res *resolver.Resolver, results map[string]JobRun) []JobStatus {
	nodes := res.Nodes()
	out := make([]JobStatus, 0, len(nodes))
	for _, node := range nodes {
		status := JobStatus{
			ID:           node.ID,
			Ref:          node.Ref,
			Name:         node.Job.Info().Name,
			Group:        node.Group,
			State:        node.State,
			Dependencies: cloneStrings(node.Dependencies),
			Dependents:   cloneStrings(node.Dependents),
			BlockedBy:    cloneStrings(node.BlockedBy),
		}
		if run, ok := results[node.ID]; ok {
			run := run
			status.LastRun = &run
		}
		out = append(out, status)
	}
	return out
}

func jobResults(runs map[string]JobRun) map[string]job.Result {
	out := make(map[string]job.Result, len(runs))
	for id, run := range runs {
		out[id] = job.Result{Status: run.Status, Message: run.Message}
	}
	return out
}

func nodeIDs(nodes []*resolver.Node) []string {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]string, len(nodes))
	for i, node := range nodes {
		out[i] = node.ID
	}
	return out
}

func runningSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) logf(format string, args ...any) {
	if e.log == nil {
		return
	}
	e.log.Printf(format, args...)
}
