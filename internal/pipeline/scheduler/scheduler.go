package scheduler

import (
	"fmt"

	"github.com/mfeuerstein/releasegate/internal/pipeline/resolver"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

// Selector exposes the minimal contract the pipeline engine needs to request
// runnable job batches.
type Selector interface {
	Runnable(Request) (Batch, error)
}

// Scheduler implements Selector on top of a dependency resolver. It examines
// ready nodes, filters those that are truly dispatchable, and enforces any
// configured constraints.
type Scheduler struct {
	resolver *resolver.Resolver
	locks    *GroupLocks
}

// New wires a Scheduler to a resolver snapshot and a (possibly shared)
// concurrency-group lock table.
func New(res *resolver.Resolver, locks *GroupLocks) (*Scheduler, error) {
	if res == nil {
		return nil, fmt.Errorf("pipeline: scheduler requires a resolver")
	}
	if locks == nil {
		locks = NewGroupLocks()
	}
	return &Scheduler{resolver: res, locks: locks}, nil
}

// Request captures the current runtime state plus scheduling constraints.
type Request struct {
	// RunID identifies the run acquiring concurrency-group locks.
	RunID string
	// Event is the run's trigger context, used to evaluate job conditions.
	Event trigger.Event
	// Running lists job instance IDs currently executing so the scheduler
	// won't dispatch them twice and can enforce MaxParallel.
	Running []string
	// BatchSize limits how many runnable nodes are returned at once. Values
	// <= 0 are treated as "no limit" (subject to MaxParallel enforcement).
	BatchSize int
	// MaxParallel caps how many jobs may be active at once, including the
	// jobs listed in Running. Values <= 0 disable the limit.
	MaxParallel int
}

// Batch describes the scheduler's decision. Nodes hold the group locks they
// need; the engine must release those locks when each job reaches a terminal
// state (or is not dispatched after all).
type Batch struct {
	Nodes []*resolver.Node
	// Skipped lists jobs excluded permanently, e.g. a false condition.
	Skipped map[string]SkipReason
	// Deferred lists jobs that stay pending and will be reconsidered, e.g. a
	// concurrency group held by another run.
	Deferred map[string]SkipReason
}

// SkipReason explains why a node was excluded from the runnable set.
type SkipReason struct {
	Reason SkipReasonCode
	Detail string
}

// SkipReasonCode enumerates scheduler exclusion reasons.
type SkipReasonCode string

const (
	SkipReasonCondition   SkipReasonCode = "condition"
	SkipReasonGroupHeld   SkipReasonCode = "group-held"
	SkipReasonConcurrency SkipReasonCode = "concurrency"
	SkipReasonActive      SkipReasonCode = "already-running"
)

// Runnable returns a batch of dispatchable nodes constrained by the request.
func (s *Scheduler) Runnable(req Request) (Batch, error) {
	result := Batch{}
	running := req.runningSet()
	limit := req.batchLimit(len(running))
	for _, node := range s.resolver.Ready() {
		if _, active := running[node.ID]; active {
			result.deferNode(node.ID, SkipReason{Reason: SkipReasonActive, Detail: "job already running"})
			continue
		}
		if !node.Condition.Holds(req.Event) {
			result.skip(node.ID, SkipReason{
				Reason: SkipReasonCondition,
				Detail: fmt.Sprintf("condition %s does not hold for %s", node.Condition, req.Event.Ref),
			})
			continue
		}
		if limit == 0 {
			result.deferNode(node.ID, SkipReason{
				Reason: SkipReasonConcurrency,
				Detail: fmt.Sprintf("max parallel %d reached", req.MaxParallel),
			})
			continue
		}
		if !s.locks.TryAcquire(node.Group, req.RunID) {
			holder, _ := s.locks.Holder(node.Group)
			result.deferNode(node.ID, SkipReason{
				Reason: SkipReasonGroupHeld,
				Detail: fmt.Sprintf("group %s held by run %s", node.Group, holder),
			})
			continue
		}
		result.Nodes = append(result.Nodes, node)
		if limit > 0 {
			limit--
		}
	}
	return result, nil
}

// Locks returns the lock table this scheduler acquires against.
func (s *Scheduler) Locks() *GroupLocks {
	return s.locks
}

func (req Request) runningSet() map[string]struct{} {
	set := make(map[string]struct{}, len(req.Running))
	for _, id := range req.Running {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// batchLimit returns how many nodes may still be dispatched, or -1 for
// unlimited.
func (req Request) batchLimit(runningCount int) int {
	limit := -1
	if req.BatchSize > 0 {
		limit = req.BatchSize
	}
	if req.MaxParallel > 0 {
		remaining := req.MaxParallel - runningCount
		if remaining < 0 {
			remaining = 0
		}
		if limit < 0 || remaining < limit {
			limit = remaining
		}
	}
	return limit
}

func (b *Batch) skip(id string, reason SkipReason) {
	if b.Skipped == nil {
		b.Skipped = make(map[string]SkipReason)
	}
	b.Skipped[id] = reason
}

func (b *Batch) deferNode(id string, reason SkipReason) {
	if b.Deferred == nil {
		b.Deferred = make(map[string]SkipReason)
	}
	b.Deferred[id] = reason
}
