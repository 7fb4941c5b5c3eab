package scheduler

import "sync"

// GroupLocks provides cross-run mutual exclusion per concurrency group. A
// group is held by at most one run at a time; a later run's job with the same
// group is deferred (queued), never cancelled, so a publish in flight is
// never interrupted halfway.
type GroupLocks struct {
	mu   sync.Mutex
	held map[string]string
}

// NewGroupLocks returns an empty lock table.
func NewGroupLocks() *GroupLocks {
	return &GroupLocks{held: map[string]string{}}
}

// TryAcquire claims a group for a run. It reports true when the group was
// free, already held by the same run, or empty (unconstrained).
func (l *GroupLocks) TryAcquire(group, runID string) bool {
	if group == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	holder, taken := l.held[group]
	if taken && holder != runID {
		return false
	}
	l.held[group] = runID
	return true
}

// Release frees a group if the given run holds it.
func (l *GroupLocks) Release(group, runID string) {
	if group == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[group] == runID {
		delete(l.held, group)
	}
}

// Holder returns the run currently holding a group.
func (l *GroupLocks) Holder(group string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	holder, ok := l.held[group]
	return holder, ok
}
