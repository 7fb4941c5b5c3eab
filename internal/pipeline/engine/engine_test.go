package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

type stubJob struct {
	job.Base
	mu     sync.Mutex
	runs   int
	result job.Result
	err    error
}

func newStubJob(id, group string) *stubJob {
	return &stubJob{
		Base:   job.NewBase(job.Info{ID: id, Name: id, Version: "1.0.0", Group: group}),
		result: job.Result{Status: job.StatusSucceeded},
	}
}

func (s *stubJob) Run(*job.Context) (job.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return s.result, s.err
}

func (s *stubJob) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func registryFor(t *testing.T, jobs ...*stubJob) *job.Registry {
	t.Helper()
	registry := job.NewRegistry()
	for _, stub := range jobs {
		stub := stub
		registry.MustRegister(stub.Info().ID, func(job.Config) (job.Job, error) { return stub, nil })
	}
	return registry
}

func chainDefinition() pipeline.Definition {
	return pipeline.Definition{
		ID: "chain",
		Jobs: []pipeline.JobRef{
			{JobID: "plan"},
			{JobID: "build", DependsOn: []string{"plan"}},
			{JobID: "publish", DependsOn: []string{"build"}},
		},
	}
}

func tagEvent() trigger.Event {
	return trigger.Event{Kind: trigger.KindCreated, Ref: "v202401.0.0"}
}

func newEngine(t *testing.T, registry *job.Registry) (*Engine, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	eng, err := New(registry, store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, store
}

func TestStartRejectsIneligibleEvents(t *testing.T) {
	eng, _ := newEngine(t, registryFor(t, newStubJob("plan", "")))
	cases := []trigger.Event{
		{Kind: trigger.KindDeleted, Ref: "v202401.0.0"},
		{Kind: trigger.KindCreated, Ref: "main"},
		{Kind: trigger.KindCreated, Ref: ""},
	}
	for _, event := range cases {
		if _, err := eng.Start(chainDefinition(), event); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("event %+v: expected ErrNotEligible, got %v", event, err)
		}
	}
}

func TestStartPersistsInitialSnapshot(t *testing.T) {
	eng, store := newEngine(t, registryFor(t,
		newStubJob("plan", ""), newStubJob("build", ""), newStubJob("publish", "")))
	state, err := eng.Start(chainDefinition(), tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Status != RunStatusRunning {
		t.Fatalf("expected running, got %s", state.Status)
	}
	if len(state.Runnable) != 1 || state.Runnable[0] != "plan" {
		t.Fatalf("expected plan runnable, got %v", state.Runnable)
	}
	loaded, err := store.Load(state.RunID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.RunID != state.RunID || loaded.PipelineID != "chain" {
		t.Fatalf("persisted snapshot mismatch: %+v", loaded)
	}
	if _, ok := loaded.Job("publish"); !ok {
		t.Fatalf("persisted snapshot missing node publish")
	}
}

func TestUpdateAdvancesChainToSuccess(t *testing.T) {
	eng, _ := newEngine(t, registryFor(t,
		newStubJob("plan", ""), newStubJob("build", ""), newStubJob("publish", "")))
	state, err := eng.Start(chainDefinition(), tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, id := range []string{"plan", "build", "publish"} {
		if len(state.Runnable) != 1 || state.Runnable[0] != id {
			t.Fatalf("expected %s runnable, got %v", id, state.Runnable)
		}
		state, err = eng.Update(state.RunID, map[string]JobRun{id: {Status: job.StatusSucceeded}}, nil)
		if err != nil {
			t.Fatalf("update %s: %v", id, err)
		}
	}
	if state.Status != RunStatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", state.Status, state.StatusReason)
	}
}

func TestFailureSkipsDependentsAndFailsRun(t *testing.T) {
	eng, _ := newEngine(t, registryFor(t,
		newStubJob("plan", ""), newStubJob("build", ""), newStubJob("publish", "")))
	state, err := eng.Start(chainDefinition(), tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err = eng.Update(state.RunID, map[string]JobRun{
		"plan": {Status: job.StatusFailed, Error: "tests exploded"},
	}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if state.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", state.Status)
	}
	build, _ := state.Job("build")
	publish, _ := state.Job("publish")
	if build.State != "skipped" || publish.State != "skipped" {
		t.Fatalf("expected transitive skip, got build=%s publish=%s", build.State, publish.State)
	}
}

func TestUpdateReleasesGroupLockOnTerminalResult(t *testing.T) {
	def := pipeline.Definition{
		ID:   "solo",
		Jobs: []pipeline.JobRef{{JobID: "publish", Group: "publish-docs"}},
	}
	eng, _ := newEngine(t, registryFor(t, newStubJob("publish", "")))
	state, err := eng.Start(def, tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if holder, ok := eng.Locks().Holder("publish-docs"); !ok || holder != state.RunID {
		t.Fatalf("expected run to hold group after dispatch decision, got %q %v", holder, ok)
	}
	if _, err := eng.Update(state.RunID, map[string]JobRun{"publish": {Status: job.StatusSucceeded}}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := eng.Locks().Holder("publish-docs"); ok {
		t.Fatalf("group still held after terminal result")
	}
}

func TestRunBlocksWhileAnotherRunHoldsGroup(t *testing.T) {
	def := pipeline.Definition{
		ID:   "solo",
		Jobs: []pipeline.JobRef{{JobID: "publish", Group: "publish-docs"}},
	}
	eng, _ := newEngine(t, registryFor(t, newStubJob("publish", "")))
	eng.Locks().TryAcquire("publish-docs", "run-other")
	state, err := eng.Start(def, tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Status != RunStatusBlocked {
		t.Fatalf("expected blocked run, got %s", state.Status)
	}
	if _, ok := state.Deferred["publish"]; !ok {
		t.Fatalf("expected publish deferred, got %+v", state.Deferred)
	}
	eng.Locks().Release("publish-docs", "run-other")
	state, err = eng.Update(state.RunID, nil, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if state.Status != RunStatusRunning || len(state.Runnable) != 1 {
		t.Fatalf("expected runnable after release, got %s %v", state.Status, state.Runnable)
	}
}

func TestResumeRebuildsFromStore(t *testing.T) {
	registry := registryFor(t,
		newStubJob("plan", ""), newStubJob("build", ""), newStubJob("publish", ""))
	eng, store := newEngine(t, registry)
	state, err := eng.Start(chainDefinition(), tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := eng.Update(state.RunID, map[string]JobRun{"plan": {Status: job.StatusSucceeded}}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	// A fresh engine over the same store stands for a process restart.
	restarted, err := New(registry, store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	resumed, err := restarted.Resume(state.RunID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(resumed.Runnable) != 1 || resumed.Runnable[0] != "build" {
		t.Fatalf("expected build runnable after resume, got %v", resumed.Runnable)
	}
	plan, _ := resumed.Job("plan")
	if plan.State != "succeeded" || plan.LastRun == nil {
		t.Fatalf("plan result lost across resume: %+v", plan)
	}
}

func TestRunnerDrivesRunToCompletion(t *testing.T) {
	plan := newStubJob("plan", "")
	build := newStubJob("build", "")
	publish := newStubJob("publish", "")
	eng, _ := newEngine(t, registryFor(t, plan, build, publish))
	state, err := eng.Start(chainDefinition(), tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	runner, err := NewRunner(eng, func(run job.RunInfo) (*job.Context, error) {
		return &job.Context{Run: run}, nil
	}, WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	final, err := runner.Run(context.Background(), state.RunID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final.Status != RunStatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", final.Status, final.StatusReason)
	}
	for _, stub := range []*stubJob{plan, build, publish} {
		if stub.runCount() != 1 {
			t.Fatalf("job %s ran %d times", stub.Info().ID, stub.runCount())
		}
	}
}

func TestRunnerRecordsFailureFromError(t *testing.T) {
	plan := newStubJob("plan", "")
	plan.err = errors.New("compiler unavailable")
	plan.result = job.Result{}
	build := newStubJob("build", "")
	publish := newStubJob("publish", "")
	eng, _ := newEngine(t, registryFor(t, plan, build, publish))
	state, err := eng.Start(chainDefinition(), tagEvent())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	runner, _ := NewRunner(eng, func(run job.RunInfo) (*job.Context, error) {
		return &job.Context{Run: run}, nil
	})
	final, err := runner.Run(context.Background(), state.RunID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", final.Status)
	}
	planStatus, _ := final.Job("plan")
	if planStatus.LastRun == nil || planStatus.LastRun.Error != "compiler unavailable" {
		t.Fatalf("error not recorded: %+v", planStatus.LastRun)
	}
	if build.runCount() != 0 || publish.runCount() != 0 {
		t.Fatalf("skipped jobs must never run")
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Load("nope"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
	if _, err := store.Latest(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound from Latest, got %v", err)
	}
}
