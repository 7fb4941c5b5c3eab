package step

import (
	"context"
	"errors"
	"testing"

	"github.com/mfeuerstein/releasegate/internal/job"
)

func testContext() *job.Context {
	return &job.Context{Ctx: context.Background()}
}

func TestRunExecutesActionsInOrder(t *testing.T) {
	var order []string
	steps := []Step{
		{Name: "first", Action: func(*job.Context) error { order = append(order, "first"); return nil }},
		{Name: "second", Action: func(*job.Context) error { order = append(order, "second"); return nil }},
	}
	if err := (Runner{}).Run(testContext(), steps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRunHaltsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	var reached bool
	steps := []Step{
		{Name: "fails", Action: func(*job.Context) error { return boom }},
		{Name: "never", Action: func(*job.Context) error { reached = true; return nil }},
	}
	err := (Runner{}).Run(testContext(), steps)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if reached {
		t.Fatalf("later step ran after failure")
	}
}

func TestRunCommandStep(t *testing.T) {
	steps := []Step{{Name: "noop", Command: []string{"true"}}}
	if err := (Runner{Dir: t.TempDir()}).Run(testContext(), steps); err != nil {
		t.Fatalf("command step: %v", err)
	}
	failing := []Step{{Name: "fail", Command: []string{"false"}}}
	if err := (Runner{}).Run(testContext(), failing); err == nil {
		t.Fatalf("expected command failure")
	}
}

func TestValidateRejectsAmbiguousSteps(t *testing.T) {
	both := Step{Name: "both", Command: []string{"true"}, Action: func(*job.Context) error { return nil }}
	if err := both.Validate(); err == nil {
		t.Fatalf("expected rejection of command+action step")
	}
	neither := Step{Name: "neither"}
	if err := neither.Validate(); err == nil {
		t.Fatalf("expected rejection of empty step")
	}
}

func TestFromCommands(t *testing.T) {
	steps := FromCommands("tests", [][]string{{"go", "test", "./..."}, {"go", "vet", "./..."}})
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Name != "tests-1" || steps[1].Name != "tests-2" {
		t.Fatalf("unexpected names %q %q", steps[0].Name, steps[1].Name)
	}
	if steps[1].Command[1] != "vet" {
		t.Fatalf("unexpected argv %v", steps[1].Command)
	}
}
