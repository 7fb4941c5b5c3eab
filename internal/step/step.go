// Package step executes the ordered steps inside a job. Steps run strictly
// sequentially; the first failure halts the remainder and fails the owning
// job. The executor has no retry or timeout policy of its own — cancellation
// arrives through the job context.
package step

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/mfeuerstein/releasegate/internal/job"
)

// Action is an in-process step implementation.
type Action func(jc *job.Context) error

// Step is one atomic unit inside a job: either an external command or a
// registered action, never both.
type Step struct {
	Name    string
	Command []string
	Env     map[string]string
	Action  Action
}

// Validate ensures the step declares exactly one implementation.
func (s Step) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("step: name is required")
	}
	hasCommand := len(s.Command) > 0
	hasAction := s.Action != nil
	if hasCommand == hasAction {
		return fmt.Errorf("step %s: exactly one of command or action is required", s.Name)
	}
	return nil
}

// Runner executes step sequences for one job.
type Runner struct {
	// Dir is the working directory for command steps. Empty means the
	// process working directory.
	Dir string
}

// Run executes the steps in order, halting at the first failure.
func (r Runner) Run(jc *job.Context, steps []Step) error {
	for i, s := range steps {
		if err := s.Validate(); err != nil {
			return err
		}
		jc.Logf("step %d/%d: %s", i+1, len(steps), s.Name)
		if err := r.runOne(jc, s); err != nil {
			return fmt.Errorf("step %s: %w", s.Name, err)
		}
	}
	return nil
}

func (r Runner) runOne(jc *job.Context, s Step) error {
	if s.Action != nil {
		return s.Action(jc)
	}
	cmd := exec.CommandContext(jc.Ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = mergedEnv(s.Env)
	output, err := cmd.CombinedOutput()
	if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
		jc.Logf("%s: %s", s.Name, trimmed)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", strings.Join(s.Command, " "), err)
	}
	return nil
}

func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return os.Environ()
	}
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := os.Environ()
	for _, key := range keys {
		env = append(env, key+"="+extra[key])
	}
	return env
}

// FromCommands converts configured argv lists into command steps.
func FromCommands(prefix string, commands [][]string) []Step {
	steps := make([]Step, 0, len(commands))
	for i, argv := range commands {
		steps = append(steps, Step{
			Name:    fmt.Sprintf("%s-%d", prefix, i+1),
			Command: append([]string{}, argv...),
		})
	}
	return steps
}
