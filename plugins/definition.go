// Package plugins loads user-supplied job definitions from the project's
// .releasegate/jobs directory: declarative YAML files and Go files evaluated
// with yaegi. A plugin contributes command-step jobs to the registry, so a
// project can extend the release pipeline without rebuilding the binary.
package plugins

import (
	"fmt"
	"strings"
)

// JobDefinition describes a plugin job loaded from YAML or a Go definition
// file. It mirrors the on-disk schema under .releasegate/jobs/*.yaml.
type JobDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string           `json:"version" yaml:"version"`
	Group       string           `json:"concurrency_group,omitempty" yaml:"concurrency_group,omitempty"`
	Steps       []StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition declares one external command inside a plugin job.
type StepDefinition struct {
	Name    string            `json:"name" yaml:"name"`
	Command []string          `json:"command" yaml:"command"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Normalized returns a trimmed copy of the definition.
func (def JobDefinition) Normalized() JobDefinition {
	clone := JobDefinition{
		ID:          strings.TrimSpace(def.ID),
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Version:     strings.TrimSpace(def.Version),
		Group:       strings.TrimSpace(def.Group),
	}
	if clone.Name == "" {
		clone.Name = clone.ID
	}
	if len(def.Steps) > 0 {
		clone.Steps = make([]StepDefinition, len(def.Steps))
		for i, s := range def.Steps {
			clone.Steps[i] = s.normalized()
		}
	}
	return clone
}

func (s StepDefinition) normalized() StepDefinition {
	clone := StepDefinition{Name: strings.TrimSpace(s.Name)}
	if len(s.Command) > 0 {
		clone.Command = make([]string, 0, len(s.Command))
		for _, arg := range s.Command {
			clone.Command = append(clone.Command, strings.TrimSpace(arg))
		}
	}
	if len(s.Env) > 0 {
		clone.Env = make(map[string]string, len(s.Env))
		for key, value := range s.Env {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Env[trimmed] = value
		}
	}
	return clone
}

// Validate ensures the plugin definition can be turned into a runnable job.
func (def JobDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if normalized.Version == "" {
		return fmt.Errorf("plugin %s: version is required", normalized.ID)
	}
	if len(normalized.Steps) == 0 {
		return fmt.Errorf("plugin %s: at least one step is required", normalized.ID)
	}
	for idx, s := range normalized.Steps {
		if s.Name == "" {
			return fmt.Errorf("plugin %s: steps[%d]: name is required", normalized.ID, idx)
		}
		if len(s.Command) == 0 || s.Command[0] == "" {
			return fmt.Errorf("plugin %s: step %s: command is required", normalized.ID, s.Name)
		}
	}
	return nil
}
