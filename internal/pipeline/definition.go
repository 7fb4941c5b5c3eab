package pipeline

import (
	"fmt"
	"sort"

	"github.com/mfeuerstein/releasegate/internal/trigger"
)

// DependencyGraph maps pipeline-scoped job identifiers to the job instance
// IDs they depend on. The resolver treats the keys as aliases that correspond
// to JobRef.InstanceID().
type DependencyGraph map[string][]string

// Clone returns a deep copy of the graph.
func (g DependencyGraph) Clone() DependencyGraph {
	if len(g) == 0 {
		return nil
	}
	out := make(DependencyGraph, len(g))
	for key, deps := range g {
		if len(deps) == 0 {
			out[key] = nil
			continue
		}
		clone := make([]string, len(deps))
		copy(clone, deps)
		out[key] = clone
	}
	return out
}

// Condition gates a job on the run's trigger event, re-evaluated per job so a
// mis-triggered run can never reach the publishing jobs.
type Condition string

const (
	// ConditionNone runs the job unconditionally.
	ConditionNone Condition = ""
	// ConditionOnReleaseTag requires the triggering event to be release-tag
	// eligible at job scheduling time.
	ConditionOnReleaseTag Condition = "on-release-tag"
)

// Validate rejects unknown condition names.
func (c Condition) Validate() error {
	switch c {
	case ConditionNone, ConditionOnReleaseTag:
		return nil
	default:
		return fmt.Errorf("pipeline: unknown condition %q", string(c))
	}
}

// Holds evaluates the condition against the run's trigger event.
func (c Condition) Holds(event trigger.Event) bool {
	switch c {
	case ConditionOnReleaseTag:
		return trigger.Eligible(event)
	default:
		return true
	}
}

// Definition declares an executable pipeline graph composed of jobs.
type Definition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Jobs        []JobRef          `json:"jobs" yaml:"jobs"`
	Graph       DependencyGraph   `json:"graph,omitempty" yaml:"graph,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Runtime     RuntimeConfig     `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Metadata:    cloneStringMap(def.Metadata),
		Graph:       def.Graph.Clone(),
		Runtime:     def.Runtime,
	}
	if len(def.Jobs) > 0 {
		clone.Jobs = make([]JobRef, len(def.Jobs))
		for i, ref := range def.Jobs {
			clone.Jobs[i] = ref.Clone()
		}
	}
	return clone
}

// Validate ensures the definition is self-consistent and acyclic.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("pipeline: id is required")
	}
	if len(def.Jobs) == 0 {
		return fmt.Errorf("pipeline %s: at least one job is required", def.ID)
	}
	seen := map[string]struct{}{}
	for idx, ref := range def.Jobs {
		if err := ref.Validate(); err != nil {
			return fmt.Errorf("pipeline %s job[%d]: %w", def.ID, idx, err)
		}
		instanceID := ref.InstanceID()
		if _, exists := seen[instanceID]; exists {
			return fmt.Errorf("pipeline %s: duplicate job instance id %s", def.ID, instanceID)
		}
		seen[instanceID] = struct{}{}
	}
	for key, deps := range def.Graph {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("pipeline %s: graph references unknown job %s", def.ID, key)
		}
		for _, dep := range deps {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("pipeline %s: graph dependency %s -> %s references unknown job", def.ID, key, dep)
			}
		}
	}
	if err := def.checkAcyclic(); err != nil {
		return err
	}
	if err := def.Runtime.validate(); err != nil {
		return fmt.Errorf("pipeline %s runtime: %w", def.ID, err)
	}
	return nil
}

// checkAcyclic rejects dependency cycles via iterative DFS coloring.
func (def Definition) checkAcyclic() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("pipeline %s: dependency cycle through %s", def.ID, id)
		case black:
			return nil
		}
		color[id] = grey
		for _, dep := range def.Graph[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, ref := range def.Jobs {
		if err := visit(ref.InstanceID()); err != nil {
			return err
		}
	}
	return nil
}

// Normalized clones the definition, merges any inline job dependencies into
// the graph, and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	if clone.Graph == nil {
		clone.Graph = DependencyGraph{}
	}
	for _, ref := range clone.Jobs {
		id := ref.InstanceID()
		clone.Graph[id] = mergeDependencies(clone.Graph[id], ref.DependsOn)
	}
	clone.Runtime = clone.Runtime.normalized()
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// RuntimeConfig configures execution constraints for a pipeline.
type RuntimeConfig struct {
	MaxParallel int `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.MaxParallel < 0 {
		cfg.MaxParallel = 0
	}
	return cfg
}

func (cfg RuntimeConfig) validate() error {
	if cfg.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be >= 0")
	}
	return nil
}

// JobIDs returns the pipeline-scoped identifiers in declaration order.
func (def Definition) JobIDs() []string {
	ids := make([]string, 0, len(def.Jobs))
	for _, ref := range def.Jobs {
		ids = append(ids, ref.InstanceID())
	}
	return ids
}

// Dependencies returns the dependency list for a job instance.
func (def Definition) Dependencies(id string) []string {
	if def.Graph == nil {
		return nil
	}
	deps := def.Graph[id]
	if len(deps) == 0 {
		return nil
	}
	clone := make([]string, len(deps))
	copy(clone, deps)
	return clone
}

// JobRef describes how a pipeline composes and configures a job.
type JobRef struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	JobID       string    `json:"job" yaml:"job"`
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	DependsOn   []string  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Group       string    `json:"concurrency_group,omitempty" yaml:"concurrency_group,omitempty"`
	Condition   Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
	Config      JobConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Optional    bool      `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Clone returns a deep copy of the job reference.
func (ref JobRef) Clone() JobRef {
	clone := JobRef{
		ID:          ref.ID,
		JobID:       ref.JobID,
		Name:        ref.Name,
		Description: ref.Description,
		Group:       ref.Group,
		Condition:   ref.Condition,
		Optional:    ref.Optional,
	}
	if len(ref.DependsOn) > 0 {
		clone.DependsOn = cloneStringSlice(ref.DependsOn)
	}
	if len(ref.Config) > 0 {
		clone.Config = ref.Config.Clone()
	}
	return clone
}

// JobConfig carries job-specific overrides (opaque to the runtime).
type JobConfig map[string]any

// Clone returns a shallow copy of the config map.
func (cfg JobConfig) Clone() JobConfig {
	if len(cfg) == 0 {
		return nil
	}
	clone := make(JobConfig, len(cfg))
	for key, value := range cfg {
		clone[key] = value
	}
	return clone
}

// InstanceID returns the pipeline-local identifier used by dependency graphs.
func (ref JobRef) InstanceID() string {
	if ref.ID != "" {
		return ref.ID
	}
	return ref.JobID
}

// Validate ensures the reference is usable.
func (ref JobRef) Validate() error {
	if ref.JobID == "" {
		return fmt.Errorf("pipeline: job id is required")
	}
	if err := ref.Condition.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", ref.InstanceID(), err)
	}
	deps := append([]string{}, ref.DependsOn...)
	sort.Strings(deps)
	for i := 1; i < len(deps); i++ {
		if deps[i] == deps[i-1] {
			return fmt.Errorf("pipeline: job %s has duplicate dependency on %s", ref.InstanceID(), deps[i])
		}
	}
	return nil
}

func mergeDependencies(existing, adds []string) []string {
	if len(adds) == 0 && len(existing) == 0 {
		return nil
	}
	set := map[string]struct{}{}
	for _, id := range existing {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	for _, id := range adds {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
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

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[string]string, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
