package resolver

import (
	"fmt"
	"sort"

	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
)

// NodeState represents the resolver's understanding of a job's progress.
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateReady     NodeState = "ready"
	NodeStateBlocked   NodeState = "blocked"
	NodeStateRunning   NodeState = "running"
	NodeStateSucceeded NodeState = "succeeded"
	NodeStateFailed    NodeState = "failed"
	// NodeStateSkipped is absorbing: once an upstream fails, every transitive
	// dependent is skipped and never started.
	NodeStateSkipped NodeState = "skipped"
)

// Terminal reports whether a state can no longer change within the run.
func (s NodeState) Terminal() bool {
	switch s {
	case NodeStateSucceeded, NodeStateFailed, NodeStateSkipped:
		return true
	default:
		return false
	}
}

// Node captures a pipeline job instance plus its dependency metadata.
type Node struct {
	ID  string
	Ref pipeline.JobRef
	Job job.Job
	// Group is the effective concurrency group: the definition's override or
	// the job's own declaration.
	Group        string
	Condition    pipeline.Condition
	Dependencies []string
	Dependents   []string

	State     NodeState
	BlockedBy []string
	Err       error
}

// Resolver builds and evaluates the pipeline dependency graph.
type Resolver struct {
	definition pipeline.Definition
	nodes      map[string]*Node
	orderedIDs []string
}

// New constructs a resolver for the provided pipeline definition. Jobs are
// instantiated via the registry immediately so downstream code can run them,
// and the artifact wiring is checked once at build time.
func New(def pipeline.Definition, registry *job.Registry) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("pipeline: job registry is required")
	}
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*Node, len(normalized.Jobs))
	ordered := make([]string, 0, len(normalized.Jobs))
	for _, ref := range normalized.Jobs {
		id := ref.InstanceID()
		instance, err := registry.Resolve(ref.JobID, convertConfig(ref.Config))
		if err != nil {
			return nil, fmt.Errorf("pipeline %s job %s: %w", normalized.ID, id, err)
		}
		group := ref.Group
		if group == "" {
			group = instance.Info().Group
		}
		node := &Node{
			ID:           id,
			Ref:          ref,
			Job:          instance,
			Group:        group,
			Condition:    ref.Condition,
			Dependencies: normalized.Dependencies(id),
			State:        NodeStatePending,
		}
		nodes[id] = node
		ordered = append(ordered, id)
	}
	for _, node := range nodes {
		for _, depID := range node.Dependencies {
			dep, ok := nodes[depID]
			if !ok {
				return nil, fmt.Errorf("pipeline %s: dependency %s referenced by %s not declared", normalized.ID, depID, node.ID)
			}
			dep.Dependents = append(dep.Dependents, node.ID)
		}
	}
	for _, node := range nodes {
		if len(node.Dependents) > 1 {
			sort.Strings(node.Dependents)
		}
	}
	r := &Resolver{
		definition: normalized,
		nodes:      nodes,
		orderedIDs: ordered,
	}
	if err := r.checkArtifactWiring(); err != nil {
		return nil, err
	}
	return r, nil
}

// Definition returns a clone of the resolver's pipeline definition.
func (r *Resolver) Definition() pipeline.Definition {
	return r.definition.Clone()
}

// Nodes returns the nodes in pipeline declaration order.
func (r *Resolver) Nodes() []*Node {
	out := make([]*Node, 0, len(r.orderedIDs))
	for _, id := range r.orderedIDs {
		if node, ok := r.nodes[id]; ok {
			out = append(out, node)
		}
	}
	return out
}

// Node retrieves a specific job node by pipeline instance ID.
func (r *Resolver) Node(id string) (*Node, bool) {
	node, ok := r.nodes[id]
	return node, ok
}

// Apply recomputes every node state from the terminal results collected so
// far plus the set of currently running instances. Skips propagate
// transitively: a node whose upstream is failed or skipped becomes skipped.
func (r *Resolver) Apply(results map[string]job.Result, running map[string]struct{}) {
	for _, node := range r.nodes {
		node.Err = nil
		node.BlockedBy = nil
		if result, ok := results[node.ID]; ok {
			switch result.Status {
			case job.StatusSucceeded:
				node.State = NodeStateSucceeded
			case job.StatusSkipped:
				node.State = NodeStateSkipped
			default:
				node.State = NodeStateFailed
			}
			continue
		}
		if _, active := running[node.ID]; active {
			node.State = NodeStateRunning
			continue
		}
		node.State = NodeStatePending
	}
	// Skip propagation runs in declaration order; dependencies always precede
	// their dependents in a validated DAG walk, so one ordered pass over a
	// topological traversal suffices.
	for _, id := range r.topological() {
		node := r.nodes[id]
		if node.State.Terminal() || node.State == NodeStateRunning {
			continue
		}
		blockers := make([]string, 0, len(node.Dependencies))
		skip := false
		for _, depID := range node.Dependencies {
			dep := r.nodes[depID]
			switch dep.State {
			case NodeStateFailed, NodeStateSkipped:
				skip = true
			case NodeStateSucceeded:
			default:
				blockers = append(blockers, depID)
			}
		}
		switch {
		case skip:
			node.State = NodeStateSkipped
		case len(blockers) == 0:
			node.State = NodeStateReady
		default:
			node.State = NodeStateBlocked
			node.BlockedBy = blockers
		}
	}
}

// Ready returns nodes that are runnable because all dependencies succeeded.
func (r *Resolver) Ready() []*Node {
	var ready []*Node
	for _, id := range r.orderedIDs {
		node := r.nodes[id]
		if node.State == NodeStateReady {
			ready = append(ready, node)
		}
	}
	return ready
}

// Settled reports whether every node reached a terminal state.
func (r *Resolver) Settled() bool {
	for _, node := range r.nodes {
		if !node.State.Terminal() {
			return false
		}
	}
	return true
}

// topological returns node IDs with dependencies before dependents.
func (r *Resolver) topological() []string {
	visited := make(map[string]bool, len(r.nodes))
	ordered := make([]string, 0, len(r.nodes))
	var visit func(string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range r.nodes[id].Dependencies {
			visit(dep)
		}
		ordered = append(ordered, id)
	}
	for _, id := range r.orderedIDs {
		visit(id)
	}
	return ordered
}

// checkArtifactWiring verifies that every artifact a job consumes is produced
// by some transitive upstream job, so no job reads a hand-off it never
// declared a dependency on.
func (r *Resolver) checkArtifactWiring() error {
	for _, id := range r.orderedIDs {
		node := r.nodes[id]
		consumes := node.Job.Consumes()
		if len(consumes) == 0 {
			continue
		}
		produced := map[string]struct{}{}
		r.collectUpstreamOutputs(node, map[string]bool{}, produced)
		for _, ref := range consumes {
			if _, ok := produced[ref.ID]; !ok {
				return fmt.Errorf("pipeline %s: job %s consumes artifact %s which no upstream job produces",
					r.definition.ID, node.ID, ref.ID)
			}
		}
	}
	return nil
}

func (r *Resolver) collectUpstreamOutputs(node *Node, seen map[string]bool, out map[string]struct{}) {
	for _, depID := range node.Dependencies {
		if seen[depID] {
			continue
		}
		seen[depID] = true
		dep := r.nodes[depID]
		for _, ref := range dep.Job.Produces() {
			out[ref.ID] = struct{}{}
		}
		r.collectUpstreamOutputs(dep, seen, out)
	}
}

func convertConfig(cfg pipeline.JobConfig) job.Config {
	if len(cfg) == 0 {
		return nil
	}
	out := make(job.Config, len(cfg))
	for key, value := range cfg {
		out[key] = value
	}
	return out
}
