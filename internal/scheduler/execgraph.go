package scheduler

import (
	"iter"

	"github.com/laebshade/pants/internal/engine"
)

// ExecutionGraph is the DAG of execution plans reachable from a request's
// root promise keys, where edges are the data dependencies between plans.
type ExecutionGraph struct {
	roots  []engine.PromiseKey
	mapper *engine.ProductMapper
}

// NewExecutionGraph builds the graph over the given root promise keys and
// the mapper that registered their plans.
func NewExecutionGraph(roots []engine.PromiseKey, mapper *engine.ProductMapper) *ExecutionGraph {
	return &ExecutionGraph{roots: roots, mapper: mapper}
}

// RootPromises returns the root promise keys; they represent the final
// products requested by the build.
func (g *ExecutionGraph) RootPromises() []engine.PromiseKey {
	return g.roots
}

// PlanFor returns the plan that will satisfy the given promise key.
func (g *ExecutionGraph) PlanFor(key engine.PromiseKey) (*engine.Plan, bool) {
	return g.mapper.PlanFor(key)
}

// Walk returns a restartable depth-first post-order traversal of the plans
// reachable from the roots. Every distinct plan is yielded exactly once,
// with each dependency plan yielded strictly before any plan depending on
// it; this is what makes the sequence a valid topological execution order.
// Each call returns a fresh sequence.
func (g *ExecutionGraph) Walk() iter.Seq2[engine.PromiseKey, *engine.Plan] {
	return func(yield func(engine.PromiseKey, *engine.Plan) bool) {
		seen := make(map[string]struct{})
		for _, root := range g.roots {
			if !g.walkPlan(root, seen, yield) {
				return
			}
		}
	}
}

func (g *ExecutionGraph) walkPlan(key engine.PromiseKey, seen map[string]struct{}, yield func(engine.PromiseKey, *engine.Plan) bool) bool {
	plan, ok := g.mapper.PlanFor(key)
	if !ok {
		return true
	}
	if _, visited := seen[plan.Fingerprint()]; visited {
		return true
	}
	seen[plan.Fingerprint()] = struct{}{}
	for _, dep := range plan.Promises() {
		if !g.walkPlan(dep, seen, yield) {
			return false
		}
	}
	return yield(key, plan)
}
