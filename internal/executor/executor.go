// Package executor runs the linearized plans of an execution graph on a
// worker pool. Execution is the one deliberately parallel phase: plans with
// no promise dependency between them run concurrently, and every result is
// handed between goroutines exclusively through its plan's Promise.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/laebshade/pants/internal/ctxlog"
	"github.com/laebshade/pants/internal/engine"
	"github.com/laebshade/pants/internal/scheduler"
)

// Executor drives one execution graph to completion.
type Executor struct {
	graph      *scheduler.ExecutionGraph
	numWorkers int

	wg    sync.WaitGroup
	nodes []*planNode
	byFP  map[string]*planNode
}

// planNode is one schedulable plan with its resolved dependency wiring.
type planNode struct {
	plan       *engine.Plan
	promise    *engine.Promise
	deps       []*planNode
	dependents []*planNode
	depCount   atomic.Int32
	failOnce   sync.Once
	err        error
	failed     atomic.Bool
}

// fail completes the node exactly once with the given error.
func (n *planNode) fail(err error, wg *sync.WaitGroup) {
	n.failOnce.Do(func() {
		n.failed.Store(true)
		n.err = err
		n.promise.Failure(err)
		wg.Done()
	})
}

// New builds an executor over the given graph. Workers below 1 are clamped
// to 1.
func New(graph *scheduler.ExecutionGraph, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{graph: graph, numWorkers: workers, byFP: make(map[string]*planNode)}
}

// Run executes every plan reachable from the graph roots, dependencies
// strictly before dependents, and returns the root products keyed by their
// promise keys. A plan failure fails its promise, cancels the run, and
// recursively skips all dependents; the first non-symptomatic failure is
// returned as the root cause.
func (e *Executor) Run(ctx context.Context) (map[engine.PromiseKey]any, error) {
	logger := ctxlog.FromContext(ctx)
	if err := e.buildNodes(); err != nil {
		return nil, err
	}

	readyChan := make(chan *planNode, len(e.nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootNodeCount := 0
	for _, node := range e.nodes {
		if node.depCount.Load() == 0 {
			readyChan <- node
			rootNodeCount++
		}
	}
	logger.Debug("Seeded ready queue.", "plans", len(e.nodes), "roots", rootNodeCount)

	e.wg.Add(len(e.nodes))
	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
	logger.Debug("All plans completed.")

	var failedPlans []string
	var rootCauseErr error
	for _, node := range e.nodes {
		if !node.failed.Load() {
			continue
		}
		// A skip is a symptom, not a cause; so is a bare cancellation.
		if node.err != nil && !strings.HasPrefix(node.err.Error(), "skipped") && !errors.Is(node.err, context.Canceled) {
			failedPlans = append(failedPlans, node.plan.String())
			if rootCauseErr == nil {
				rootCauseErr = node.err
			}
		}
	}
	if rootCauseErr != nil {
		return nil, fmt.Errorf("execution failed for %s: %w", strings.Join(failedPlans, ", "), rootCauseErr)
	}

	results := make(map[engine.PromiseKey]any, len(e.graph.RootPromises()))
	for _, root := range e.graph.RootPromises() {
		plan, ok := e.graph.PlanFor(root)
		if !ok {
			continue
		}
		value, err := e.byFP[plan.Fingerprint()].promise.Get()
		if err != nil {
			return nil, err
		}
		results[root] = value
	}
	return results, nil
}

// buildNodes materializes the walk into plan nodes and wires dependency
// counts from each plan's embedded promise keys.
func (e *Executor) buildNodes() error {
	for _, plan := range e.graph.Walk() {
		node := &planNode{plan: plan, promise: engine.NewPromise()}
		e.nodes = append(e.nodes, node)
		e.byFP[plan.Fingerprint()] = node
	}
	for _, node := range e.nodes {
		seen := make(map[string]struct{})
		for _, dep := range node.plan.Promises() {
			depPlan, ok := e.graph.PlanFor(dep)
			if !ok {
				return fmt.Errorf("no plan registered for %s", dep)
			}
			fp := depPlan.Fingerprint()
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			depNode := e.byFP[fp]
			node.deps = append(node.deps, depNode)
			depNode.dependents = append(depNode.dependents, node)
		}
		node.depCount.Store(int32(len(node.deps)))
	}
	return nil
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *planNode, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for node := range readyChan {
		workerLogger := logger.With("workerID", workerID, "plan", node.plan.String())

		if ctx.Err() != nil {
			workerLogger.Warn("Context canceled, skipping plan execution.")
			node.fail(ctx.Err(), &e.wg)
			e.skipDependents(ctx, node)
			continue
		}

		workerLogger.Debug("Worker picked up plan for execution.")
		result, err := e.executePlan(ctx, node)
		if err != nil {
			workerLogger.Error("Plan execution failed.", "error", err)
			node.fail(err, &e.wg)
			cancel()
			e.skipDependents(ctx, node)
			continue
		}

		workerLogger.Debug("Plan execution succeeded.")
		node.promise.Success(result)
		for _, dependent := range node.dependents {
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent plan.", "dependent", dependent.plan.String())
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// executePlan binds the plan's inputs from its dependencies' promises and
// invokes the binding. Every dependency promise is terminal by the time the
// plan is scheduled, so the gets do not block.
func (e *Executor) executePlan(ctx context.Context, node *planNode) (any, error) {
	values := make(map[engine.PromiseKey]any)
	for _, dep := range node.plan.Promises() {
		depPlan, _ := e.graph.PlanFor(dep)
		value, err := e.byFP[depPlan.Fingerprint()].promise.Get()
		if err != nil {
			return nil, fmt.Errorf("dependency %s failed: %w", dep, err)
		}
		values[dep] = value
	}
	binding, err := node.plan.Bind(values)
	if err != nil {
		return nil, err
	}
	return binding.Execute(ctx)
}

// skipDependents recursively marks all downstream plans as failed; their
// promises carry the upstream failure so any reader unblocks.
func (e *Executor) skipDependents(ctx context.Context, node *planNode) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.dependents {
		dependent.failOnce.Do(func() {
			logger.Warn("Skipping dependent plan due to upstream failure.",
				"plan", dependent.plan.String(), "dependency", node.plan.String())
			dependent.failed.Store(true)
			dependent.err = fmt.Errorf("skipped due to upstream failure of %s", node.plan)
			dependent.promise.Failure(dependent.err)
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}
