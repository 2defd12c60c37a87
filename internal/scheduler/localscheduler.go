package scheduler

import (
	"context"

	"github.com/laebshade/pants/internal/ctxlog"
	"github.com/laebshade/pants/internal/engine"
)

// LocalScheduler formulates an execution graph in process: it resolves the
// request's root subjects and products, drives the planner registry to build
// the product-possibility graph, and resolves one promise key per viable
// (subject, product) root pair.
type LocalScheduler struct {
	bg       engine.BuildGraph
	planners *engine.Planners
	request  BuildRequest

	mapper *engine.ProductMapper
	roots  []engine.PromiseKey
}

// NewLocalScheduler plans the given request. Root addresses that cannot be
// resolved and products with zero or ambiguous producers fail the request
// here: no partial graph is silently accepted. Root products that are simply
// unsatisfiable for one subject are skipped rather than failing the whole
// request.
func NewLocalScheduler(ctx context.Context, bg engine.BuildGraph, planners *engine.Planners, request BuildRequest) (*LocalScheduler, error) {
	logger := ctxlog.FromContext(ctx)

	// Determine the root subjects and products from the request.
	var rootSubjects []engine.Subject
	for _, addr := range request.Addresses() {
		entity, err := bg.Resolve(addr)
		if err != nil {
			return nil, err
		}
		rootSubjects = append(rootSubjects, engine.NewSubject(entity))
	}
	var rootProducts []engine.ProductType
	seenProducts := make(map[engine.ProductType]struct{})
	for _, goal := range request.Goals() {
		products, err := planners.ProductsForGoal(goal)
		if err != nil {
			return nil, err
		}
		for _, product := range products {
			if _, ok := seenProducts[product]; ok {
				continue
			}
			seenProducts[product] = struct{}{}
			rootProducts = append(rootProducts, product)
		}
	}
	logger.Debug("Resolved build request roots.",
		"subjects", len(rootSubjects), "products", len(rootProducts))

	// Compute the product graph determining which products are possible to
	// produce for these subjects.
	pg, err := planners.ProductGraph(ctx, bg, rootSubjects, rootProducts)
	if err != nil {
		return nil, err
	}
	mapper := engine.NewProductMapper(bg, pg)

	// Resolve one promise per relevant (subject, product) pair, skipping
	// combinations the graph determined unsatisfiable.
	var roots []engine.PromiseKey
	for _, subject := range rootSubjects {
		satisfiable, err := pg.ProductsFor(subject)
		if err != nil {
			return nil, err
		}
		relevant := make(map[engine.ProductType]struct{}, len(satisfiable))
		for _, product := range satisfiable {
			relevant[product] = struct{}{}
		}
		for _, product := range rootProducts {
			if _, ok := relevant[product]; !ok {
				logger.Debug("Skipping unsatisfiable root product.",
					"subject", subject.Identity(), "product", product.String())
				continue
			}
			key, err := mapper.Promise(subject, product, nil)
			if err != nil {
				return nil, err
			}
			roots = append(roots, key)
		}
	}

	return &LocalScheduler{
		bg:       bg,
		planners: planners,
		request:  request,
		mapper:   mapper,
		roots:    roots,
	}, nil
}

// RootPromises returns the resolved root promise keys.
func (s *LocalScheduler) RootPromises() []engine.PromiseKey {
	return s.roots
}

// Schedule gives aggregating tasks their once-only chance to merge plans,
// then returns the execution graph over the root promise keys.
func (s *LocalScheduler) Schedule() (*ExecutionGraph, error) {
	if err := s.mapper.AggregatePlans(); err != nil {
		return nil, err
	}
	return NewExecutionGraph(s.roots, s.mapper), nil
}
