package engine

import (
	"context"
	"fmt"

	"github.com/laebshade/pants/internal/address"
	"github.com/laebshade/pants/internal/ctxlog"
)

// BuildGraph is the external accessor for resolved build entities. The
// planning core navigates targets and configurations exclusively through it.
type BuildGraph interface {
	// Resolve returns the entity at the given address. When the address
	// carries a configuration selector, the resolved entity is that
	// configuration; a selector naming a missing configuration is a hard
	// error.
	Resolve(addr address.Address) (any, error)
	// ConfiguredDependencies returns the declared dependencies of an entity,
	// each paired with the configuration its address selected (nil for
	// none). A non-empty configuration name narrows the dependency list to
	// the entity's configuration block of that name.
	ConfiguredDependencies(entity any, configuration string) ([]Dependency, error)
	// NativeProducts returns the products concretely present on an entity.
	NativeProducts(entity any) []any
}

// Dependency pairs a dependency entity with the configuration selected by
// its address, if any.
type Dependency struct {
	Entity        any
	Configuration any
}

// Rule is a registered task capability: an output product type, an ordered
// AND-clause of input selects, and the executable producing the output.
type Rule struct {
	output ProductType
	clause []Select
	runner Runner
	// impl keeps the original executable reference so optional capabilities
	// (plan aggregation) can be discovered on it.
	impl any
}

// Output returns the product type the rule produces.
func (r *Rule) Output() ProductType { return r.output }

// Clause returns the ordered input-requirement clause. Every select must
// resolve to at least one satisfiable source for the rule to apply.
func (r *Rule) Clause() []Select { return r.clause }

// Runner returns the categorized executable.
func (r *Rule) Runner() Runner { return r.runner }

// aggregator returns the optional plan-aggregation capability of the rule's
// executable.
func (r *Rule) aggregator() (PlanAggregator, bool) {
	if agg, ok := r.impl.(PlanAggregator); ok {
		return agg, true
	}
	if agg, ok := r.runner.(PlanAggregator); ok {
		return agg, true
	}
	return nil, false
}

// Module is implemented by packages contributing goals and task rules to a
// Planners registry.
type Module interface {
	Register(p *Planners)
}

// Planners is a registry of task capabilities indexed by the product type
// they produce, plus the goal-name to product-types table. It is explicit
// owned state: construct one per application instance and pass it down.
type Planners struct {
	productsByGoal map[string][]ProductType
	goalOrder      []string
	rulesByOutput  map[ProductType][]*Rule
	rules          []*Rule
}

// NewPlanners returns an empty registry.
func NewPlanners() *Planners {
	return &Planners{
		productsByGoal: make(map[string][]ProductType),
		rulesByOutput:  make(map[ProductType][]*Rule),
	}
}

// RegisterGoal maps a goal name to the product types it requires. Repeated
// registrations union the product sets.
func (p *Planners) RegisterGoal(name string, products ...ProductType) {
	if _, ok := p.productsByGoal[name]; !ok {
		p.goalOrder = append(p.goalOrder, name)
	}
	for _, product := range products {
		exists := false
		for _, have := range p.productsByGoal[name] {
			if have == product {
				exists = true
				break
			}
		}
		if !exists {
			p.productsByGoal[name] = append(p.productsByGoal[name], product)
		}
	}
}

// RegisterRule registers a task capability. The executable may be a Runner,
// a Task, or a plain func(ctx, inputs) (any, error); anything else panics.
// Multiple rules may share an output type: whether that is an ambiguity is
// decided per request during plan resolution.
func (p *Planners) RegisterRule(output ProductType, clause []Select, executable any) *Rule {
	rule := &Rule{
		output: output,
		clause: clause,
		runner: runnerOf(executable),
		impl:   executable,
	}
	p.rulesByOutput[output] = append(p.rulesByOutput[output], rule)
	p.rules = append(p.rules, rule)
	return rule
}

// Goals returns the registered goal names in registration order.
func (p *Planners) Goals() []string {
	return p.goalOrder
}

// ProductsForGoal returns the product types required by the given goal.
func (p *Planners) ProductsForGoal(name string) ([]ProductType, error) {
	products, ok := p.productsByGoal[name]
	if !ok {
		return nil, fmt.Errorf("unknown goal %q", name)
	}
	return products, nil
}

// ProductGraph bootstraps a product-possibility graph restricted to the
// given root subjects and root products, recursively expanding every
// discovered node's own dependency sub-nodes. Construction is idempotent per
// node and terminates once no new nodes are discovered.
func (p *Planners) ProductGraph(ctx context.Context, bg BuildGraph, rootSubjects []Subject, rootProducts []ProductType) (*ProductGraph, error) {
	logger := ctxlog.FromContext(ctx)
	pg := NewProductGraph()
	for _, subject := range rootSubjects {
		for _, product := range rootProducts {
			sources := p.nodeSources(bg, subject, product)
			parent := NodeID(-1)
			// Multiple sources of one key are aggregated under an Or node.
			if len(sources) > 1 {
				orID, err := p.ensureOrNode(pg, subject, product)
				if err != nil {
					return nil, err
				}
				parent = orID
			}
			for _, source := range sources {
				id, err := p.expandNode(bg, pg, Node{Subject: subject, Product: product, Source: source})
				if err != nil {
					return nil, err
				}
				if parent >= 0 {
					if err := pg.AddEdge(parent, id); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	logger.Debug("Product graph constructed.", "nodes", pg.Len())
	return pg, nil
}

// ensureOrNode registers the synthetic Or node for a key, reusing it when a
// previous expansion already introduced one.
func (p *Planners) ensureOrNode(pg *ProductGraph, subject Subject, product ProductType) (NodeID, error) {
	orNode := Node{Subject: subject, Product: product, Source: OrSource()}
	if id, ok := pg.ExistsNode(orNode); ok {
		return id, nil
	}
	return pg.AddNode(orNode, NewPromise())
}

// expandNode registers the given node and recursively populates its
// dependency sub-nodes. Expanding an already-registered node is a no-op.
func (p *Planners) expandNode(bg BuildGraph, pg *ProductGraph, node Node) (NodeID, error) {
	if id, ok := pg.ExistsNode(node); ok {
		return id, nil
	}
	promise := NewPromise()
	id, err := pg.AddNode(node, promise)
	if err != nil {
		return 0, err
	}

	switch node.Source.Kind() {
	case SourceKindNone:
		// A hole: never satisfiable, no dependencies to expand.
	case SourceKindNative:
		// No dependencies; the value is already materialized.
		promise.Success(node.Source.Value())
	case SourceKindTask:
		// Recurse on the dependencies of the anded select clause.
		for _, sel := range node.Source.Rule().Clause() {
			depSubjects, err := p.selectSubjects(bg, sel, node.Subject)
			if err != nil {
				return 0, err
			}
			for _, depSubject := range depSubjects {
				depSources := p.nodeSources(bg, depSubject, sel.Product())
				parent := id
				if len(depSources) > 1 {
					orID, err := p.ensureOrNode(pg, depSubject, sel.Product())
					if err != nil {
						return 0, err
					}
					if err := pg.AddEdge(id, orID); err != nil {
						return 0, err
					}
					parent = orID
				}
				for _, depSource := range depSources {
					depID, err := p.expandNode(bg, pg, Node{Subject: depSubject, Product: sel.Product(), Source: depSource})
					if err != nil {
						return 0, err
					}
					if err := pg.AddEdge(parent, depID); err != nil {
						return 0, err
					}
				}
			}
		}
	default:
		return 0, fmt.Errorf("unsupported source kind %s for %s", node.Source.Kind(), node)
	}
	return id, nil
}

// selectSubjects yields the subjects selected by the given select for the
// given subject.
func (p *Planners) selectSubjects(bg BuildGraph, sel Select, subject Subject) ([]Subject, error) {
	switch sel.Kind() {
	case SelectBySubject:
		return []Subject{subject}, nil
	case SelectByDependencies:
		deps, err := bg.ConfiguredDependencies(subject.Primary(), sel.ConfigurationName())
		if err != nil {
			return nil, err
		}
		subjects := make([]Subject, 0, len(deps))
		for _, dep := range deps {
			subjects = append(subjects, NewSubject(dep.Entity))
		}
		return subjects, nil
	case SelectByLiteralAddress:
		entity, err := bg.Resolve(sel.Address())
		if err != nil {
			return nil, err
		}
		return []Subject{NewSubject(entity)}, nil
	default:
		return nil, fmt.Errorf("unimplemented select kind %s", sel.Kind())
	}
}

// nodeSources returns every source of the given subject/product: one native
// source per matching product concretely present on the subject's
// derivations, plus one task source per registered rule producing the type.
// When neither applies a single None source marks the hole, so "no sources"
// is always representable as an unsatisfiable node rather than an absent key.
func (p *Planners) nodeSources(bg BuildGraph, subject Subject, product ProductType) []Source {
	var sources []Source
	for _, derivation := range subject.Derivations() {
		for _, native := range bg.NativeProducts(derivation) {
			if ProductOf(native) == product {
				sources = append(sources, NativeSource(native))
			}
		}
	}
	for _, rule := range p.rulesByOutput[product] {
		sources = append(sources, TaskSource(rule))
	}
	if len(sources) == 0 {
		return []Source{NoneSource()}
	}
	return sources
}
