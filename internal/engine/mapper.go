package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/laebshade/pants/internal/address"
)

// PlanAggregator is the optional capability of a task executable to merge
// the individual per-subject plans it emitted into a smaller number of
// batched plans before execution (for example, one task invocation compiling
// many subjects together). The returned plans must number at most the input
// plans and must preserve promise-key coverage: every subject covered before
// aggregation must be covered by some returned plan.
type PlanAggregator interface {
	AggregatePlans(plans []*Plan) ([]*Plan, error)
}

// nativeRunner is the identity runner behind native-fact plans: it simply
// surfaces the already-known value without invoking any task.
type nativeRunner struct{}

func (nativeRunner) Name() string { return "native" }

func (nativeRunner) Invoke(_ context.Context, inputs map[string]any) (any, error) {
	return inputs["value"], nil
}

// ProductMapper stores the mapping from promise keys to the plans whose
// execution will satisfy them, computing plans lazily and memoizing by
// (subject, product type, configuration).
type ProductMapper struct {
	bg BuildGraph
	pg *ProductGraph

	plans    map[PromiseKey]*Plan
	keyOrder []PromiseKey

	// plansByRule tracks every plan instance produced per originating rule
	// and output type, feeding the aggregation hook.
	plansByRule map[*Rule]map[ProductType][]*Plan
	ruleOrder   []*Rule

	resolving  map[PromiseKey]bool
	aggregated bool
}

// NewProductMapper builds a mapper over the given build-graph accessor and
// product graph. Like the graphs it wraps, a mapper is owned by the single
// scheduling goroutine during construction.
func NewProductMapper(bg BuildGraph, pg *ProductGraph) *ProductMapper {
	return &ProductMapper{
		bg:          bg,
		pg:          pg,
		plans:       make(map[PromiseKey]*Plan),
		plansByRule: make(map[*Rule]map[ProductType][]*Plan),
		resolving:   make(map[PromiseKey]bool),
	}
}

// PlanFor returns the plan registered for the given key, if any.
func (m *ProductMapper) PlanFor(key PromiseKey) (*Plan, bool) {
	plan, ok := m.plans[key]
	return plan, ok
}

// Keys returns every registered promise key in registration order.
func (m *ProductMapper) Keys() []PromiseKey {
	return m.keyOrder
}

// Promise returns the resolved promise key for a product of the given type
// for the given subject, computing and caching the backing plan on first
// request. The subject may be a Subject, a raw entity, or an
// address.Address (resolved through the accessor). If a configuration is
// supplied, only producers whose subtree consumes it apply.
//
// Exactly one plan may satisfy the key: zero producers and ambiguous
// producers are scheduling errors surfaced synchronously here.
func (m *ProductMapper) Promise(subject any, product ProductType, configuration any) (PromiseKey, error) {
	if addr, ok := subject.(address.Address); ok {
		entity, err := m.bg.Resolve(addr)
		if err != nil {
			return PromiseKey{}, err
		}
		subject = entity
	}
	subj := SubjectOf(subject)
	key := NewPromiseKey(subj, product, configuration)
	if _, ok := m.plans[key]; ok {
		return key, nil
	}
	if m.resolving[key] {
		return PromiseKey{}, &CyclicDependencyError{Path: []string{key.String()}}
	}
	m.resolving[key] = true
	defer delete(m.resolving, key)

	sources, err := m.pg.SourcesFor(subj, product, configuration)
	if err != nil {
		return PromiseKey{}, err
	}

	type candidate struct {
		rule *Rule
		plan *Plan
	}
	var candidates []candidate
	for _, source := range sources {
		switch source.Kind() {
		case SourceKindNative:
			plan := NewPlan(nativeRunner{}, []Subject{subj}, map[string]any{"value": source.Value()})
			candidates = append(candidates, candidate{plan: plan})
		case SourceKindTask:
			plan, err := m.planTask(source.Rule(), subj, configuration)
			if err != nil {
				return PromiseKey{}, err
			}
			candidates = append(candidates, candidate{rule: source.Rule(), plan: plan})
		default:
			return PromiseKey{}, fmt.Errorf("unsupported source for (%s, %s): %s", subj.Identity(), product, source.Kind())
		}
	}

	if len(candidates) == 0 {
		// An unsatisfiable task source still explains why the key cannot be
		// produced: planning it surfaces the missing intermediate dependency
		// rather than the product that was asked for.
		for _, source := range m.pg.RegisteredSourcesFor(subj, product) {
			if source.Kind() != SourceKindTask {
				continue
			}
			if _, err := m.planTask(source.Rule(), subj, configuration); err != nil {
				return PromiseKey{}, err
			}
		}
		return PromiseKey{}, &NoProducersError{Product: product, Subject: subj.Primary(), Configuration: configuration}
	}
	if len(candidates) > 1 {
		plans := make([]*Plan, 0, len(candidates))
		for _, c := range candidates {
			plans = append(plans, c.plan)
		}
		return PromiseKey{}, &ConflictingProducersError{Product: product, Subject: subj.Primary(), Configuration: configuration, Plans: plans}
	}

	chosen := candidates[0]
	if err := m.registerPromises(product, chosen.plan, subj, configuration); err != nil {
		// A plan not covering its own primary subject is a defect in the
		// task implementation, surfaced as a generic scheduling failure.
		return PromiseKey{}, &SchedulingError{
			Msg: fmt.Sprintf("the plan produced for %s by %s does not cover it", subj.Identity(), chosen.plan.Runner().Name()),
			Err: err,
		}
	}
	if chosen.rule != nil {
		m.trackRulePlan(chosen.rule, product, chosen.plan)
	}
	return key, nil
}

// planTask synthesizes the plan for a task source: one named input per
// clause select holding the promise key(s) for the selected subjects. Each
// nested Promise call recursively extends the plan DAG.
func (m *ProductMapper) planTask(rule *Rule, subject Subject, configuration any) (*Plan, error) {
	inputs := make(map[string]any, len(rule.Clause())+1)
	for _, sel := range rule.Clause() {
		name := inputName(inputs, sel.Product())
		switch sel.Kind() {
		case SelectBySubject:
			key, err := m.Promise(subject, sel.Product(), nil)
			if err != nil {
				return nil, err
			}
			inputs[name] = key
		case SelectByDependencies:
			deps, err := m.bg.ConfiguredDependencies(subject.Primary(), sel.ConfigurationName())
			if err != nil {
				return nil, err
			}
			keys := make([]any, 0, len(deps))
			for _, dep := range deps {
				key, err := m.Promise(dep.Entity, sel.Product(), dep.Configuration)
				if err != nil {
					return nil, err
				}
				keys = append(keys, key)
			}
			inputs[name] = keys
		case SelectByLiteralAddress:
			key, err := m.Promise(sel.Address(), sel.Product(), nil)
			if err != nil {
				return nil, err
			}
			inputs[name] = key
		default:
			return nil, fmt.Errorf("unimplemented select kind %s", sel.Kind())
		}
	}
	if configuration != nil {
		inputs["configuration"] = configuration
	}
	return NewPlan(rule.Runner(), []Subject{subject}, inputs), nil
}

// inputName derives the input name for a clause select from its product
// type, suffixing on collision so ordered clauses with repeated product
// types stay addressable.
func inputName(inputs map[string]any, product ProductType) string {
	base := strings.ToLower(productName(product))
	name := base
	for i := 2; ; i++ {
		if _, taken := inputs[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

// registerPromises indexes the plan under every subject it covers, so that
// dependents may address products from chunking tasks through any of their
// subjects. The requested primary subject must be among them.
func (m *ProductMapper) registerPromises(product ProductType, plan *Plan, primary Subject, configuration any) error {
	primaryCovered := false
	for _, subject := range plan.Subjects() {
		key := NewPromiseKey(subject, product, configuration)
		if _, exists := m.plans[key]; !exists {
			m.keyOrder = append(m.keyOrder, key)
		}
		m.plans[key] = plan
		if subject.Primary() == primary.Primary() {
			primaryCovered = true
		}
	}
	if !primaryCovered {
		return &InvalidRegistrationError{Subject: primary.Primary(), Plan: plan}
	}
	return nil
}

// trackRulePlan records a plan in the per-rule, per-output-type side table,
// deduplicated by plan identity.
func (m *ProductMapper) trackRulePlan(rule *Rule, product ProductType, plan *Plan) {
	byProduct, ok := m.plansByRule[rule]
	if !ok {
		byProduct = make(map[ProductType][]*Plan)
		m.plansByRule[rule] = byProduct
		m.ruleOrder = append(m.ruleOrder, rule)
	}
	for _, have := range byProduct[product] {
		if have.Equal(plan) {
			return
		}
	}
	byProduct[product] = append(byProduct[product], plan)
}

// AggregatePlans runs the once-only aggregation hook: every rule whose
// executable implements PlanAggregator may replace the N plans it produced
// for an output type with M <= N merged plans. Promise-key coverage is
// re-validated and keys are remapped to the replacement plans. Must run
// after all promises for a request are resolved and before the execution
// graph is walked.
func (m *ProductMapper) AggregatePlans() error {
	if m.aggregated {
		return fmt.Errorf("plan aggregation already ran for this request")
	}
	m.aggregated = true

	for _, rule := range m.ruleOrder {
		agg, ok := rule.aggregator()
		if !ok {
			continue
		}
		for product, plans := range m.plansByRule[rule] {
			merged, err := agg.AggregatePlans(plans)
			if err != nil {
				return fmt.Errorf("aggregating %s plans for %s: %w", product, rule.Runner().Name(), err)
			}
			if len(merged) > len(plans) {
				return fmt.Errorf("aggregation for %s returned %d plans for %d inputs", rule.Runner().Name(), len(merged), len(plans))
			}
			if err := m.remapPlans(product, plans, merged); err != nil {
				return err
			}
			m.plansByRule[rule][product] = merged
		}
	}
	return nil
}

// remapPlans points every key previously satisfied by one of the old plans
// at the replacement plan covering its subject.
func (m *ProductMapper) remapPlans(product ProductType, old, merged []*Plan) error {
	replaced := make(map[string]struct{}, len(old))
	for _, plan := range old {
		replaced[plan.Fingerprint()] = struct{}{}
	}
	for _, key := range m.keyOrder {
		plan, ok := m.plans[key]
		if !ok || key.Product() != product {
			continue
		}
		if _, ok := replaced[plan.Fingerprint()]; !ok {
			continue
		}
		remapped := false
		for _, candidate := range merged {
			if candidate.CoversSubject(key.Subject()) {
				m.plans[key] = candidate
				remapped = true
				break
			}
		}
		if !remapped {
			return fmt.Errorf("aggregation dropped coverage of %s", key)
		}
	}
	return nil
}
