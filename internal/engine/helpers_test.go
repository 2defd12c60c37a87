package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/laebshade/pants/internal/address"
)

// Product fixtures shared by the package tests. Two value-carrying product
// types are enough to exercise native facts, task production, and the
// chained case where one task's output feeds another.
type rawText struct{ Text string }

type upperText struct{ Text string }

type concatText struct{ Text string }

// testEntity is a minimal build entity with declared dependencies and
// optional native products.
type testEntity struct {
	name    string
	deps    []*testEntity
	configs map[string][]*testEntity
	natives []any
}

func (e *testEntity) Identity() string { return e.name }

func (e *testEntity) String() string { return e.name }

// testGraph implements BuildGraph over an in-memory entity set, keyed by
// target name for address resolution.
type testGraph struct {
	byName map[string]*testEntity
}

func newTestGraph(entities ...*testEntity) *testGraph {
	g := &testGraph{byName: make(map[string]*testEntity, len(entities))}
	for _, e := range entities {
		g.byName[e.name] = e
	}
	return g
}

func (g *testGraph) Resolve(addr address.Address) (any, error) {
	e, ok := g.byName[addr.Name]
	if !ok {
		return nil, fmt.Errorf("no entity at %s", addr)
	}
	return e, nil
}

func (g *testGraph) ConfiguredDependencies(entity any, configuration string) ([]Dependency, error) {
	e, ok := entity.(*testEntity)
	if !ok {
		return nil, nil
	}
	deps := e.deps
	if configuration != "" {
		narrowed, ok := e.configs[configuration]
		if !ok {
			return nil, fmt.Errorf("entity %s has no configuration %q", e.name, configuration)
		}
		deps = narrowed
	}
	out := make([]Dependency, 0, len(deps))
	for _, dep := range deps {
		out = append(out, Dependency{Entity: dep})
	}
	return out, nil
}

func (g *testGraph) NativeProducts(entity any) []any {
	if e, ok := entity.(*testEntity); ok {
		return e.natives
	}
	return nil
}

// uppercase is the canonical single-input task: *rawText in, *upperText out.
func uppercase(_ context.Context, inputs map[string]any) (any, error) {
	raw, ok := inputs["rawtext"].(*rawText)
	if !ok {
		return nil, fmt.Errorf("uppercase: expected a rawtext input, got %T", inputs["rawtext"])
	}
	return &upperText{Text: strings.ToUpper(raw.Text)}, nil
}

// concatUpper folds the subject's own upper text with its dependencies'
// concatenations: *upperText + []*concatText in, *concatText out.
func concatUpper(_ context.Context, inputs map[string]any) (any, error) {
	upper, ok := inputs["uppertext"].(*upperText)
	if !ok {
		return nil, fmt.Errorf("concat: expected an uppertext input, got %T", inputs["uppertext"])
	}
	parts := []string{upper.Text}
	deps, _ := inputs["concattext"].([]any)
	for _, v := range deps {
		dep, ok := v.(*concatText)
		if !ok {
			return nil, fmt.Errorf("concat: expected a concattext dependency, got %T", v)
		}
		parts = append(parts, dep.Text)
	}
	return &concatText{Text: strings.Join(parts, "+")}, nil
}

// textPlanners registers the uppercase and concat rules plus a "text" goal
// rooted at *concatText.
func textPlanners() (*Planners, *Rule, *Rule) {
	p := NewPlanners()
	p.RegisterGoal("upper", Product[*upperText]())
	p.RegisterGoal("text", Product[*concatText]())
	upperRule := p.RegisterRule(
		Product[*upperText](),
		[]Select{SelectSubject(Product[*rawText]())},
		uppercase,
	)
	concatRule := p.RegisterRule(
		Product[*concatText](),
		[]Select{
			SelectSubject(Product[*upperText]()),
			SelectDependencies(Product[*concatText](), ""),
		},
		concatUpper,
	)
	return p, upperRule, concatRule
}
