package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laebshade/pants/internal/address"
	"github.com/laebshade/pants/internal/engine"
)

type rawDoc struct{ Text string }

type upperDoc struct{ Text string }

type bundleDoc struct{ Texts []string }

type fakeTarget struct {
	name    string
	deps    []*fakeTarget
	natives []any
}

func (t *fakeTarget) Identity() string { return t.name }

type fakeGraph struct {
	byName map[string]*fakeTarget
}

func newFakeGraph(targets ...*fakeTarget) *fakeGraph {
	g := &fakeGraph{byName: make(map[string]*fakeTarget, len(targets))}
	for _, target := range targets {
		g.byName[target.name] = target
	}
	return g
}

func (g *fakeGraph) Resolve(addr address.Address) (any, error) {
	target, ok := g.byName[addr.Name]
	if !ok {
		return nil, fmt.Errorf("no target at %s", addr)
	}
	return target, nil
}

func (g *fakeGraph) ConfiguredDependencies(entity any, _ string) ([]engine.Dependency, error) {
	target, ok := entity.(*fakeTarget)
	if !ok {
		return nil, nil
	}
	deps := make([]engine.Dependency, 0, len(target.deps))
	for _, dep := range target.deps {
		deps = append(deps, engine.Dependency{Entity: dep})
	}
	return deps, nil
}

func (g *fakeGraph) NativeProducts(entity any) []any {
	if target, ok := entity.(*fakeTarget); ok {
		return target.natives
	}
	return nil
}

func uppercaseDoc(_ context.Context, inputs map[string]any) (any, error) {
	raw := inputs["rawdoc"].(*rawDoc)
	return &upperDoc{Text: strings.ToUpper(raw.Text)}, nil
}

func bundleDocs(_ context.Context, inputs map[string]any) (any, error) {
	upper := inputs["upperdoc"].(*upperDoc)
	texts := []string{upper.Text}
	deps, _ := inputs["bundledoc"].([]any)
	for _, v := range deps {
		texts = append(texts, v.(*bundleDoc).Texts...)
	}
	return &bundleDoc{Texts: texts}, nil
}

func docPlanners() *engine.Planners {
	p := engine.NewPlanners()
	p.RegisterGoal("upper", engine.Product[*upperDoc]())
	p.RegisterGoal("bundle", engine.Product[*bundleDoc]())
	p.RegisterRule(
		engine.Product[*upperDoc](),
		[]engine.Select{engine.SelectSubject(engine.Product[*rawDoc]())},
		uppercaseDoc,
	)
	p.RegisterRule(
		engine.Product[*bundleDoc](),
		[]engine.Select{
			engine.SelectSubject(engine.Product[*upperDoc]()),
			engine.SelectDependencies(engine.Product[*bundleDoc](), ""),
		},
		bundleDocs,
	)
	return p
}

func TestBuildRequestImmutability(t *testing.T) {
	goals := []string{"upper"}
	addrs := []address.Address{address.MustParse("//src:a")}
	request := NewBuildRequest(goals, addrs)

	goals[0] = "mutated"
	addrs[0] = address.MustParse("//src:other")
	assert.Equal(t, []string{"upper"}, request.Goals())
	assert.Equal(t, "//src:a", request.Addresses()[0].String())

	request.Goals()[0] = "mutated"
	assert.Equal(t, []string{"upper"}, request.Goals())
}

func TestLocalSchedulerSingleSubject(t *testing.T) {
	target := &fakeTarget{name: "a", natives: []any{&rawDoc{Text: "hi"}}}
	bg := newFakeGraph(target)
	request := NewBuildRequest([]string{"upper"}, []address.Address{address.MustParse("//src:a")})

	local, err := NewLocalScheduler(context.Background(), bg, docPlanners(), request)
	require.NoError(t, err)

	roots := local.RootPromises()
	require.Len(t, roots, 1)
	assert.Equal(t, target, roots[0].Subject())
	assert.Equal(t, engine.Product[*upperDoc](), roots[0].Product())

	execGraph, err := local.Schedule()
	require.NoError(t, err)

	// Exactly two plans: the native rawdoc fact and the uppercase task, in
	// dependency order.
	var plans []*engine.Plan
	for _, plan := range execGraph.Walk() {
		plans = append(plans, plan)
	}
	require.Len(t, plans, 2)
	assert.Equal(t, "native", plans[0].Runner().Name())
	assert.Contains(t, plans[1].Runner().Name(), "uppercaseDoc")
}

func TestLocalSchedulerUnknownRoots(t *testing.T) {
	bg := newFakeGraph(&fakeTarget{name: "a", natives: []any{&rawDoc{}}})

	t.Run("unknown goal", func(t *testing.T) {
		request := NewBuildRequest([]string{"deploy"}, []address.Address{address.MustParse("//src:a")})
		_, err := NewLocalScheduler(context.Background(), bg, docPlanners(), request)
		assert.ErrorContains(t, err, `unknown goal "deploy"`)
	})

	t.Run("unknown address", func(t *testing.T) {
		request := NewBuildRequest([]string{"upper"}, []address.Address{address.MustParse("//src:missing")})
		_, err := NewLocalScheduler(context.Background(), bg, docPlanners(), request)
		assert.ErrorContains(t, err, "no target")
	})
}

func TestLocalSchedulerSkipsUnsatisfiableRoots(t *testing.T) {
	// One subject carries a rawdoc fact, the other carries nothing; the
	// upper product is simply skipped for the latter rather than failing
	// the request.
	a := &fakeTarget{name: "a", natives: []any{&rawDoc{Text: "hi"}}}
	b := &fakeTarget{name: "b"}
	bg := newFakeGraph(a, b)
	request := NewBuildRequest([]string{"upper"},
		[]address.Address{address.MustParse("//src:a"), address.MustParse("//src:b")})

	local, err := NewLocalScheduler(context.Background(), bg, docPlanners(), request)
	require.NoError(t, err)

	roots := local.RootPromises()
	require.Len(t, roots, 1)
	assert.Equal(t, a, roots[0].Subject())
}

func TestExecutionGraphWalkDiamond(t *testing.T) {
	// d1 and d2 both depend on base, so base's plans are reachable through
	// two paths but must be yielded exactly once.
	base := &fakeTarget{name: "base", natives: []any{&rawDoc{Text: "base"}}}
	d1 := &fakeTarget{name: "d1", natives: []any{&rawDoc{Text: "d1"}}, deps: []*fakeTarget{base}}
	d2 := &fakeTarget{name: "d2", natives: []any{&rawDoc{Text: "d2"}}, deps: []*fakeTarget{base}}
	root := &fakeTarget{name: "root", natives: []any{&rawDoc{Text: "root"}}, deps: []*fakeTarget{d1, d2}}
	bg := newFakeGraph(base, d1, d2, root)
	request := NewBuildRequest([]string{"bundle"}, []address.Address{address.MustParse("//src:root")})

	local, err := NewLocalScheduler(context.Background(), bg, docPlanners(), request)
	require.NoError(t, err)
	execGraph, err := local.Schedule()
	require.NoError(t, err)

	walk := execGraph.Walk()

	yielded := make(map[string]int)
	for _, plan := range walk {
		yielded[plan.Fingerprint()]++
		for _, dep := range plan.Promises() {
			depPlan, ok := execGraph.PlanFor(dep)
			require.True(t, ok)
			assert.Positive(t, yielded[depPlan.Fingerprint()],
				"dependency %s must be yielded before its dependent", depPlan)
		}
	}

	// Four targets, each with a native fact, an uppercase plan, and a
	// bundle plan.
	assert.Len(t, yielded, 12)
	for fp, count := range yielded {
		assert.Equal(t, 1, count, "plan %s yielded more than once", fp)
	}

	t.Run("walk restarts fresh", func(t *testing.T) {
		count := 0
		for range walk {
			count++
		}
		assert.Equal(t, 12, count)
	})

	t.Run("early break stops the walk", func(t *testing.T) {
		count := 0
		for range walk {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})
}

func TestScheduleAggregatesOnce(t *testing.T) {
	target := &fakeTarget{name: "a", natives: []any{&rawDoc{Text: "hi"}}}
	bg := newFakeGraph(target)
	request := NewBuildRequest([]string{"upper"}, []address.Address{address.MustParse("//src:a")})

	local, err := NewLocalScheduler(context.Background(), bg, docPlanners(), request)
	require.NoError(t, err)

	_, err = local.Schedule()
	require.NoError(t, err)
	_, err = local.Schedule()
	assert.ErrorContains(t, err, "already ran")
}
