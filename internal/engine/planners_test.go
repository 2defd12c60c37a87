package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannersGoals(t *testing.T) {
	p := NewPlanners()
	p.RegisterGoal("text", Product[*concatText]())
	p.RegisterGoal("upper", Product[*upperText]())
	p.RegisterGoal("text", Product[*concatText](), Product[*upperText]())

	assert.Equal(t, []string{"text", "upper"}, p.Goals())

	products, err := p.ProductsForGoal("text")
	require.NoError(t, err)
	assert.Equal(t, []ProductType{Product[*concatText](), Product[*upperText]()}, products,
		"repeated registration unions without duplicating")

	_, err = p.ProductsForGoal("deploy")
	assert.ErrorContains(t, err, `unknown goal "deploy"`)
}

func TestPlannersNodeSources(t *testing.T) {
	planners, upperRule, _ := textPlanners()
	bg := newTestGraph()

	t.Run("native products on the subject", func(t *testing.T) {
		raw := &rawText{Text: "hi"}
		subject := NewSubject(&testEntity{name: "//src:a", natives: []any{raw}})

		sources := planners.nodeSources(bg, subject, Product[*rawText]())
		require.Len(t, sources, 1)
		assert.Equal(t, SourceKindNative, sources[0].Kind())
		assert.Equal(t, raw, sources[0].Value())
	})

	t.Run("alternate derivations contribute natives", func(t *testing.T) {
		raw := &rawText{Text: "alt"}
		subject := NewSubject(&testEntity{name: "//src:a"}).
			WithAlternate(&testEntity{name: "//src:a-alt", natives: []any{raw}})

		sources := planners.nodeSources(bg, subject, Product[*rawText]())
		require.Len(t, sources, 1)
		assert.Equal(t, raw, sources[0].Value())
	})

	t.Run("registered rules contribute task sources", func(t *testing.T) {
		subject := NewSubject(&testEntity{name: "//src:a"})

		sources := planners.nodeSources(bg, subject, Product[*upperText]())
		require.Len(t, sources, 1)
		assert.Equal(t, SourceKindTask, sources[0].Kind())
		assert.Equal(t, upperRule, sources[0].Rule())
	})

	t.Run("no producers yields a single hole", func(t *testing.T) {
		subject := NewSubject(&testEntity{name: "//src:a"})

		sources := planners.nodeSources(bg, subject, Product[string]())
		require.Len(t, sources, 1)
		assert.Equal(t, SourceKindNone, sources[0].Kind())
	})
}

func TestPlannersProductGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("task over native", func(t *testing.T) {
		planners, _, _ := textPlanners()
		entity := &testEntity{name: "//src:a", natives: []any{&rawText{Text: "hi"}}}
		bg := newTestGraph(entity)
		subject := NewSubject(entity)

		pg, err := planners.ProductGraph(ctx, bg, []Subject{subject}, []ProductType{Product[*upperText]()})
		require.NoError(t, err)

		products, err := pg.ProductsFor(subject)
		require.NoError(t, err)
		assert.Contains(t, products, Product[*upperText]())
		assert.Contains(t, products, Product[*rawText](), "dependency expansion registers the native node")

		// The native node's promise completes during construction.
		native, ok := pg.ExistsNode(Node{Subject: subject, Product: Product[*rawText](), Source: NativeSource(entity.natives[0])})
		require.True(t, ok)
		value, err := pg.PromiseFor(native).Get()
		require.NoError(t, err)
		assert.Equal(t, entity.natives[0], value)
	})

	t.Run("unreachable product is a hole not an absence", func(t *testing.T) {
		planners, _, _ := textPlanners()
		entity := &testEntity{name: "//src:a"}
		bg := newTestGraph(entity)
		subject := NewSubject(entity)

		pg, err := planners.ProductGraph(ctx, bg, []Subject{subject}, []ProductType{Product[*upperText]()})
		require.NoError(t, err)

		// The *rawText dependency has no producer: registered as a None node.
		_, ok := pg.ExistsNode(Node{Subject: subject, Product: Product[*rawText](), Source: NoneSource()})
		assert.True(t, ok)

		products, err := pg.ProductsFor(subject)
		require.NoError(t, err)
		assert.NotContains(t, products, Product[*upperText]())
	})

	t.Run("multiple sources are joined under an or node", func(t *testing.T) {
		planners, _, _ := textPlanners()
		planners.RegisterRule(Product[*upperText](), nil, namedRunner("other-upper"))

		entity := &testEntity{name: "//src:a", natives: []any{&rawText{Text: "hi"}}}
		bg := newTestGraph(entity)
		subject := NewSubject(entity)

		pg, err := planners.ProductGraph(ctx, bg, []Subject{subject}, []ProductType{Product[*upperText]()})
		require.NoError(t, err)

		_, ok := pg.ExistsNode(Node{Subject: subject, Product: Product[*upperText](), Source: OrSource()})
		assert.True(t, ok)

		// The or node is satisfiable through the zero-clause rule even
		// though the uppercase path would also work.
		products, err := pg.ProductsFor(subject)
		require.NoError(t, err)
		assert.Contains(t, products, Product[*upperText]())
	})

	t.Run("recursive dependency expansion", func(t *testing.T) {
		planners, _, _ := textPlanners()
		dep := &testEntity{name: "//src:dep", natives: []any{&rawText{Text: "dep"}}}
		root := &testEntity{name: "//src:root", natives: []any{&rawText{Text: "root"}}, deps: []*testEntity{dep}}
		bg := newTestGraph(root, dep)
		subject := NewSubject(root)

		pg, err := planners.ProductGraph(ctx, bg, []Subject{subject}, []ProductType{Product[*concatText]()})
		require.NoError(t, err)

		depSubject := NewSubject(dep)
		products, err := pg.ProductsFor(depSubject)
		require.NoError(t, err)
		assert.Contains(t, products, Product[*concatText](), "dependency subjects are expanded transitively")

		products, err = pg.ProductsFor(subject)
		require.NoError(t, err)
		assert.Contains(t, products, Product[*concatText]())
	})

	t.Run("construction is idempotent per node", func(t *testing.T) {
		planners, _, _ := textPlanners()
		entity := &testEntity{name: "//src:a", natives: []any{&rawText{Text: "hi"}}}
		bg := newTestGraph(entity)
		subject := NewSubject(entity)

		// Diamond-shaped sharing: the same subject appears twice in the
		// roots, and its nodes must only register once.
		pg, err := planners.ProductGraph(ctx, bg, []Subject{subject, subject}, []ProductType{Product[*upperText]()})
		require.NoError(t, err)
		assert.Equal(t, 2, pg.Len())
	})
}
