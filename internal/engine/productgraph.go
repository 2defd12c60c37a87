package engine

import (
	"fmt"
	"strings"
)

// SourceKind enumerates the closed set of ways a (subject, product) node can
// be produced.
type SourceKind int

const (
	// SourceKindTask produces the product by running a registered task.
	SourceKindTask SourceKind = iota
	// SourceKindNative surfaces a product already materialized on the subject.
	SourceKindNative
	// SourceKindNone marks a hole: the product has no known source and the
	// node is always unsatisfiable.
	SourceKindNone
	// SourceKindOr is a synthetic structural node aggregating alternative
	// sources of the same key. Or nodes are never matched when searching for
	// task sources.
	SourceKindOr
)

func (k SourceKind) String() string {
	switch k {
	case SourceKindTask:
		return "task"
	case SourceKindNative:
		return "native"
	case SourceKindNone:
		return "none"
	case SourceKindOr:
		return "or"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Source is the tagged variant describing how a node's product is obtained.
type Source struct {
	kind  SourceKind
	value any
	rule  *Rule
}

// NativeSource wraps a product value already present on the subject.
func NativeSource(value any) Source { return Source{kind: SourceKindNative, value: value} }

// TaskSource wraps a registered task rule.
func TaskSource(rule *Rule) Source { return Source{kind: SourceKindTask, rule: rule} }

// NoneSource marks the absence of any producer.
func NoneSource() Source { return Source{kind: SourceKindNone} }

// OrSource builds the synthetic aggregation source.
func OrSource() Source { return Source{kind: SourceKindOr} }

// Kind returns the source variant tag.
func (s Source) Kind() SourceKind { return s.kind }

// Value returns the native product value of a native source.
func (s Source) Value() any { return s.value }

// Rule returns the task rule of a task source.
func (s Source) Rule() *Rule { return s.rule }

// Node is a vertex of the ProductGraph, identified by (subject, product,
// source). Multiple nodes may share the (subject, product) key but differ by
// source: those are alternative ways of producing the same product.
type Node struct {
	Subject Subject
	Product ProductType
	Source  Source
}

func (n Node) String() string {
	return fmt.Sprintf("Node(%s, %s, %s)", n.Subject.Identity(), n.Product, n.Source.kind)
}

// nodeKey is the (subject, product) pair shared by alternative sources.
type nodeKey struct {
	subject any
	product ProductType
}

// nodeIdentity uniquely identifies a node including its source.
type nodeIdentity struct {
	nodeKey
	kind  SourceKind
	rule  *Rule
	value any
}

func identityFor(n Node) nodeIdentity {
	return nodeIdentity{
		nodeKey: nodeKey{subject: n.Subject.Primary(), product: n.Product},
		kind:    n.Source.kind,
		rule:    n.Source.rule,
		value:   n.Source.value,
	}
}

// NodeID is the opaque handle addressing a node in the graph arena.
type NodeID int

type satState int8

const (
	satUnknown satState = iota
	satVisiting
	satYes
	satNo
)

// ProductGraph is a DAG of product-possibility nodes held in an arena and
// addressed by NodeID handles, with adjacency lists keyed by handle. It is
// owned by a single scheduling goroutine during construction and is not safe
// for concurrent mutation.
type ProductGraph struct {
	nodes     []Node
	promises  []*Promise
	states    []satState
	index     map[nodeIdentity]NodeID
	byKey     map[nodeKey][]NodeID
	bySubject map[any][]NodeID
	adjacency map[NodeID][]NodeID
	edges     map[[2]NodeID]struct{}
}

// NewProductGraph returns an empty graph.
func NewProductGraph() *ProductGraph {
	return &ProductGraph{
		index:     make(map[nodeIdentity]NodeID),
		byKey:     make(map[nodeKey][]NodeID),
		bySubject: make(map[any][]NodeID),
		adjacency: make(map[NodeID][]NodeID),
		edges:     make(map[[2]NodeID]struct{}),
	}
}

// AddNode registers a node exactly once along with the promise that will
// eventually carry its value. Registering the same node twice is a
// programming error.
func (g *ProductGraph) AddNode(node Node, promise *Promise) (NodeID, error) {
	if promise == nil {
		return 0, fmt.Errorf("%s registered without a promise", node)
	}
	identity := identityFor(node)
	if id, ok := g.index[identity]; ok {
		return id, fmt.Errorf("%s is already registered as node %d", node, id)
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, node)
	g.promises = append(g.promises, promise)
	g.states = append(g.states, satUnknown)
	g.index[identity] = id
	g.byKey[identity.nodeKey] = append(g.byKey[identity.nodeKey], id)
	g.bySubject[identity.subject] = append(g.bySubject[identity.subject], id)
	return id, nil
}

// AddEdge records a dependency edge between two registered nodes. Adding an
// existing edge is a no-op.
func (g *ProductGraph) AddEdge(src, dst NodeID) error {
	if err := g.validatePresent(src); err != nil {
		return err
	}
	if err := g.validatePresent(dst); err != nil {
		return err
	}
	if _, ok := g.edges[[2]NodeID{src, dst}]; ok {
		return nil
	}
	g.edges[[2]NodeID{src, dst}] = struct{}{}
	g.adjacency[src] = append(g.adjacency[src], dst)
	return nil
}

func (g *ProductGraph) validatePresent(id NodeID) error {
	if id < 0 || int(id) >= len(g.nodes) {
		return fmt.Errorf("node %d is not registered in the product graph", id)
	}
	return nil
}

// ExistsNode reports whether the given node is registered, returning its
// handle when it is.
func (g *ProductGraph) ExistsNode(node Node) (NodeID, bool) {
	id, ok := g.index[identityFor(node)]
	return id, ok
}

// NodeAt returns the node behind a handle.
func (g *ProductGraph) NodeAt(id NodeID) Node {
	return g.nodes[id]
}

// PromiseFor returns the promise registered with a node.
func (g *ProductGraph) PromiseFor(id NodeID) *Promise {
	return g.promises[id]
}

// Len returns the number of registered nodes.
func (g *ProductGraph) Len() int {
	return len(g.nodes)
}

// ProductsFor returns the product types that are both reachable and
// satisfiable for the given subject, in first-registration order.
func (g *ProductGraph) ProductsFor(subject Subject) ([]ProductType, error) {
	seen := make(map[ProductType]struct{})
	var products []ProductType
	for _, id := range g.bySubject[subject.Primary()] {
		satisfiable, err := g.isSatisfiable(id)
		if err != nil {
			return nil, err
		}
		if !satisfiable {
			continue
		}
		product := g.nodes[id].Product
		if _, ok := seen[product]; ok {
			continue
		}
		seen[product] = struct{}{}
		products = append(products, product)
	}
	return products, nil
}

// SourcesFor yields each registered source at the (subject, product) key
// that is satisfiable. Or nodes are structural only and never yielded. If a
// consumed product is given, only sources whose subtree recursively consumes
// a dependency of that exact type are returned.
func (g *ProductGraph) SourcesFor(subject Subject, product ProductType, consumed any) ([]Source, error) {
	var sources []Source
	for _, id := range g.byKey[nodeKey{subject: subject.Primary(), product: product}] {
		node := g.nodes[id]
		if node.Source.kind == SourceKindOr {
			continue
		}
		satisfiable, err := g.isSatisfiable(id)
		if err != nil {
			return nil, err
		}
		if !satisfiable {
			continue
		}
		if consumed != nil && !g.consumesProduct(id, ProductOf(consumed), make(map[NodeID]struct{})) {
			continue
		}
		sources = append(sources, node.Source)
	}
	return sources, nil
}

// RegisteredSourcesFor yields every non-structural source registered at the
// key regardless of satisfiability. Used to diagnose precisely why an
// unsatisfiable key cannot be produced.
func (g *ProductGraph) RegisteredSourcesFor(subject Subject, product ProductType) []Source {
	var sources []Source
	for _, id := range g.byKey[nodeKey{subject: subject.Primary(), product: product}] {
		node := g.nodes[id]
		if node.Source.kind == SourceKindOr || node.Source.kind == SourceKindNone {
			continue
		}
		sources = append(sources, node.Source)
	}
	return sources
}

// consumesProduct reports whether the node's dependency subtree contains a
// dependency of the given product type.
func (g *ProductGraph) consumesProduct(id NodeID, product ProductType, visited map[NodeID]struct{}) bool {
	if _, ok := visited[id]; ok {
		return false
	}
	visited[id] = struct{}{}
	for _, dep := range g.adjacency[id] {
		if g.nodes[dep].Product == product {
			return true
		}
		if g.consumesProduct(dep, product, visited) {
			return true
		}
	}
	return false
}

// isSatisfiable evaluates the node's satisfiability, memoized per handle:
// None sources never are, Native sources always are, Or sources require any
// satisfiable dependency, Task sources require all of them. Revisiting a
// node already on the evaluation stack means the subject/product dependencies
// form a cycle, reported as a hard error.
func (g *ProductGraph) isSatisfiable(id NodeID) (bool, error) {
	switch g.states[id] {
	case satYes:
		return true, nil
	case satNo:
		return false, nil
	case satVisiting:
		return false, &CyclicDependencyError{Path: []string{g.nodes[id].String()}}
	}

	node := g.nodes[id]
	switch node.Source.kind {
	case SourceKindNone:
		g.states[id] = satNo
		return false, nil
	case SourceKindNative:
		g.states[id] = satYes
		return true, nil
	}

	g.states[id] = satVisiting
	satisfied := node.Source.kind == SourceKindTask // vacuous AND for task, vacuous OR for or
	for _, dep := range g.adjacency[id] {
		depSatisfied, err := g.isSatisfiable(dep)
		if err != nil {
			if cyclic, ok := err.(*CyclicDependencyError); ok {
				cyclic.Path = append([]string{node.String()}, cyclic.Path...)
			}
			g.states[id] = satUnknown
			return false, err
		}
		if node.Source.kind == SourceKindOr && depSatisfied {
			satisfied = true
			break
		}
		if node.Source.kind == SourceKindTask && !depSatisfied {
			satisfied = false
			break
		}
	}

	if satisfied {
		g.states[id] = satYes
	} else {
		g.states[id] = satNo
	}
	return satisfied, nil
}

// EdgeStrings renders every edge for debug output.
func (g *ProductGraph) EdgeStrings() []string {
	var out []string
	for src := NodeID(0); int(src) < len(g.nodes); src++ {
		for _, dst := range g.adjacency[src] {
			out = append(out, fmt.Sprintf("%s -> %s", g.nodes[src], g.nodes[dst]))
		}
	}
	return out
}

func (g *ProductGraph) String() string {
	return fmt.Sprintf("ProductGraph(%s)", strings.Join(g.EdgeStrings(), ", "))
}
