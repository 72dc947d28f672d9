// Package graph provides the dataflow graph engine: ports that hold values,
// nodes that own ports, function nodes that synthesize ports from a Go func,
// and the graph that owns nodes and derives edges from port sources.
//
// Everything is synchronous and single-threaded. Setting a value evaluates
// and notifies everything downstream before returning.
package graph

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/hashicorp/go-hclog"

	"github.com/flowgraph/dataflow/pkg/validation"
)

// IdentityTransform is the default editor view transform.
var IdentityTransform = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Graph owns its nodes in an arena keyed by NodeID, kept in insertion order.
// Edges are not stored; they are implied by each port's source.
// PRINCIPLES:
// - KISS: a map plus an order slice, nothing else is authoritative
// - SRP: structure only, propagation lives on the ports
type Graph struct {
	Title     string
	Transform [9]float64

	nodes map[NodeID]*Node
	order []NodeID

	registry *Registry
	logger   hclog.Logger
	observer Observer

	// unknown keys kept under MissingAdd, written back by State
	extra       map[string]json.RawMessage
	editorExtra map[string]json.RawMessage
	sceneExtra  map[string]json.RawMessage
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger; the graph logs under the "graph" name.
func WithLogger(l hclog.Logger) Option {
	return func(g *Graph) { g.logger = l.Named("graph") }
}

// WithRegistry sets the registry used to save and load states.
func WithRegistry(r *Registry) Option {
	return func(g *Graph) { g.registry = r }
}

// WithObserver receives propagation and evaluation events.
func WithObserver(o Observer) Option {
	return func(g *Graph) { g.observer = o }
}

// WithTitle sets the graph title.
func WithTitle(title string) Option {
	return func(g *Graph) { g.Title = title }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		Transform: IdentityTransform,
		nodes:     make(map[NodeID]*Node),
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registry == nil {
		g.registry = NewRegistry()
	}
	return g
}

// Registry returns the registry used for states.
func (g *Graph) Registry() *Registry { return g.registry }

// Logger returns the graph logger.
func (g *Graph) Logger() hclog.Logger { return g.logger }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Nodes returns the nodes in order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Node looks up a node by handle.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeAt returns the i-th node.
func (g *Graph) NodeAt(i int) (*Node, error) {
	if i < 0 || i >= len(g.order) {
		return nil, fmt.Errorf("%w: node %d of %d", ErrCoordinate, i, len(g.order))
	}
	return g.nodes[g.order[i]], nil
}

// IndexOf returns the position of a node, or -1.
func (g *Graph) IndexOf(id NodeID) int {
	return slices.Index(g.order, id)
}

// AddNode appends n and returns its handle.
func (g *Graph) AddNode(n *Node) (NodeID, error) {
	if n == nil {
		return "", ErrNilNode
	}
	if n.graph != nil {
		return "", ErrDuplicateNode
	}
	if _, exists := g.nodes[n.id]; exists {
		return "", ErrDuplicateNode
	}
	n.graph = g
	g.nodes[n.id] = n
	g.order = append(g.order, n.id)
	g.logger.Debug("node added", "node", n.name, "id", n.id)
	return n.id, nil
}

// RemoveNode severs every edge touching the node and discards it. Any port
// elsewhere in the graph that follows one of its ports is unlinked first.
func (g *Graph) RemoveNode(id NodeID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for _, other := range g.nodes {
		for _, p := range other.ports {
			if p.source != nil && p.source.node == n {
				p.UnsetSource()
			}
		}
	}
	for _, p := range n.ports {
		p.UnsetSource()
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(x NodeID) bool { return x == id })
	n.graph = nil
	g.logger.Debug("node removed", "node", n.name, "id", id)
	return nil
}

// RemoveAll removes every node.
func (g *Graph) RemoveAll() {
	for _, id := range slices.Clone(g.order) {
		_ = g.RemoveNode(id)
	}
}

// Port resolves an endpoint against the current node order.
func (g *Graph) Port(e Endpoint) (*Port, error) {
	if e == nil {
		return nil, ErrNilPort
	}
	return e.resolve(g)
}

// AddEdge makes sink follow source. Any previous source of sink is
// detached. Cycles are not rejected; only a port feeding itself is.
func (g *Graph) AddEdge(source, sink Endpoint) error {
	src, err := g.Port(source)
	if err != nil {
		return err
	}
	dst, err := g.Port(sink)
	if err != nil {
		return err
	}
	return dst.SetSource(src)
}

// RemoveEdge detaches sink from its source.
func (g *Graph) RemoveEdge(sink Endpoint) error {
	dst, err := g.Port(sink)
	if err != nil {
		return err
	}
	dst.UnsetSource()
	return nil
}

// FindOwner locates p by scanning every node, which costs O(nodes*ports).
func (g *Graph) FindOwner(p *Port) (Coord, error) {
	for ni, id := range g.order {
		if pi := g.nodes[id].IndexOf(p); pi >= 0 {
			return Coord{ni, pi}, nil
		}
	}
	return Coord{}, ErrPortNotFound
}

// Edges derives the edge list from every port's source, ordered by sink.
func (g *Graph) Edges() []Edge {
	coords := make(map[*Port]Coord)
	for ni, id := range g.order {
		for pi, p := range g.nodes[id].ports {
			coords[p] = Coord{ni, pi}
		}
	}
	var edges []Edge
	for ni, id := range g.order {
		for pi, p := range g.nodes[id].ports {
			if p.source == nil {
				continue
			}
			src, ok := coords[p.source]
			if !ok {
				g.logger.Warn("source outside graph", "node", g.nodes[id].name, "port", p.name)
				continue
			}
			edges = append(edges, Edge{Source: src, Sink: Coord{ni, pi}})
		}
	}
	return edges
}

// HasCycle reports whether the node-level wiring contains a cycle. Such a
// graph is allowed, but a value set inside the cycle recurses without end.
func (g *Graph) HasCycle() bool {
	adj := make(map[NodeID][]NodeID)
	for _, e := range g.Edges() {
		from, to := g.order[e.Source.Node()], g.order[e.Sink.Node()]
		adj[from] = append(adj[from], to)
	}
	return validation.HasCycle(g.order, adj)
}
