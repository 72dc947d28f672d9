// Package graph provides edge definitions
package graph

import "fmt"

// Edge is a materialized connection between two coordinates.
type Edge struct {
	Source Coord `json:"source" validate:"dive,gte=0"`
	Sink   Coord `json:"sink" validate:"dive,gte=0"`
}

// Coord addresses a port as (node index, port index) in the graph order.
type Coord [2]int

// Node is the node index.
func (c Coord) Node() int { return c[0] }

// Port is the port index within the node.
func (c Coord) Port() int { return c[1] }

// Ref addresses a port by node handle and port index.
type Ref struct {
	Node NodeID
	Port int
}

// Endpoint is anything AddEdge accepts: *Port, Coord or Ref.
type Endpoint interface {
	resolve(g *Graph) (*Port, error)
}

func (p *Port) resolve(g *Graph) (*Port, error) {
	if p == nil {
		return nil, ErrNilPort
	}
	if p.node == nil || g.nodes[p.node.id] != p.node {
		return nil, fmt.Errorf("%w: %w: port %q is not in this graph", ErrStructural, ErrPortNotFound, p.name)
	}
	return p, nil
}

func (c Coord) resolve(g *Graph) (*Port, error) {
	n, err := g.NodeAt(c[0])
	if err != nil {
		return nil, err
	}
	return n.Port(c[1])
}

func (r Ref) resolve(g *Graph) (*Port, error) {
	n, ok := g.nodes[r.Node]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrStructural, ErrNodeNotFound, r.Node)
	}
	return n.Port(r.Port)
}
