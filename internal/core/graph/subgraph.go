package graph

import (
	"encoding/json"
	"fmt"
)

// Extract serializes the selected nodes together with those of edges whose
// source and sink both lie in the selection. Edge coordinates are rewritten
// relative to the selection order.
func (g *Graph) Extract(ids []NodeID, edges []Edge) (SceneState, error) {
	sel := make(map[int]int, len(ids))
	order := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		gi := g.IndexOf(id)
		if gi < 0 {
			return SceneState{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
		if _, dup := sel[gi]; dup {
			continue
		}
		sel[gi] = len(order)
		order = append(order, id)
	}

	internal := []Edge{}
	for _, e := range edges {
		src, okSrc := sel[e.Source.Node()]
		sink, okSink := sel[e.Sink.Node()]
		if !okSrc || !okSink {
			continue
		}
		internal = append(internal, Edge{
			Source: Coord{src, e.Source.Port()},
			Sink:   Coord{sink, e.Sink.Port()},
		})
	}
	return g.scene(order, internal)
}

// ExtractNodes is Extract over every edge of the graph.
func (g *Graph) ExtractNodes(ids ...NodeID) (SceneState, error) {
	return g.Extract(ids, g.Edges())
}

// Merge loads sc into fresh nodes appended to g and re-creates its edges
// with the shifted coordinates. It returns the new handles in order.
func (g *Graph) Merge(sc SceneState, missing Missing) ([]NodeID, Unconsumed, error) {
	l, err := g.loader(missing)
	if err != nil {
		return nil, nil, err
	}
	if err := validateState(sc); err != nil {
		return nil, nil, err
	}
	ids, _, err := g.merge(l, sc, "")
	if err != nil {
		return nil, nil, err
	}
	return ids, l.out, nil
}

// edgePayload is a single edge on the clipboard, in graph coordinates.
type edgePayload struct {
	TypeTag
	Edge
}

// Copy renders a selection as clipboard text. A lone node or a lone edge is
// emitted on its own; anything else is wrapped as {nodes, edges}.
func (g *Graph) Copy(ids []NodeID, edges []Edge) ([]byte, error) {
	switch {
	case len(ids) == 1 && len(edges) == 0:
		n, ok := g.nodes[ids[0]]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, ids[0])
		}
		st, err := n.State(g.registry)
		if err != nil {
			return nil, err
		}
		return json.Marshal(st)
	case len(ids) == 0 && len(edges) == 1:
		return json.Marshal(edgePayload{TypeTag: EdgeTag, Edge: edges[0]})
	}
	sc, err := g.Extract(ids, edges)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sc)
}

// Paste adds clipboard text produced by Copy. A lone edge is wired using
// its graph coordinates and yields no new nodes.
func (g *Graph) Paste(data []byte, missing Missing) ([]NodeID, Unconsumed, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnknownPayload, err)
	}
	_, hasNodes := keys["nodes"]
	_, hasEdges := keys["edges"]
	if hasNodes || hasEdges {
		var sc SceneState
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		return g.Merge(sc, missing)
	}

	var tag TypeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnknownPayload, err)
	}
	switch tag {
	case EdgeTag:
		var e edgePayload
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		if err := g.AddEdge(e.Source, e.Sink); err != nil {
			return nil, nil, err
		}
		return nil, Unconsumed{}, nil
	case NodeTag, FunctionNodeTag:
		var ns NodeState
		if err := json.Unmarshal(data, &ns); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		return g.Merge(SceneState{Nodes: []NodeState{ns}}, missing)
	}
	return nil, nil, fmt.Errorf("%w: tag %s", ErrUnknownPayload, tag)
}
