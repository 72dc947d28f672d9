package graph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowgraph/dataflow/pkg/validation"
)

// State returns the persisted form of p. Value and options go through the
// registry's value codec.
func (p *Port) State(r *Registry) (PortState, error) {
	st := PortState{
		TypeTag:   p.kind.Tag(),
		Name:      p.name,
		Input:     SocketState{Enabled: p.input},
		Output:    SocketState{Enabled: p.output},
		Callbacks: []CallbackState{},
		Extra:     p.extra,
	}
	if p.value != nil {
		v, err := r.values.Encode(p.value)
		if err != nil {
			return PortState{}, fmt.Errorf("port %q: %w", p.name, err)
		}
		st.Value = v
	}
	for _, cb := range p.callbacks {
		if cb.Tag.IsZero() {
			continue
		}
		cs := CallbackState{TypeTag: cb.Tag}
		if cb.Self != nil {
			self := cb.Self.tag
			cs.Self = &self
		}
		st.Callbacks = append(st.Callbacks, cs)
	}
	if p.kind.IsNumeric() {
		st.Start, st.Stop, st.Step = p.rng.Start, p.rng.Stop, p.rng.Step
	}
	if p.kind == KindFloat {
		d := p.decimals
		st.Decimals = &d
	}
	if p.kind == KindCombo && len(p.choice.Options) > 0 {
		opts, err := r.values.Encode(p.choice.Options)
		if err != nil {
			return PortState{}, fmt.Errorf("port %q options: %w", p.name, err)
		}
		st.Options = opts
	}
	if p.kind == KindGeneric && p.lines > 0 {
		lines := p.lines
		st.Lines = &lines
	}
	return st, nil
}

// State returns the persisted form of n.
func (n *Node) State(r *Registry) (NodeState, error) {
	st := NodeState{
		TypeTag: n.tag,
		Name:    n.name,
		Entries: make([]PortState, 0, len(n.ports)),
		Extra:   n.extra,
	}
	for _, p := range n.ports {
		ps, err := p.State(r)
		if err != nil {
			return NodeState{}, fmt.Errorf("node %q: %w", n.name, err)
		}
		st.Entries = append(st.Entries, ps)
	}
	if n.fn != nil {
		tag := n.fn.Tag
		nArgs, nReturns, nActions := n.nArgs, n.nReturns, n.nActions
		st.Function = &tag
		st.NArgs, st.NReturns, st.NActions = &nArgs, &nReturns, &nActions
	}
	return st, nil
}

// State returns the persisted document for the whole graph.
func (g *Graph) State() (GraphState, error) {
	scene, err := g.scene(g.order, g.Edges())
	if err != nil {
		return GraphState{}, err
	}
	scene.Extra = g.sceneExtra
	return GraphState{
		TypeTag: GraphTag,
		Title:   g.Title,
		Editor: EditorState{
			Transform: g.Transform,
			Scene:     scene,
			Extra:     g.editorExtra,
		},
		Extra: g.extra,
	}, nil
}

func (g *Graph) scene(ids []NodeID, edges []Edge) (SceneState, error) {
	sc := SceneState{Nodes: make([]NodeState, 0, len(ids)), Edges: edges}
	if sc.Edges == nil {
		sc.Edges = []Edge{}
	}
	for _, id := range ids {
		ns, err := g.nodes[id].State(g.registry)
		if err != nil {
			return SceneState{}, err
		}
		sc.Nodes = append(sc.Nodes, ns)
	}
	return sc, nil
}

// SetState replaces the whole graph with st. Unknown keys are handled per
// missing; under MissingReturn they are collected in the result. On error
// the graph is left empty.
func (g *Graph) SetState(st GraphState, missing Missing) (Unconsumed, error) {
	l, err := g.loader(missing)
	if err != nil {
		return nil, err
	}
	if !st.TypeTag.IsZero() && st.TypeTag != GraphTag {
		return nil, &ResolutionError{Kind: "graph", Tag: st.TypeTag}
	}
	if err := validateState(st); err != nil {
		return nil, err
	}
	kept, err := l.extras("", st.Extra)
	if err != nil {
		return nil, err
	}
	editorKept, err := l.extras("editor", st.Editor.Extra)
	if err != nil {
		return nil, err
	}

	g.RemoveAll()
	g.Title = st.Title
	g.Transform = st.Editor.Transform
	if g.Transform == ([9]float64{}) {
		g.Transform = IdentityTransform
	}
	g.extra, g.editorExtra, g.sceneExtra = nil, nil, nil
	_, sceneKept, err := g.merge(l, st.Editor.Scene, "editor.scene")
	if err != nil {
		return nil, err
	}
	g.extra, g.editorExtra, g.sceneExtra = kept, editorKept, sceneKept
	g.logger.Debug("state loaded", "title", g.Title, "nodes", g.Len())
	return l.out, nil
}

// AddState appends the nodes and edges of st without clearing the graph.
func (g *Graph) AddState(st GraphState, missing Missing) ([]NodeID, Unconsumed, error) {
	return g.Merge(st.Editor.Scene, missing)
}

func validateState(v any) error {
	if err := validation.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrStructural, err)
	}
	return nil
}

func (g *Graph) loader(missing Missing) (*loader, error) {
	if _, err := ParseMissing(string(missing)); err != nil {
		return nil, err
	}
	obs := g.observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &loader{reg: g.registry, missing: missing, out: Unconsumed{}, obs: obs, log: g.logger}, nil
}

// merge adds the nodes of sc after the existing ones and wires its edges
// with coordinates shifted accordingly. Nothing is kept if a node or an
// edge cannot be loaded. The scene's own unknown keys kept under MissingAdd
// are returned.
func (g *Graph) merge(l *loader, sc SceneState, path string) ([]NodeID, map[string]json.RawMessage, error) {
	kept, err := l.extras(path, sc.Extra)
	if err != nil {
		return nil, nil, err
	}
	offset := len(g.order)
	added := make([]NodeID, 0, len(sc.Nodes))
	rollback := func() {
		for _, id := range added {
			_ = g.RemoveNode(id)
		}
	}

	for i, ns := range sc.Nodes {
		n, err := l.node(ns, joinPath(path, fmt.Sprintf("nodes[%d]", i)))
		if err != nil {
			rollback()
			return nil, nil, err
		}
		id, err := g.AddNode(n)
		if err != nil {
			rollback()
			return nil, nil, err
		}
		added = append(added, id)
	}

	for i, e := range sc.Edges {
		if e.Source.Node() >= len(sc.Nodes) || e.Sink.Node() >= len(sc.Nodes) {
			rollback()
			return nil, nil, fmt.Errorf("%w: %s refers past %d nodes", ErrCoordinate, joinPath(path, fmt.Sprintf("edges[%d]", i)), len(sc.Nodes))
		}
		src := Coord{offset + e.Source.Node(), e.Source.Port()}
		sink := Coord{offset + e.Sink.Node(), e.Sink.Port()}
		if err := g.AddEdge(src, sink); err != nil {
			if isWiringError(err) {
				rollback()
				return nil, nil, fmt.Errorf("%s: %w", joinPath(path, fmt.Sprintf("edges[%d]", i)), err)
			}
			// the edge is linked; only the value it carried did not fit
			l.log.Warn("edge propagation failed", "edge", i, "error", err)
		}
	}
	return added, kept, nil
}

// isWiringError reports errors that leave an edge unlinked. A value that
// does not fit the sink is not one: SetSource links regardless.
func isWiringError(err error) bool {
	return errors.Is(err, ErrStructural) || errors.Is(err, ErrContractViolation) ||
		errors.Is(err, ErrNilPort) || errors.Is(err, ErrCoordinate) ||
		errors.Is(err, ErrPortNotFound) || errors.Is(err, ErrNodeNotFound)
}

// node builds a detached node from its state.
func (l *loader) node(st NodeState, path string) (*Node, error) {
	n, err := l.reg.NewNodeFor(st.TypeTag)
	if err != nil {
		return nil, err
	}
	n.name = st.Name

	switch {
	case st.Function != nil && n.tag != FunctionNodeTag:
		return nil, fmt.Errorf("%w: %s: plain node with a function", ErrStructural, path)
	case st.Function == nil && n.tag == FunctionNodeTag:
		return nil, fmt.Errorf("%w: %s: function node without a function", ErrStructural, path)
	case st.Function != nil:
		f, err := l.reg.Function(*st.Function)
		if err != nil {
			return nil, err
		}
		n.fn = f
		if st.Entries == nil {
			if err := n.synthesize(); err != nil {
				return nil, err
			}
			return n, l.keep(n, st, path)
		}
		n.nArgs, n.nReturns, n.nActions = count(st.NArgs, len(f.args)), count(st.NReturns, len(f.returns)), count(st.NActions, len(f.actions))
		if n.nArgs != len(f.args) || n.nReturns != len(f.returns) || n.nArgs+n.nReturns+n.nActions > len(st.Entries) {
			return nil, fmt.Errorf("%w: %s: %d/%d/%d ports do not fit %s with %d entries",
				ErrStructural, path, n.nArgs, n.nReturns, n.nActions, f.Tag, len(st.Entries))
		}
	}

	for i, ps := range st.Entries {
		p, err := l.port(ps, n, fmt.Sprintf("%s.entries[%d]", path, i))
		if err != nil {
			return nil, err
		}
		if err := n.AddPort(p); err != nil {
			return nil, err
		}
	}
	return n, l.keep(n, st, path)
}

func (l *loader) keep(n *Node, st NodeState, path string) error {
	kept, err := l.extras(path, st.Extra)
	n.extra = kept
	return err
}

func count(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// port builds a detached port from its state. Persisted callbacks that
// cannot be resolved are skipped.
func (l *loader) port(st PortState, owner *Node, path string) (*Port, error) {
	kind, err := l.reg.PortKind(st.TypeTag)
	if err != nil {
		return nil, err
	}

	var opts []PortOption
	if kind.IsNumeric() {
		r := Range{Start: st.Start, Stop: st.Stop, Step: st.Step}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		opts = append(opts, WithRange(r))
	}
	if st.Decimals != nil {
		opts = append(opts, WithDecimals(*st.Decimals))
	}
	if st.Lines != nil {
		opts = append(opts, WithLines(*st.Lines))
	}
	if st.Options != "" {
		raw, err := l.reg.values.Decode(st.Options)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.options: %w", ErrStructural, path, err)
		}
		options, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.options is %T", ErrStructural, path, raw)
		}
		opts = append(opts, WithChoice(OneOf(options...)))
	}

	p := NewPort(kind, st.Name, opts...)
	p.input, p.output = st.Input.Enabled, st.Output.Enabled
	if st.Value != "" {
		v, err := l.reg.values.Decode(st.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.value: %w", ErrStructural, path, err)
		}
		if err := p.SetValueSilently(v); err != nil {
			return nil, fmt.Errorf("%w: %s.value: %w", ErrStructural, path, err)
		}
	}
	if owner != nil && owner.fn != nil {
		i := len(owner.ports)
		p.readOnly = i >= owner.nArgs && i < owner.nArgs+owner.nReturns
	}

	for i, cs := range st.Callbacks {
		cb, err := l.reg.Callback(cs.TypeTag, cs.Self, owner)
		if err != nil {
			l.log.Warn("skipping callback", "path", path, "callback", cs.TypeTag.String(), "error", err)
			l.obs.CallbackSkipped(cs.TypeTag, err)
			continue
		}
		if _, err := l.extras(fmt.Sprintf("%s.callbacks[%d]", path, i), cs.Extra); err != nil {
			return nil, err
		}
		p.AddCallback(cb)
	}

	if _, err := l.extras(path+".input", st.Input.Extra); err != nil {
		return nil, err
	}
	if _, err := l.extras(path+".output", st.Output.Extra); err != nil {
		return nil, err
	}
	if p.extra, err = l.extras(path, st.Extra); err != nil {
		return nil, err
	}
	return p, nil
}
