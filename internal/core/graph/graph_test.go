package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddNode(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph(WithTitle("demo"), WithLogger(hclog.NewNullLogger()))
	assert.Equal(t, "demo", g.Title)
	assert.Equal(t, IdentityTransform, g.Transform)

	n := mustNode(t, fx.add1)
	id, err := g.AddNode(n)
	require.NoError(t, err)
	assert.Equal(t, n.ID(), id)
	assert.Same(t, g, n.Graph())
	assert.Equal(t, 1, g.Len())

	_, err = g.AddNode(n)
	assert.ErrorIs(t, err, ErrDuplicateNode)
	_, err = g.AddNode(nil)
	assert.ErrorIs(t, err, ErrNilNode)

	got, ok := g.Node(id)
	require.True(t, ok)
	assert.Same(t, n, got)
	at, err := g.NodeAt(0)
	require.NoError(t, err)
	assert.Same(t, n, at)
	_, err = g.NodeAt(1)
	assert.ErrorIs(t, err, ErrCoordinate)
}

func TestGraph_RemoveNodeSeversEdges(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	a := fx.add(t, g, fx.constant)
	b := fx.add(t, g, fx.add1)
	c := fx.add(t, g, fx.add1)
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{1, 0}))
	require.NoError(t, g.AddEdge(Coord{1, 1}, Coord{2, 0}))

	require.NoError(t, g.RemoveNode(b.ID()))

	assert.Equal(t, 2, g.Len())
	assert.Nil(t, b.Graph())
	assert.Nil(t, c.Args()[0].Source(), "downstream sink is unlinked")
	assert.False(t, c.Args()[0].ReadOnly())
	assert.Empty(t, a.Returns()[0].Callbacks(), "upstream source keeps no follower")
	assert.Empty(t, g.Edges())

	// the remaining nodes no longer reach each other
	require.NoError(t, a.Args()[0].SetValue(7))
	assert.Equal(t, 2, c.Returns()[0].Value())

	assert.ErrorIs(t, g.RemoveNode(b.ID()), ErrNodeNotFound)
}

func TestGraph_RemoveAll(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	fx.add(t, g, fx.constant)
	fx.add(t, g, fx.add1)
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{1, 0}))

	g.RemoveAll()
	assert.Zero(t, g.Len())
	assert.Empty(t, g.Nodes())
}

func TestGraph_AddEdgeEndpoints(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	a := fx.add(t, g, fx.constant)
	b := fx.add(t, g, fx.add1)
	c := fx.add(t, g, fx.add1)
	require.NoError(t, a.Args()[0].SetValue(3))

	tests := []struct {
		name   string
		source Endpoint
		sink   Endpoint
		target *Node
	}{
		{"coord", Coord{0, 1}, Coord{1, 0}, b},
		{"ref", Ref{Node: a.ID(), Port: 1}, Ref{Node: c.ID(), Port: 0}, c},
		{"port", a.Returns()[0], b.Args()[0], b},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, g.AddEdge(tt.source, tt.sink))
			assert.Equal(t, 4, tt.target.Returns()[0].Value())
		})
	}
}

func TestGraph_AddEdgeErrors(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	a := fx.add(t, g, fx.constant)
	stranger := mustNode(t, fx.add1)

	tests := []struct {
		name    string
		source  Endpoint
		sink    Endpoint
		wantErr error
	}{
		{"node out of range", Coord{0, 1}, Coord{5, 0}, ErrCoordinate},
		{"port out of range", Coord{0, 9}, Coord{0, 0}, ErrCoordinate},
		{"negative coordinate", Coord{-1, 0}, Coord{0, 0}, ErrStructural},
		{"self loop", Coord{0, 0}, Coord{0, 0}, ErrSelfLoop},
		{"unknown ref", Ref{Node: "missing"}, Coord{0, 0}, ErrNodeNotFound},
		{"port outside graph", stranger.Returns()[0], a.Args()[0], ErrPortNotFound},
		{"nil endpoint", nil, Coord{0, 0}, ErrNilPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.AddEdge(tt.source, tt.sink)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, g.Edges())
}

func TestGraph_EdgesAndFindOwner(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	a := fx.add(t, g, fx.constant)
	fx.add(t, g, fx.add1)
	c := fx.add(t, g, fx.scale)
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{2, 1}))
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{1, 0}))
	require.NoError(t, g.AddEdge(Coord{1, 1}, Coord{2, 0}))

	require.NoError(t, g.RemoveEdge(Coord{2, 1}))
	assert.Nil(t, c.Args()[1].Source())

	want := []Edge{
		{Source: Coord{0, 1}, Sink: Coord{1, 0}},
		{Source: Coord{1, 1}, Sink: Coord{2, 0}},
	}
	if diff := cmp.Diff(want, g.Edges()); diff != "" {
		t.Errorf("Edges() mismatch (-want +got):\n%s", diff)
	}

	coord, err := g.FindOwner(c.Ports()[2])
	require.NoError(t, err)
	assert.Equal(t, Coord{2, 2}, coord)

	_, err = g.FindOwner(NewPort(KindInt, "loose"))
	assert.ErrorIs(t, err, ErrPortNotFound)

	assert.Equal(t, 0, g.IndexOf(a.ID()))
	assert.Equal(t, -1, g.IndexOf("nope"))
}

func TestGraph_EdgeReplacesSource(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	a := fx.add(t, g, fx.constant)
	b := fx.add(t, g, fx.constant)
	c := fx.add(t, g, fx.add1)
	require.NoError(t, a.Args()[0].SetValue(1))
	require.NoError(t, b.Args()[0].SetValue(20))

	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{2, 0}))
	require.NoError(t, g.AddEdge(Coord{1, 1}, Coord{2, 0}))

	assert.Equal(t, []Edge{{Source: Coord{1, 1}, Sink: Coord{2, 0}}}, g.Edges())
	assert.Equal(t, 21, c.Returns()[0].Value())
}

func TestGraph_HasCycle(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	fx.add(t, g, fx.add1)
	fx.add(t, g, fx.add1)
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{1, 0}))
	assert.False(t, g.HasCycle())

	extra := NewPort(KindInt, "feedback")
	b, err := g.NodeAt(1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(extra))
	a, err := g.NodeAt(0)
	require.NoError(t, err)
	extraA := NewPort(KindInt, "loop in")
	require.NoError(t, a.AddPort(extraA))

	// node-level cycle through ports that are not function arguments
	require.NoError(t, g.AddEdge(Coord{1, 2}, Coord{0, 2}))
	assert.True(t, g.HasCycle())
}

func TestNode_PlainPorts(t *testing.T) {
	in := NewPort(KindInt, "in", WithInput())
	out := NewPort(KindStr, "out", WithOutput())
	n, err := NewNode("plain", in, out)
	require.NoError(t, err)

	assert.Equal(t, NodeTag, n.Tag())
	assert.Equal(t, []*Port{in}, n.Inputs())
	assert.Equal(t, []*Port{out}, n.Outputs())
	assert.Empty(t, n.Args())

	p, ok := n.PortByName("out")
	require.True(t, ok)
	assert.Same(t, out, p)
	_, ok = n.PortByName("missing")
	assert.False(t, ok)

	_, err = n.Port(5)
	assert.ErrorIs(t, err, ErrCoordinate)

	require.NoError(t, n.RemovePort(in))
	assert.Len(t, n.Ports(), 1)

	_, err = NewNode("owned", out)
	assert.ErrorIs(t, err, ErrPortOwned)
	_, err = NewNode("nil", nil)
	assert.ErrorIs(t, err, ErrNilPort)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "errored", StatusErrored.String())
}
