package prebuilt

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/dataflow/internal/core/graph"
)

func newNode(t *testing.T, reg *graph.Registry, name string) *graph.Node {
	t.Helper()
	f, err := reg.Function(Tag(name))
	require.NoError(t, err)
	n, err := graph.NewFunctionNode(f)
	require.NoError(t, err)
	return n
}

func TestRegister(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Len(t, reg.Functions(), len(catalogue))

	// registering twice keeps the first set
	require.NoError(t, Register(reg))
	assert.Len(t, reg.Functions(), len(catalogue))

	f, ok := reg.Lookup("waveform")
	require.True(t, ok)
	assert.Equal(t, Tag("waveform"), f.Tag)
}

func TestFunctions(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	t.Run("scale clamps factor", func(t *testing.T) {
		n := newNode(t, reg, "scale")
		require.NoError(t, n.Args()[0].SetValue(2.0))
		require.NoError(t, n.Args()[1].SetValue(25.0))
		assert.Equal(t, 10.0, n.Args()[1].Value())
		assert.Equal(t, 20.0, n.Returns()[0].Value())
	})

	t.Run("divmod", func(t *testing.T) {
		n := newNode(t, reg, "divmod")
		require.NoError(t, n.Args()[0].SetValue(17))
		require.NoError(t, n.Args()[1].SetValue(5))
		assert.Equal(t, 3, n.Returns()[0].Value())
		assert.Equal(t, 2, n.Returns()[1].Value())

		require.NoError(t, n.Args()[1].SetValue(0))
		assert.Equal(t, graph.StatusErrored, n.Status())
		assert.ErrorIs(t, n.Err(), ErrDivideByZero)
		assert.Equal(t, 3, n.Returns()[0].Value(), "outputs keep their last values")
	})

	t.Run("concat", func(t *testing.T) {
		n := newNode(t, reg, "concat")
		require.NoError(t, n.Args()[0].SetValue("flow"))
		require.NoError(t, n.Args()[1].SetValue("graph"))
		require.NoError(t, n.Args()[2].SetValue("-"))
		assert.Equal(t, "flow-graph", n.Returns()[0].Value())
	})

	t.Run("gate", func(t *testing.T) {
		n := newNode(t, reg, "gate")
		require.NoError(t, n.Args()[1].SetValue(4.5))
		assert.Equal(t, 0.0, n.Returns()[0].Value(), "closed gate holds its output")
		require.NoError(t, n.Args()[0].SetValue(true))
		assert.Equal(t, 4.5, n.Returns()[0].Value())
		assert.NotEqual(t, graph.StatusErrored, n.Status())
	})

	t.Run("linspace", func(t *testing.T) {
		n := newNode(t, reg, "linspace")
		require.NoError(t, n.Args()[2].SetValue(5))
		table, ok := n.Returns()[0].Value().(graph.Table)
		require.True(t, ok)
		assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, table.Index)

		require.NoError(t, n.Args()[2].SetValue(1))
		assert.Equal(t, 2, n.Args()[2].Value(), "count is clamped to two points")
	})

	t.Run("counter actions", func(t *testing.T) {
		n := newNode(t, reg, "counter")
		require.NoError(t, n.Actions()[0].Trigger())
		require.NoError(t, n.Actions()[0].Trigger())
		assert.Equal(t, 2, n.Returns()[0].Value())
		require.NoError(t, n.Actions()[1].Trigger())
		assert.Equal(t, 0, n.Returns()[0].Value())
	})
}

func TestWaveform(t *testing.T) {
	points, err := graph.NewTable([]float64{0, 0.25, 0.5, 0.75}, []string{"x"}, []float64{0, 0.25, 0.5, 0.75})
	require.NoError(t, err)

	tests := []struct {
		shape string
		want  []float64
	}{
		{Sine, []float64{0, 1, 0, -1}},
		{Square, []float64{1, 1, 1, -1}},
		{Sawtooth, []float64{0, 0.5, -1, -0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.shape, func(t *testing.T) {
			out, err := waveform(tt.shape, points, 1)
			require.NoError(t, err)
			col, ok := out.Column(tt.shape)
			require.True(t, ok)
			require.Len(t, col, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], col[i], 1e-9)
			}
		})
	}

	_, err = waveform("noise", points, 1)
	assert.Error(t, err)
}

func TestTemplates(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	ctx := context.Background()
	assert.Equal(t, []string{"arithmetic", "counter", "wave"}, DefaultTemplates.Names())

	t.Run("wave", func(t *testing.T) {
		b, ok := DefaultTemplates.Get("wave")
		require.True(t, ok)
		g, err := b.Build(ctx, Config{Registry: reg})
		require.NoError(t, err)
		assert.Equal(t, "wave", g.Title)

		wave, err := g.NodeAt(1)
		require.NoError(t, err)
		table, ok := wave.Returns()[0].Value().(graph.Table)
		require.True(t, ok)
		assert.Equal(t, 50, table.Len())
		col, _ := table.Column(Sine)
		assert.InDelta(t, math.Sin(2*math.Pi/49), col[1], 1e-9)
	})

	t.Run("arithmetic", func(t *testing.T) {
		b, _ := DefaultTemplates.Get("arithmetic")
		g, err := b.Build(ctx, Config{Registry: reg, Options: []graph.Option{graph.WithTitle("sum")}})
		require.NoError(t, err)
		assert.Equal(t, "sum", g.Title)
		assert.Len(t, g.Edges(), 3)

		a, _ := g.NodeAt(0)
		c, _ := g.NodeAt(1)
		s, _ := g.NodeAt(3)
		require.NoError(t, a.Args()[0].SetValue(2.0))
		require.NoError(t, c.Args()[0].SetValue(3.0))
		require.NoError(t, s.Args()[1].SetValue(2.0))
		assert.Equal(t, 10.0, s.Returns()[0].Value())
	})

	t.Run("counter", func(t *testing.T) {
		b, _ := DefaultTemplates.Get("counter")
		g, err := b.Build(ctx, Config{Registry: reg})
		require.NoError(t, err)
		counter, _ := g.NodeAt(0)
		next, _ := g.NodeAt(1)
		require.NoError(t, counter.Actions()[0].Trigger())
		assert.Equal(t, 2, next.Returns()[0].Value())
	})

	t.Run("errors", func(t *testing.T) {
		b, _ := DefaultTemplates.Get("counter")
		_, err := b.Build(ctx, Config{})
		assert.Error(t, err)

		_, err = b.Build(ctx, Config{Registry: graph.NewRegistry()})
		assert.ErrorIs(t, err, graph.ErrResolution)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = b.Build(cancelled, Config{Registry: reg})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTemplateRegistry(t *testing.T) {
	r := NewTemplates()
	r.Register(NewBuildFunc("x", buildWave))
	assert.Panics(t, func() { r.MustRegister(NewBuildFunc("x", buildWave)) })
	_, ok := r.Get("y")
	assert.False(t, ok)
}
