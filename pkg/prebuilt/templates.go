package prebuilt

import (
	"context"
	"fmt"

	"github.com/flowgraph/dataflow/internal/core/graph"
)

func init() {
	DefaultTemplates.MustRegister(NewBuildFunc("wave", buildWave))
	DefaultTemplates.MustRegister(NewBuildFunc("counter", buildCounter))
	DefaultTemplates.MustRegister(NewBuildFunc("arithmetic", buildArithmetic))
}

// layout is a template in data form: catalogue function names in node
// order and the edges between their ports.
type layout struct {
	title string
	nodes []string
	edges []graph.Edge
}

func (l layout) build(ctx context.Context, cfg Config) (*graph.Graph, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("template %s: no registry", l.title)
	}
	opts := append([]graph.Option{graph.WithRegistry(cfg.Registry), graph.WithTitle(l.title)}, cfg.Options...)
	g := graph.New(opts...)
	for _, name := range l.nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := cfg.Registry.Function(Tag(name))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", l.title, err)
		}
		n, err := graph.NewFunctionNode(f)
		if err != nil {
			return nil, err
		}
		if _, err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range l.edges {
		if err := g.AddEdge(e.Source, e.Sink); err != nil {
			return nil, fmt.Errorf("template %s: %w", l.title, err)
		}
	}
	return g, nil
}

// linspace.points -> waveform.points
func buildWave(ctx context.Context, cfg Config) (*graph.Graph, error) {
	return layout{
		title: "wave",
		nodes: []string{"linspace", "waveform"},
		edges: []graph.Edge{{Source: graph.Coord{0, 3}, Sink: graph.Coord{1, 1}}},
	}.build(ctx, cfg)
}

// counter.count -> add1.x
func buildCounter(ctx context.Context, cfg Config) (*graph.Graph, error) {
	return layout{
		title: "counter",
		nodes: []string{"counter", "add1"},
		edges: []graph.Edge{{Source: graph.Coord{0, 1}, Sink: graph.Coord{1, 0}}},
	}.build(ctx, cfg)
}

// two constants summed, the sum scaled
func buildArithmetic(ctx context.Context, cfg Config) (*graph.Graph, error) {
	return layout{
		title: "arithmetic",
		nodes: []string{"constant", "constant", "add", "scale"},
		edges: []graph.Edge{
			{Source: graph.Coord{0, 1}, Sink: graph.Coord{2, 0}},
			{Source: graph.Coord{1, 1}, Sink: graph.Coord{2, 1}},
			{Source: graph.Coord{2, 2}, Sink: graph.Coord{3, 0}},
		},
	}.build(ctx, cfg)
}
