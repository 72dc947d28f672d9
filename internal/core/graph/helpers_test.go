package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testTag(name string) TypeTag {
	return TypeTag{Module: "flowgraph.test", Qualname: name}
}

func mustFunction(t testing.TB, name string, fn any, opts ...FunctionOption) *Function {
	t.Helper()
	f, err := NewFunction(testTag(name), fn, opts...)
	require.NoError(t, err)
	return f
}

func mustNode(t testing.TB, f *Function) *Node {
	t.Helper()
	n, err := NewFunctionNode(f)
	require.NoError(t, err)
	return n
}

// fixture bundles a registry holding the test functions.
type fixture struct {
	reg      *Registry
	constant *Function
	add1     *Function
	scale    *Function
	risky    *Function
	counter  *Function
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	fx := &fixture{reg: NewRegistry()}
	fx.constant = mustFunction(t, "constant", func(x int) int { return x }, ArgNames("x"))
	fx.add1 = mustFunction(t, "add1", func(x int) int { return x + 1 }, ArgNames("x"))
	fx.scale = mustFunction(t, "scale", func(x, factor float64) float64 { return x * factor },
		ArgNames("x", "factor"),
		ArgRange(1, Between(0, 10).WithStep(0.5)),
		ArgDefault(1, 1.0),
	)
	fx.risky = mustFunction(t, "risky", func(x int) (int, error) {
		if x < 0 {
			return 0, errors.New("negative input")
		}
		return x * 2, nil
	}, ArgNames("x"))
	fx.counter = mustFunction(t, "counter", func(count int) int { return count },
		ArgNames("count"),
		WithAction("increment", func(n *Node, _ any) (any, error) {
			arg := n.Args()[0]
			next := arg.Value().(int) + 1
			return next, arg.SetValue(next)
		}),
		WithToggle("hold", func(_ *Node, prev any) (any, error) {
			count, _ := prev.(int)
			return count + 1, nil
		}),
	)
	for _, f := range []*Function{fx.constant, fx.add1, fx.scale, fx.risky, fx.counter} {
		require.NoError(t, fx.reg.RegisterFunction(f))
	}
	return fx
}

func (fx *fixture) graph(opts ...Option) *Graph {
	return New(append([]Option{WithRegistry(fx.reg)}, opts...)...)
}

func (fx *fixture) add(t testing.TB, g *Graph, f *Function) *Node {
	t.Helper()
	n := mustNode(t, f)
	_, err := g.AddNode(n)
	require.NoError(t, err)
	return n
}

// countingObserver records engine events.
type countingObserver struct {
	propagations int
	evaluations  int
	failures     int
	skipped      []TypeTag
}

func (o *countingObserver) Propagated(*Port) { o.propagations++ }

func (o *countingObserver) Evaluated(_ *Node, err error) {
	o.evaluations++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) CallbackSkipped(tag TypeTag, _ error) {
	o.skipped = append(o.skipped, tag)
}
