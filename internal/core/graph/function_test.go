package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFunction_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fn      any
		opts    []FunctionOption
		wantErr error
	}{
		{"not a function", 42, nil, ErrNotFunction},
		{"nil function", (func())(nil), nil, ErrNotFunction},
		{"variadic", func(xs ...int) int { return len(xs) }, nil, ErrNotFunction},
		{"too many arg names", func(x int) int { return x }, []FunctionOption{ArgNames("a", "b")}, ErrContractViolation},
		{"too many return names", func(x int) int { return x }, []FunctionOption{ReturnNames("a", "b")}, ErrContractViolation},
		{"range on string", func(s string) string { return s }, []FunctionOption{ArgRange(0, Between(0, 1))}, ErrContractViolation},
		{"range on missing arg", func(x int) int { return x }, []FunctionOption{ArgRange(3, Between(0, 1))}, ErrContractViolation},
		{"inverted range", func(x int) int { return x }, []FunctionOption{ArgRange(0, Between(5, 1))}, ErrStructural},
		{"empty choice", func(s string) string { return s }, []FunctionOption{ArgChoice(0)}, ErrNoOptions},
		{"tuple over two results", func() (int, int) { return 1, 2 }, []FunctionOption{Returns(2)}, ErrContractViolation},
		{"tuple over scalar", func() int { return 1 }, []FunctionOption{Returns(2)}, ErrContractViolation},
		{"duplicate action", func() {}, []FunctionOption{
			WithAction("go", func(*Node, any) (any, error) { return nil, nil }),
			WithAction("go", func(*Node, any) (any, error) { return nil, nil }),
		}, ErrContractViolation},
		{"nil action", func() {}, []FunctionOption{WithAction("go", nil)}, ErrContractViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFunction(testTag("bad"), tt.fn, tt.opts...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewFunction_Signature(t *testing.T) {
	f := mustFunction(t, "pair", func(a, b int) (int, string, error) { return a + b, "", nil })

	args := f.Args()
	require.Len(t, args, 2)
	assert.Equal(t, "arg0", args[0].Name)
	assert.Equal(t, "arg1", args[1].Name)

	results := f.Results()
	require.Len(t, results, 2, "the trailing error is not a return slot")
	assert.Equal(t, "return0", results[0].Name)
	assert.Equal(t, "return1", results[1].Name)
	assert.Equal(t, "pair", f.Name)

	single := mustFunction(t, "one", func() int { return 1 }, Named("One"))
	assert.Equal(t, "return", single.Results()[0].Name)
	assert.Equal(t, "One", single.Name)
}

func TestFunction_Call(t *testing.T) {
	f := mustFunction(t, "mix", func(a int, b float64, s string) (string, float64) {
		return s, float64(a) + b
	})

	out, err := f.Call(2.7, 1, "x")
	require.NoError(t, err)
	assert.Equal(t, []any{"x", 4.0}, out)

	_, err = f.Call(1)
	assert.ErrorIs(t, err, ErrContractViolation)

	_, err = f.Call(1, 2, 3)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestFunction_CallRecoversPanics(t *testing.T) {
	f := mustFunction(t, "boom", func(x int) int {
		if x > 0 {
			panic("too big")
		}
		return x
	})

	_, err := f.Call(1)
	assert.ErrorContains(t, err, "too big")
}

func TestFunction_ArgCast(t *testing.T) {
	f := mustFunction(t, "double", func(x int) int { return 2 * x },
		ArgCast(0, func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, errors.New("want a string")
			}
			return len(s), nil
		}))

	out, err := f.Call("abc")
	require.NoError(t, err)
	assert.Equal(t, []any{6}, out)

	_, err = f.Call(3)
	assert.ErrorContains(t, err, "want a string")
}

func TestFunction_ActionTag(t *testing.T) {
	f := mustFunction(t, "counter", func(x int) int { return x })
	assert.Equal(t, TypeTag{Module: "flowgraph.test", Qualname: "counter.increment"}, f.ActionTag("increment"))
}

func TestNewFunctionNode_SynthesizesPorts(t *testing.T) {
	fx := newFixture(t)

	t.Run("scale", func(t *testing.T) {
		n := mustNode(t, fx.scale)
		args, returns, actions := n.Counts()
		assert.Equal(t, [3]int{2, 1, 0}, [3]int{args, returns, actions})
		assert.Equal(t, FunctionNodeTag, n.Tag())
		assert.Same(t, fx.scale, n.Function())

		x, factor, out := n.Ports()[0], n.Ports()[1], n.Ports()[2]
		assert.Equal(t, KindFloat, x.Kind())
		assert.True(t, x.InputEnabled())
		assert.Equal(t, KindFloat, factor.Kind())
		assert.Equal(t, 1.0, factor.Value())
		assert.Equal(t, 1, factor.Decimals())
		assert.Equal(t, KindFloat, out.Kind())
		assert.True(t, out.OutputEnabled())
		assert.True(t, out.ReadOnly())
		assert.Equal(t, StatusOK, n.Status())
	})

	t.Run("counter", func(t *testing.T) {
		n := mustNode(t, fx.counter)
		args, returns, actions := n.Counts()
		assert.Equal(t, [3]int{1, 1, 2}, [3]int{args, returns, actions})

		acts := n.Actions()
		require.Len(t, acts, 2)
		assert.Equal(t, KindButton, acts[0].Kind())
		assert.Equal(t, "increment", acts[0].Name())
		assert.Equal(t, KindToggle, acts[1].Kind())
		require.Len(t, acts[0].Callbacks(), 1)
		assert.Equal(t, fx.counter.ActionTag("increment"), acts[0].Callbacks()[0].Tag)
		assert.Same(t, n, acts[0].Callbacks()[0].Self)
	})

	t.Run("kinds", func(t *testing.T) {
		f := mustFunction(t, "kinds", func(s string, b bool, tbl Table, any_ []int, wave string) int { return 0 },
			ArgChoice(4, "sine", "square"))
		n := mustNode(t, f)
		kinds := []Kind{}
		for _, p := range n.Args() {
			kinds = append(kinds, p.Kind())
		}
		assert.Equal(t, []Kind{KindStr, KindBool, KindPlot, KindGeneric, KindCombo}, kinds)
		assert.Equal(t, 1, n.Args()[3].Lines())
		assert.Equal(t, "sine", n.Args()[4].Value())
	})

	t.Run("int range", func(t *testing.T) {
		f := mustFunction(t, "ranged", func(x int) int { return x }, ArgRange(0, Between(1, 9)))
		n := mustNode(t, f)
		assert.Equal(t, KindInt, n.Args()[0].Kind())
		assert.Equal(t, 1, n.Args()[0].Value())
		assert.Equal(t, 1, n.Returns()[0].Value())
	})
}

func TestNewFunctionNode_Nil(t *testing.T) {
	_, err := NewFunctionNode(nil)
	assert.ErrorIs(t, err, ErrNotFunction)
}

func TestFunctionNode_CascadingRecompute(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	a := fx.add(t, g, fx.constant)
	b := fx.add(t, g, fx.add1)

	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{1, 0}))

	require.NoError(t, a.Args()[0].SetValue(5))
	assert.Equal(t, 5, a.Returns()[0].Value())
	assert.Equal(t, 6, b.Returns()[0].Value())

	require.NoError(t, a.Args()[0].SetValue(10))
	assert.Equal(t, 11, b.Returns()[0].Value())
	assert.True(t, b.Args()[0].ReadOnly())
}

func TestFunctionNode_FailureIsolation(t *testing.T) {
	fx := newFixture(t)
	obs := &countingObserver{}
	g := fx.graph(WithObserver(obs))
	src := fx.add(t, g, fx.constant)
	risky := fx.add(t, g, fx.risky)
	sibling := fx.add(t, g, fx.add1)
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{1, 0}))
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{2, 0}))

	require.NoError(t, src.Args()[0].SetValue(3))
	assert.Equal(t, 6, risky.Returns()[0].Value())
	assert.Equal(t, 4, sibling.Returns()[0].Value())

	before := obs.failures
	err := src.Args()[0].SetValue(-1)
	require.NoError(t, err, "a failing node does not fail the upstream SetValue")

	assert.Equal(t, StatusErrored, risky.Status())
	assert.ErrorIs(t, risky.Err(), ErrEvaluation)
	assert.ErrorContains(t, risky.Err(), "negative input")
	var evalErr *EvaluationError
	require.ErrorAs(t, risky.Err(), &evalErr)
	assert.Equal(t, "risky", evalErr.Node)
	assert.Equal(t, 6, risky.Returns()[0].Value(), "return ports keep their last good value")

	assert.Equal(t, StatusOK, sibling.Status())
	assert.Equal(t, 0, sibling.Returns()[0].Value())
	assert.Equal(t, before+1, obs.failures)

	require.NoError(t, src.Args()[0].SetValue(2))
	assert.Equal(t, StatusOK, risky.Status())
	assert.NoError(t, risky.Err())
	assert.Equal(t, 4, risky.Returns()[0].Value())
}

func TestFunctionNode_PanicMarksErrored(t *testing.T) {
	f := mustFunction(t, "fragile", func(x int) int {
		if x == 13 {
			panic("unlucky")
		}
		return x
	})
	n := mustNode(t, f)

	require.NoError(t, n.Args()[0].SetValue(13))
	assert.Equal(t, StatusErrored, n.Status())
	assert.ErrorContains(t, n.Err(), "unlucky")
	assert.ErrorIs(t, n.Evaluate(), ErrEvaluation)
}

func TestFunctionNode_TupleReturns(t *testing.T) {
	f := mustFunction(t, "split", func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i * 10
		}
		return out
	}, Returns(2), ArgDefault(0, 2), ReturnNames("lo", "hi"))
	n := mustNode(t, f)

	assert.Equal(t, StatusOK, n.Status())
	assert.Equal(t, "lo", n.Returns()[0].Name())
	assert.Equal(t, 0, n.Returns()[0].Value())
	assert.Equal(t, 10, n.Returns()[1].Value())

	require.NoError(t, n.Args()[0].SetValue(3))
	assert.Equal(t, StatusErrored, n.Status())
	assert.ErrorIs(t, n.Err(), ErrReturnCount)
	assert.ErrorIs(t, n.Err(), ErrContractViolation)
}

func TestFunctionNode_MultipleResults(t *testing.T) {
	f := mustFunction(t, "divmod", func(a, b int) (int, int, error) {
		if b == 0 {
			return 0, 0, errors.New("division by zero")
		}
		return a / b, a % b, nil
	}, ArgNames("a", "b"), ReturnNames("quotient", "remainder"))
	n := mustNode(t, f)
	assert.Equal(t, StatusErrored, n.Status(), "0/0 fails on creation")

	require.NoError(t, n.Args()[1].SetValue(3))
	require.NoError(t, n.Args()[0].SetValue(7))
	assert.Equal(t, 2, n.Returns()[0].Value())
	assert.Equal(t, 1, n.Returns()[1].Value())
	assert.Equal(t, StatusOK, n.Status())
}

func TestFunctionNode_NoOutput(t *testing.T) {
	f := mustFunction(t, "gate", func(x int) (int, error) {
		if x%2 == 1 {
			return 0, ErrNoOutput
		}
		return x, nil
	})
	n := mustNode(t, f)

	require.NoError(t, n.Args()[0].SetValue(4))
	assert.Equal(t, 4, n.Returns()[0].Value())

	require.NoError(t, n.Args()[0].SetValue(5))
	assert.Equal(t, 4, n.Returns()[0].Value())
	assert.Equal(t, StatusOK, n.Status())
}

func TestFunctionNode_GenericReturn(t *testing.T) {
	f := mustFunction(t, "liar", func(x int) any {
		if x > 0 {
			return "not a number"
		}
		return 1.5
	})
	n := mustNode(t, f)
	require.NoError(t, n.Returns()[0].SetValueSilently(0.0))

	require.NoError(t, n.Args()[0].SetValue(1))
	// generic return ports accept anything
	assert.Equal(t, "not a number", n.Returns()[0].Value())
	assert.Equal(t, StatusOK, n.Status())
}

func TestFunctionNode_Actions(t *testing.T) {
	fx := newFixture(t)
	n := mustNode(t, fx.counter)
	increment, hold := n.Actions()[0], n.Actions()[1]

	require.NoError(t, increment.Trigger())
	require.NoError(t, increment.Trigger())
	assert.Equal(t, 2, n.Args()[0].Value())
	assert.Equal(t, 2, n.Returns()[0].Value())

	require.NoError(t, hold.Trigger())
	require.NoError(t, hold.Trigger())
	assert.False(t, hold.Checked())
	assert.Equal(t, 2, hold.Callbacks()[0].Result())
}

func TestFunctionNode_RemovePort(t *testing.T) {
	fx := newFixture(t)
	n := mustNode(t, fx.add1)

	err := n.RemovePort(n.Ports()[0])
	assert.ErrorIs(t, err, ErrContractViolation)

	extra := NewPort(KindStr, "note")
	require.NoError(t, n.AddPort(extra))
	assert.ErrorIs(t, n.AddPort(extra), ErrPortOwned)
	require.NoError(t, n.RemovePort(extra))
	assert.Nil(t, extra.Node())
	assert.ErrorIs(t, n.RemovePort(extra), ErrPortNotFound)
}

func TestFunctionNode_RebuildDropsEdges(t *testing.T) {
	fx := newFixture(t)
	g := fx.graph()
	a := fx.add(t, g, fx.constant)
	b := fx.add(t, g, fx.add1)
	require.NoError(t, g.AddEdge(Coord{0, 1}, Coord{1, 0}))
	require.NoError(t, a.Args()[0].SetValue(4))
	oldArg := b.Args()[0]

	require.NoError(t, b.Rebuild())
	assert.NotSame(t, oldArg, b.Args()[0])
	assert.Nil(t, b.Args()[0].Source())
	assert.Empty(t, g.Edges())
	assert.Equal(t, 1, b.Returns()[0].Value())

	require.NoError(t, a.Args()[0].SetValue(8))
	assert.Equal(t, 1, b.Returns()[0].Value())
}

func TestNode_RebuildPlainNode(t *testing.T) {
	n, err := NewNode("plain", NewPort(KindInt, "x"))
	require.NoError(t, err)
	assert.ErrorIs(t, n.Rebuild(), ErrContractViolation)
	assert.NoError(t, n.Evaluate())
}
