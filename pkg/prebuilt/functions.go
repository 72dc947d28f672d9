package prebuilt

import (
	"errors"
	"fmt"
	"math"

	"github.com/flowgraph/dataflow/internal/core/graph"
)

// Module is the tag module of every catalogue function.
const Module = "flowgraph.prebuilt"

// Waveform shapes accepted by the waveform function.
const (
	Sine     = "sine"
	Square   = "square"
	Sawtooth = "sawtooth"
)

// ErrDivideByZero is returned by divmod for a zero divisor.
var ErrDivideByZero = errors.New("divide by zero")

// Tag returns the tag of the catalogue function called name.
func Tag(name string) graph.TypeTag {
	return graph.TypeTag{Module: Module, Qualname: name}
}

type spec struct {
	name string
	fn   any
	opts []graph.FunctionOption
}

var catalogue = []spec{
	{"constant", func(value float64) float64 { return value },
		[]graph.FunctionOption{graph.ArgNames("value"), graph.ReturnNames("value")}},
	{"add1", func(x int) int { return x + 1 },
		[]graph.FunctionOption{graph.ArgNames("x")}},
	{"add", func(a, b float64) float64 { return a + b },
		[]graph.FunctionOption{graph.ArgNames("a", "b"), graph.ReturnNames("sum")}},
	{"scale", func(x, factor float64) float64 { return x * factor },
		[]graph.FunctionOption{
			graph.ArgNames("x", "factor"),
			graph.ArgRange(1, graph.Between(0, 10).WithStep(0.1)),
			graph.ArgDefault(1, 1.0),
		}},
	{"divmod", divmod,
		[]graph.FunctionOption{graph.ArgNames("a", "b"), graph.ReturnNames("quotient", "remainder"), graph.ArgDefault(1, 1)}},
	{"concat", func(a, b, sep string) string { return a + sep + b },
		[]graph.FunctionOption{graph.ArgNames("a", "b", "sep"), graph.ReturnNames("text")}},
	{"gate", gate,
		[]graph.FunctionOption{graph.ArgNames("open", "value")}},
	{"linspace", linspace,
		[]graph.FunctionOption{
			graph.ArgNames("start", "stop", "count"),
			graph.ArgRange(2, graph.Between(2, 10000).WithStep(1)),
			graph.ArgDefault(1, 1.0),
			graph.ArgDefault(2, 50),
			graph.ReturnNames("points"),
		}},
	{"waveform", waveform,
		[]graph.FunctionOption{
			graph.ArgNames("shape", "points", "frequency"),
			graph.ArgChoice(0, Sine, Square, Sawtooth),
			graph.ArgRange(2, graph.Between(0.1, 100).WithStep(0.1)),
			graph.ArgDefault(2, 1.0),
			graph.ReturnNames("wave"),
		}},
	{"counter", func(count int) int { return count },
		[]graph.FunctionOption{
			graph.ArgNames("count"),
			graph.WithAction("increment", increment),
			graph.WithAction("reset", reset),
		}},
}

// Functions builds the catalogue. Each call returns new Function values.
func Functions() ([]*graph.Function, error) {
	fns := make([]*graph.Function, 0, len(catalogue))
	for _, s := range catalogue {
		f, err := graph.NewFunction(Tag(s.name), s.fn, s.opts...)
		if err != nil {
			return nil, fmt.Errorf("prebuilt %s: %w", s.name, err)
		}
		fns = append(fns, f)
	}
	return fns, nil
}

// Register adds the catalogue to r. Functions already registered under a
// catalogue tag are left alone.
func Register(r *graph.Registry) error {
	fns, err := Functions()
	if err != nil {
		return err
	}
	for _, f := range fns {
		if _, err := r.Function(f.Tag); err == nil {
			continue
		}
		if err := r.RegisterFunction(f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a graph registry holding the catalogue.
func NewRegistry() (*graph.Registry, error) {
	r := graph.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

func divmod(a, b int) (int, int, error) {
	if b == 0 {
		return 0, 0, ErrDivideByZero
	}
	return a / b, a % b, nil
}

// gate forwards value while open and stops propagation otherwise.
func gate(open bool, value float64) (float64, error) {
	if !open {
		return 0, graph.ErrNoOutput
	}
	return value, nil
}

func linspace(start, stop float64, count int) (graph.Table, error) {
	if count < 2 {
		return graph.Table{}, fmt.Errorf("linspace needs at least 2 points, got %d", count)
	}
	points := make([]float64, count)
	for i := range points {
		points[i] = start + (stop-start)*float64(i)/float64(count-1)
	}
	return graph.NewTable(points, []string{"x"}, points)
}

func waveform(shape string, points graph.Table, frequency float64) (graph.Table, error) {
	var f func(float64) float64
	switch shape {
	case Sine:
		f = func(x float64) float64 { return math.Sin(2 * math.Pi * frequency * x) }
	case Square:
		f = func(x float64) float64 {
			if math.Sin(2*math.Pi*frequency*x) < 0 {
				return -1
			}
			return 1
		}
	case Sawtooth:
		f = func(x float64) float64 {
			t := frequency * x
			return 2 * (t - math.Floor(t+0.5))
		}
	default:
		return graph.Table{}, fmt.Errorf("unknown waveform %q", shape)
	}
	values := make([]float64, points.Len())
	for i, x := range points.Index {
		values[i] = f(x)
	}
	return graph.NewTable(points.Index, []string{shape}, values)
}

func increment(n *graph.Node, _ any) (any, error) {
	arg := n.Args()[0]
	count, _ := arg.Value().(int)
	return count + 1, arg.SetValue(count + 1)
}

func reset(n *graph.Node, _ any) (any, error) {
	return 0, n.Args()[0].SetValue(0)
}
