package metrics

import (
	"errors"
	"expvar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/dataflow/internal/core/graph"
)

type recorder struct{ events []string }

func (r *recorder) Propagated(*graph.Port)               { r.events = append(r.events, "propagated") }
func (r *recorder) Evaluated(_ *graph.Node, err error)   { r.events = append(r.events, "evaluated") }
func (r *recorder) CallbackSkipped(graph.TypeTag, error) { r.events = append(r.events, "skipped") }

func TestObserver_CountsGraphEvents(t *testing.T) {
	half, err := graph.NewFunction(graph.TypeTag{Module: "metrics.test", Qualname: "half"},
		func(x int) (int, error) {
			if x%2 != 0 {
				return 0, errors.New("odd input")
			}
			return x / 2, nil
		}, graph.ArgNames("x"))
	require.NoError(t, err)

	rec := &recorder{}
	g := graph.New(graph.WithObserver(NewObserver(rec)))
	n, err := graph.NewFunctionNode(half)
	require.NoError(t, err)
	_, err = g.AddNode(n)
	require.NoError(t, err)

	props := propagationsTotal.Value()
	evals := mapInt(evaluationsTotal, n.Name())
	fails := mapInt(failuresTotal, n.Name())

	require.NoError(t, n.Args()[0].SetValue(4))
	require.NoError(t, n.Args()[0].SetValue(3))

	assert.Equal(t, evals+2, mapInt(evaluationsTotal, n.Name()))
	assert.Equal(t, fails+1, mapInt(failuresTotal, n.Name()))
	assert.Greater(t, propagationsTotal.Value(), props)
	assert.Contains(t, rec.events, "evaluated")
	assert.Contains(t, rec.events, "propagated")
}

func TestObserver_CallbackSkipped(t *testing.T) {
	tag := graph.TypeTag{Module: "metrics.test", Qualname: "gone"}
	before := mapInt(callbacksSkipped, tag.String())

	NewObserver(nil).CallbackSkipped(tag, graph.ErrResolution)
	assert.Equal(t, before+1, mapInt(callbacksSkipped, tag.String()))
}

func TestPersistenceHelpers(t *testing.T) {
	before := mapInt(savesTotal, "file")
	IncSaves("file")
	SaveSizeBytes("file", 123)
	SetGraphNodes(4)

	assert.Equal(t, before+1, mapInt(savesTotal, "file"))
	assert.Equal(t, int64(123), mapInt(saveBytes, "file"))
	assert.Equal(t, "4", expvar.Get("flowgraph_graph_nodes").String())
	assert.NotNil(t, expvar.Get("flowgraph_propagations_total"))
}
