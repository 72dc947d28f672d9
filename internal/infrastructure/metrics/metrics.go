package metrics

import (
	"expvar"

	"github.com/flowgraph/dataflow/internal/core/graph"
)

// Engine metrics, keyed by node name or callback tag where a key applies.
var (
	propagationsTotal = new(expvar.Int)
	evaluationsTotal  = expvar.NewMap("flowgraph_evaluations_total")
	failuresTotal     = expvar.NewMap("flowgraph_evaluation_failures_total")
	callbacksSkipped  = expvar.NewMap("flowgraph_callbacks_skipped_total")
)

// Persistence metrics, keyed by target ("file", or the snapshot driver name).
var (
	savesTotal = expvar.NewMap("flowgraph_saves_total")
	saveBytes  = expvar.NewMap("flowgraph_save_size_bytes")
	graphNodes = new(expvar.Int)
)

func init() {
	expvar.Publish("flowgraph_propagations_total", propagationsTotal)
	expvar.Publish("flowgraph_graph_nodes", graphNodes)
}

// Engine helpers
func IncPropagations()               { propagationsTotal.Add(1) }
func IncEvaluations(node string)     { evaluationsTotal.Add(node, 1) }
func IncFailures(node string)        { failuresTotal.Add(node, 1) }
func IncCallbacksSkipped(tag string) { callbacksSkipped.Add(tag, 1) }
func SetGraphNodes(n int)            { graphNodes.Set(int64(n)) }

// Persistence helpers
func IncSaves(target string)                  { savesTotal.Add(target, 1) }
func SaveSizeBytes(target string, size int64) { setMapInt(saveBytes, target, size) }

// setMapInt replaces value for a key in an expvar.Map with an *expvar.Int set to v.
func setMapInt(m *expvar.Map, key string, v int64) {
	x := new(expvar.Int)
	x.Set(v)
	m.Set(key, x)
}

// mapInt reads a counter from an expvar.Map, zero when absent.
func mapInt(m *expvar.Map, key string) int64 {
	if v, ok := m.Get(key).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

// Observer feeds graph events into the counters above. Next, when set,
// receives every event afterwards.
type Observer struct {
	Next graph.Observer
}

// NewObserver returns an Observer forwarding to next (which may be nil).
func NewObserver(next graph.Observer) *Observer {
	return &Observer{Next: next}
}

// Propagated counts one notifying SetValue.
func (o *Observer) Propagated(p *graph.Port) {
	IncPropagations()
	if o.Next != nil {
		o.Next.Propagated(p)
	}
}

// Evaluated counts a function node evaluation and, on error, a failure.
func (o *Observer) Evaluated(n *graph.Node, err error) {
	IncEvaluations(n.Name())
	if err != nil {
		IncFailures(n.Name())
	}
	if o.Next != nil {
		o.Next.Evaluated(n, err)
	}
}

// CallbackSkipped counts a persisted callback that did not resolve.
func (o *Observer) CallbackSkipped(tag graph.TypeTag, err error) {
	IncCallbacksSkipped(tag.String())
	if o.Next != nil {
		o.Next.CallbackSkipped(tag, err)
	}
}

var _ graph.Observer = (*Observer)(nil)
