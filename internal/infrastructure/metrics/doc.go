// Package metrics exposes expvar-published counters for the dataflow engine:
// propagations, function evaluations and their failures, callbacks skipped
// while loading states, and saves of states and snapshots. Observer plugs
// the counters into a graph through graph.WithObserver.
package metrics
