// Package flowgraph is the public façade over the dataflow engine. It
// re-exports the core graph types and exposes a Runtime that opens a state
// file as a workspace backed by the prebuilt function catalogue and an
// in-memory snapshot store.
package flowgraph
