// Package services holds the application layer: a workspace session that
// owns one graph, its state file and an optional snapshot store.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/flowgraph/dataflow/internal/adapters/statefile"
	"github.com/flowgraph/dataflow/internal/core/graph"
	"github.com/flowgraph/dataflow/internal/core/snapshot"
	"github.com/flowgraph/dataflow/internal/infrastructure/metrics"
)

// ErrNoSnapshots is returned by snapshot operations when the workspace has
// no snapshot store.
var ErrNoSnapshots = errors.New("snapshots are not configured")

// ErrUnknownFunction is returned by AddFunction for names the registry
// does not hold.
var ErrUnknownFunction = errors.New("unknown function")

// Workspace is an editing session over one state file.
// PRINCIPLES:
// - SRP: wires the graph to persistence, leaves graph semantics to the core
// - single-threaded like the graph it owns
type Workspace struct {
	path      string
	graph     *graph.Graph
	registry  *graph.Registry
	store     *statefile.Store
	snapshots *SnapshotService
	missing   graph.Missing
	logger    hclog.Logger
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithSnapshots enables snapshot operations.
func WithSnapshots(s *SnapshotService) WorkspaceOption {
	return func(w *Workspace) { w.snapshots = s }
}

// WithMissing sets the unknown-key policy used when loading.
func WithMissing(m graph.Missing) WorkspaceOption {
	return func(w *Workspace) { w.missing = m }
}

// WithWorkspaceLogger sets the session logger.
func WithWorkspaceLogger(l hclog.Logger) WorkspaceOption {
	return func(w *Workspace) { w.logger = l }
}

// NewWorkspace creates a session with an empty graph bound to registry.
func NewWorkspace(registry *graph.Registry, store *statefile.Store, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		path:     statefile.DefaultPath,
		registry: registry,
		store:    store,
		missing:  graph.MissingAdd,
		logger:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.graph = w.newGraph()
	return w
}

func (w *Workspace) newGraph() *graph.Graph {
	return graph.New(
		graph.WithRegistry(w.registry),
		graph.WithLogger(w.logger),
		graph.WithObserver(metrics.NewObserver(nil)),
	)
}

// Graph returns the session graph.
func (w *Workspace) Graph() *graph.Graph { return w.graph }

// Path returns the state file the session saves to.
func (w *Workspace) Path() string { return w.path }

// Registry returns the function catalogue of the session.
func (w *Workspace) Registry() *graph.Registry { return w.registry }

// Load makes path the session's state file. An existing file replaces the
// graph; a missing one leaves an empty graph that Save will create.
func (w *Workspace) Load(path string) (graph.Unconsumed, error) {
	w.path = path
	ok, err := w.store.Exists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		w.logger.Info("starting new state file", "path", path)
		w.graph.RemoveAll()
		return nil, nil
	}
	st, err := w.store.Load(path)
	if err != nil {
		return nil, err
	}
	out, err := w.graph.SetState(st, w.missing)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	metrics.SetGraphNodes(w.graph.Len())
	w.logger.Info("state loaded", "path", path, "nodes", w.graph.Len(), "edges", len(w.graph.Edges()))
	if w.graph.HasCycle() {
		w.logger.Warn("graph contains a cycle; a value set inside it propagates without end", "path", path)
	}
	return out, nil
}

// Save writes the graph to the session's state file.
func (w *Workspace) Save() error {
	st, err := w.graph.State()
	if err != nil {
		return err
	}
	if err := w.store.Save(w.path, st); err != nil {
		return err
	}
	w.logger.Info("state saved", "path", w.path, "nodes", w.graph.Len())
	return nil
}

// SaveAs makes path the session's state file, then saves.
func (w *Workspace) SaveAs(path string) error {
	w.path = path
	return w.Save()
}

// AddFunction puts a new function node for the named catalogue function
// into the graph.
func (w *Workspace) AddFunction(name string) (*graph.Node, error) {
	f, ok := w.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	n, err := graph.NewFunctionNode(f)
	if err != nil {
		return nil, err
	}
	if _, err := w.graph.AddNode(n); err != nil {
		return nil, err
	}
	metrics.SetGraphNodes(w.graph.Len())
	return n, nil
}

// Connect adds an edge between two (node, port) coordinates.
func (w *Workspace) Connect(source, sink graph.Coord) error {
	err := w.graph.AddEdge(source, sink)
	if err == nil && w.graph.HasCycle() {
		w.logger.Warn("edge closes a cycle; a value set inside it propagates without end",
			"source", source, "sink", sink)
	}
	return err
}

// Disconnect removes the edge into sink.
func (w *Workspace) Disconnect(sink graph.Coord) error {
	return w.graph.RemoveEdge(sink)
}

// SetValue parses text for the port at c and sets it, propagating the
// change through the graph.
func (w *Workspace) SetValue(c graph.Coord, text string) error {
	p, err := w.graph.Port(c)
	if err != nil {
		return err
	}
	v, err := ParseValue(p.Kind(), text)
	if err != nil {
		return err
	}
	return p.SetValue(v)
}

// Trigger fires the button at c.
func (w *Workspace) Trigger(c graph.Coord) error {
	p, err := w.graph.Port(c)
	if err != nil {
		return err
	}
	return p.Trigger()
}

// EvaluateAll runs every function node once in graph order. Failures are
// collected; every node is still evaluated.
func (w *Workspace) EvaluateAll() error {
	var result *multierror.Error
	for _, n := range w.graph.Nodes() {
		if n.Function() == nil {
			continue
		}
		if err := n.Evaluate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Snapshot stores the current graph in the snapshot store.
func (w *Workspace) Snapshot(ctx context.Context, note string, tags ...string) (*snapshot.Snapshot, error) {
	if w.snapshots == nil {
		return nil, ErrNoSnapshots
	}
	return w.snapshots.Take(ctx, w.graph, w.path, snapshot.Metadata{Source: "workspace", Note: note, Tags: tags})
}

// Snapshots lists the stored snapshots of this workspace.
func (w *Workspace) Snapshots(ctx context.Context, limit int) ([]*snapshot.Snapshot, error) {
	if w.snapshots == nil {
		return nil, ErrNoSnapshots
	}
	return w.snapshots.List(ctx, snapshot.Filter{Workspace: w.path, Limit: limit})
}

// Restore replaces the graph with a stored snapshot.
func (w *Workspace) Restore(ctx context.Context, id string) (graph.Unconsumed, error) {
	if w.snapshots == nil {
		return nil, ErrNoSnapshots
	}
	snap, out, err := w.snapshots.Restore(ctx, id, w.graph, w.missing)
	if err != nil {
		return nil, err
	}
	metrics.SetGraphNodes(w.graph.Len())
	w.logger.Info("snapshot restored", "id", snap.ID, "taken", snap.Timestamp)
	return out, nil
}

// ParseValue converts command-line text into a value for a port of kind k.
// Generic and plot ports take JSON.
func ParseValue(k graph.Kind, text string) (any, error) {
	switch k {
	case graph.KindInt:
		if v, err := strconv.Atoi(text); err == nil {
			return v, nil
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", graph.ErrTypeMismatch, text)
		}
		return v, nil
	case graph.KindFloat:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", graph.ErrTypeMismatch, text)
		}
		return v, nil
	case graph.KindBool, graph.KindToggle:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", graph.ErrTypeMismatch, text)
		}
		return v, nil
	case graph.KindStr, graph.KindCombo:
		return text, nil
	case graph.KindPlot:
		var t graph.Table
		if err := json.Unmarshal([]byte(text), &t); err != nil {
			return nil, fmt.Errorf("%w: %v", graph.ErrTypeMismatch, err)
		}
		return t, nil
	default:
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return text, nil
		}
		return v, nil
	}
}
