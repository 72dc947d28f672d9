package flowgraph

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/flowgraph/dataflow/internal/adapters/repository/memory"
	"github.com/flowgraph/dataflow/internal/adapters/statefile"
	"github.com/flowgraph/dataflow/internal/app/services"
	coregraph "github.com/flowgraph/dataflow/internal/core/graph"
	"github.com/flowgraph/dataflow/internal/core/snapshot"
	"github.com/flowgraph/dataflow/pkg/prebuilt"
)

// Re-export core graph types for convenience
type (
	Graph      = coregraph.Graph
	Node       = coregraph.Node
	Port       = coregraph.Port
	Function   = coregraph.Function
	Registry   = coregraph.Registry
	Coord      = coregraph.Coord
	Edge       = coregraph.Edge
	Table      = coregraph.Table
	TypeTag    = coregraph.TypeTag
	Missing    = coregraph.Missing
	Unconsumed = coregraph.Unconsumed
	Workspace  = services.Workspace
	Snapshot   = snapshot.Snapshot
)

// Unknown-key policies for loading states
const (
	MissingAdd    = coregraph.MissingAdd
	MissingSkip   = coregraph.MissingSkip
	MissingReturn = coregraph.MissingReturn
	MissingError  = coregraph.MissingError
)

// Constructors re-exported from the core
var (
	NewGraph        = coregraph.New
	NewRegistry     = coregraph.NewRegistry
	NewFunction     = coregraph.NewFunction
	NewFunctionNode = coregraph.NewFunctionNode
)

// Runtime opens state files as workspaces. The default runtime resolves
// functions through the prebuilt catalogue and keeps snapshots in memory.
type Runtime struct {
	registry  *coregraph.Registry
	store     *statefile.Store
	snapshots *services.SnapshotService
	logger    hclog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithFs replaces the filesystem state files are read from.
func WithFs(fsys afero.Fs) RuntimeOption {
	return func(rt *Runtime) { rt.store = statefile.New(fsys, rt.logger) }
}

// WithFunctions registers extra functions next to the catalogue.
func WithFunctions(fns ...*coregraph.Function) RuntimeOption {
	return func(rt *Runtime) {
		for _, f := range fns {
			if err := rt.registry.RegisterFunction(f); err != nil {
				rt.logger.Warn("function not registered", "function", f.Tag.String(), "error", err)
			}
		}
	}
}

// NewRuntime constructs a runtime with the prebuilt catalogue, the OS
// filesystem and an in-memory snapshot store.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	reg, err := prebuilt.NewRegistry()
	if err != nil {
		return nil, err
	}
	logger := hclog.NewNullLogger()
	rt := &Runtime{
		registry:  reg,
		store:     statefile.NewOS(logger),
		snapshots: services.NewSnapshotService(memory.DefaultSnapshotSaver(), "memory"),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

// Registry returns the function registry shared by every workspace.
func (rt *Runtime) Registry() *coregraph.Registry { return rt.registry }

// Open loads path into a new workspace. A missing file yields an empty
// graph that is created on the first save.
func (rt *Runtime) Open(path string, missing coregraph.Missing) (*services.Workspace, coregraph.Unconsumed, error) {
	ws := services.NewWorkspace(rt.registry, rt.store,
		services.WithSnapshots(rt.snapshots),
		services.WithMissing(missing),
		services.WithWorkspaceLogger(rt.logger),
	)
	out, err := ws.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return ws, out, nil
}

// Template builds one of the prebuilt templates against the runtime registry.
func (rt *Runtime) Template(ctx context.Context, name string) (*coregraph.Graph, error) {
	b, ok := prebuilt.DefaultTemplates.Get(name)
	if !ok {
		return nil, &coregraph.ResolutionError{Kind: "template", Tag: coregraph.TypeTag{Module: prebuilt.Module, Qualname: name}}
	}
	return b.Build(ctx, prebuilt.Config{Registry: rt.registry})
}
