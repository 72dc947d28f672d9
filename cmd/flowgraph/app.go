package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/flowgraph/dataflow/internal/adapters/repository/memory"
	"github.com/flowgraph/dataflow/internal/adapters/repository/postgres"
	"github.com/flowgraph/dataflow/internal/adapters/repository/sqlite"
	"github.com/flowgraph/dataflow/internal/adapters/statefile"
	"github.com/flowgraph/dataflow/internal/app/services"
	"github.com/flowgraph/dataflow/internal/config"
	"github.com/flowgraph/dataflow/internal/core/graph"
	"github.com/flowgraph/dataflow/pkg/prebuilt"
)

// app carries what every command needs. Flags fill the override fields;
// setup merges them over the environment configuration.
type app struct {
	fs     afero.Fs
	errOut io.Writer

	// flag values
	envFiles  []string
	statePath string
	missing   string
	logLevel  string
	metrics   bool

	cfg      *config.Config
	logger   hclog.Logger
	registry *graph.Registry
}

func newApp() *app {
	return &app{fs: afero.NewOsFs(), errOut: os.Stderr}
}

// setup loads configuration and builds the logger and function registry.
// statePath is the positional state argument, if any.
func (a *app) setup(statePath string) error {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.missing != "" {
		cfg.Missing = a.missing
	}
	switch {
	case statePath != "":
		cfg.StatePath = statePath
	case a.statePath != "":
		cfg.StatePath = a.statePath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "flowgraph",
		Level:  cfg.Level(),
		Output: a.errOut,
	})
	if a.registry, err = prebuilt.NewRegistry(); err != nil {
		return err
	}
	return nil
}

// workspace opens the configured state file. The returned close function
// releases the snapshot store.
func (a *app) workspace(ctx context.Context) (*services.Workspace, func(), error) {
	missing, err := a.cfg.MissingPolicy()
	if err != nil {
		return nil, nil, err
	}
	opts := []services.WorkspaceOption{
		services.WithMissing(missing),
		services.WithWorkspaceLogger(a.logger),
	}
	snaps, closeSnaps, err := a.snapshots(ctx)
	if err != nil {
		return nil, nil, err
	}
	if snaps != nil {
		opts = append(opts, services.WithSnapshots(snaps))
	}

	ws := services.NewWorkspace(a.registry, statefile.New(a.fs, a.logger), opts...)
	out, err := ws.Load(a.cfg.StatePath)
	if err != nil {
		closeSnaps()
		return nil, nil, err
	}
	a.reportUnconsumed(out)
	return ws, closeSnaps, nil
}

func (a *app) reportUnconsumed(out graph.Unconsumed) {
	paths := make([]string, 0, len(out))
	for path := range out {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		a.logger.Warn("unconsumed key", "path", path)
	}
}

// snapshots opens the configured snapshot store; nil when disabled.
func (a *app) snapshots(ctx context.Context) (*services.SnapshotService, func(), error) {
	noop := func() {}
	sc := a.cfg.Snapshot
	ser, err := a.cfg.Serializer()
	if err != nil {
		return nil, noop, err
	}
	switch sc.Driver {
	case config.DriverMemory:
		saver := memory.NewSnapshotSaver(memory.Config{MaxEntries: sc.MaxEntries, Serializer: ser})
		return services.NewSnapshotService(saver, sc.Driver), noop, nil
	case config.DriverSQLite:
		saver, err := sqlite.Open(ctx, sc.DSN, ser)
		if err != nil {
			return nil, noop, err
		}
		return services.NewSnapshotService(saver, sc.Driver), func() { _ = saver.Close() }, nil
	case config.DriverPostgres:
		saver, err := postgres.Open(ctx, sc.DSN, ser)
		if err != nil {
			return nil, noop, err
		}
		return services.NewSnapshotService(saver, sc.Driver), saver.Close, nil
	default:
		return nil, noop, nil
	}
}
