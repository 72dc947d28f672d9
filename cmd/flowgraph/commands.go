package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flowgraph/dataflow/internal/app/services"
	"github.com/flowgraph/dataflow/internal/core/graph"
	"github.com/flowgraph/dataflow/internal/infrastructure/metrics"
	"github.com/flowgraph/dataflow/pkg/prebuilt"
)

// =============================================================================
// ROOT
// =============================================================================

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "flowgraph [state]",
		Short: "Evaluate and edit dataflow graphs stored in a state file",
		Long: `Loads a graph state file, evaluates every function node once and
writes the state back atomically. The state file defaults to nodes.json and is
created when it does not exist.

Examples:
  flowgraph
  flowgraph graphs/wave.json
  flowgraph add constant add1 --state demo.json
  flowgraph connect 0 1 1 0 --state demo.json
  flowgraph set 0 0 41 --state demo.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		state := ""
		if cmd == root && len(args) == 1 {
			state = args[0]
		}
		return a.setup(state)
	}
	root.PersistentPostRunE = func(*cobra.Command, []string) error {
		if !a.metrics {
			return nil
		}
		return metrics.WritePrometheus(a.errOut)
	}
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		return a.edit(cmd, func(ws *services.Workspace) error {
			evalErr := ws.EvaluateAll()
			failed := 0
			var merr *multierror.Error
			if errors.As(evalErr, &merr) {
				failed = len(merr.Errors)
				for _, err := range merr.Errors {
					a.logger.Warn("evaluation failed", "error", err)
				}
			}
			g := ws.Graph()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d edges, %d failed\n", ws.Path(), g.Len(), len(g.Edges()), failed)
			return nil
		})
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.statePath, "state", "s", "", "state file (default from FLOWGRAPH_STATE or nodes.json)")
	flags.StringVar(&a.missing, "missing", "", "policy for unknown keys: add, skip, return or error")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error or off")
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	flags.BoolVar(&a.metrics, "metrics", false, "write engine metrics in Prometheus text format to stderr on exit")

	root.AddCommand(
		newVersionCmd(),
		newFunctionsCmd(a),
		newTemplatesCmd(),
		newInitCmd(a),
		newShowCmd(a),
		newAddCmd(a),
		newConnectCmd(a),
		newDisconnectCmd(a),
		newSetCmd(a),
		newTriggerCmd(a),
		newSnapshotCmd(a),
	)
	return root
}

// edit opens the workspace, runs fn and saves the result.
func (a *app) edit(cmd *cobra.Command, fn func(ws *services.Workspace) error) error {
	return a.with(cmd, func(ws *services.Workspace) error {
		if err := fn(ws); err != nil {
			return err
		}
		return ws.Save()
	})
}

// with opens the workspace and runs fn without saving.
func (a *app) with(cmd *cobra.Command, fn func(ws *services.Workspace) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ws, closeFn, err := a.workspace(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ws)
}

// =============================================================================
// CATALOGUE
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// no configuration is needed to print the version
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "FlowGraph %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		},
	}
}

func newFunctionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the functions nodes can be created from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, f := range a.registry.Functions() {
				fmt.Fprintf(w, "%s\t%s\n", f.Tag.Qualname, signature(f))
			}
			return w.Flush()
		},
	}
}

func signature(f *graph.Function) string {
	names := func(ps []graph.Param) string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name
		}
		return strings.Join(out, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(f.Args()), names(f.Results()))
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the graph templates init can start from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range prebuilt.DefaultTemplates.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init TEMPLATE",
		Short: "Write a new state file from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, ok := prebuilt.DefaultTemplates.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown template %q (have %s)", args[0], strings.Join(prebuilt.DefaultTemplates.Names(), ", "))
			}
			exists, err := a.stateExists()
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists; use --force to replace it", a.cfg.StatePath)
			}
			g, err := b.Build(cmd.Context(), prebuilt.Config{Registry: a.registry})
			if err != nil {
				return err
			}
			st, err := g.State()
			if err != nil {
				return err
			}
			return a.with(cmd, func(ws *services.Workspace) error {
				if _, err := ws.Graph().SetState(st, graph.MissingError); err != nil {
					return err
				}
				if err := ws.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s from template %s\n", ws.Path(), args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing state file")
	return cmd
}

func (a *app) stateExists() (bool, error) {
	return afero.Exists(a.fs, a.cfg.StatePath)
}

// =============================================================================
// EDITING
// =============================================================================

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print nodes, port values and edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.with(cmd, func(ws *services.Workspace) error {
				return printGraph(cmd.OutOrStdout(), ws.Graph())
			})
		},
	}
}

func printGraph(out io.Writer, g *graph.Graph) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "title: %s\n", g.Title)
	for ni, n := range g.Nodes() {
		status := ""
		if n.Function() != nil {
			status = " (" + n.Status().String() + ")"
		}
		fmt.Fprintf(w, "[%d] %s%s\n", ni, n.Name(), status)
		for pi, p := range n.Ports() {
			dir := ""
			if p.InputEnabled() {
				dir += "in"
			}
			if p.OutputEnabled() {
				dir += "out"
			}
			fmt.Fprintf(w, "\t%d\t%s\t%s\t%s\t%v\n", pi, p.Name(), p.Kind(), dir, p.Value())
		}
	}
	if edges := g.Edges(); len(edges) > 0 {
		fmt.Fprintln(w, "edges:")
		for _, e := range edges {
			fmt.Fprintf(w, "\t(%d, %d) -> (%d, %d)\n", e.Source.Node(), e.Source.Port(), e.Sink.Node(), e.Sink.Port())
		}
		if g.HasCycle() {
			fmt.Fprintln(w, "warning: edges form a cycle")
		}
	}
	return w.Flush()
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add FUNCTION...",
		Short: "Add function nodes to the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ws *services.Workspace) error {
				for _, name := range args {
					n, err := ws.AddFunction(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added [%d] %s\n", ws.Graph().IndexOf(n.ID()), n.Name())
				}
				return nil
			})
		},
	}
}

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect SOURCE_NODE SOURCE_PORT SINK_NODE SINK_PORT",
		Short: "Connect an output port to an input port",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := parseCoord(args[0], args[1])
			if err != nil {
				return err
			}
			sink, err := parseCoord(args[2], args[3])
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ws *services.Workspace) error {
				return ws.Connect(source, sink)
			})
		},
	}
}

func newDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect SINK_NODE SINK_PORT",
		Short: "Remove the edge into a port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := parseCoord(args[0], args[1])
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ws *services.Workspace) error {
				return ws.Disconnect(sink)
			})
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set NODE PORT VALUE",
		Short: "Set a port value and propagate it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCoord(args[0], args[1])
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ws *services.Workspace) error {
				return ws.SetValue(c, args[2])
			})
		},
	}
}

func newTriggerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger NODE PORT",
		Short: "Press a button port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCoord(args[0], args[1])
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ws *services.Workspace) error {
				return ws.Trigger(c)
			})
		},
	}
}

func parseCoord(node, port string) (graph.Coord, error) {
	n, err := strconv.Atoi(node)
	if err != nil {
		return graph.Coord{}, fmt.Errorf("node index %q: %w", node, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return graph.Coord{}, fmt.Errorf("port index %q: %w", port, err)
	}
	return graph.Coord{n, p}, nil
}
