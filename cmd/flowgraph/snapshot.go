package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowgraph/dataflow/internal/app/services"
)

// =============================================================================
// SNAPSHOTS
// =============================================================================

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list and restore graph snapshots",
		Long: `Snapshots keep whole graph states in the store selected by
FLOWGRAPH_SNAPSHOT_DRIVER (memory, sqlite or postgres) and FLOWGRAPH_SNAPSHOT_DSN.

Examples:
  FLOWGRAPH_SNAPSHOT_DRIVER=sqlite FLOWGRAPH_SNAPSHOT_DSN=snapshots.db flowgraph snapshot save --note "before tuning"
  flowgraph snapshot list --limit 5
  flowgraph snapshot restore 0b6f...`,
	}
	cmd.AddCommand(
		newSnapshotSaveCmd(a),
		newSnapshotListCmd(a),
		newSnapshotRestoreCmd(a),
		newSnapshotPruneCmd(a),
	)
	return cmd
}

func newSnapshotSaveCmd(a *app) *cobra.Command {
	var (
		note string
		tags []string
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Store the current graph as a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.with(cmd, func(ws *services.Workspace) error {
				snap, err := ws.Snapshot(cmd.Context(), note, tags...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "free text stored with the snapshot")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tags stored with the snapshot")
	return cmd
}

func newSnapshotListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots of the state file, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.with(cmd, func(ws *services.Workspace) error {
				snaps, err := ws.Snapshots(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, s := range snaps {
					fmt.Fprintf(w, "%s\t%s\t%d nodes\t%d edges\t%s\t%s\n",
						s.ID, s.Timestamp.Format(time.RFC3339), s.Metadata.Nodes, s.Metadata.Edges,
						strings.Join(s.Metadata.Tags, ","), s.Metadata.Note)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of snapshots to list (0 lists all)")
	return cmd
}

func newSnapshotRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID",
		Short: "Replace the graph with a snapshot and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ws *services.Workspace) error {
				out, err := ws.Restore(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				a.reportUnconsumed(out)
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s into %s\n", args[0], ws.Path())
				return nil
			})
		},
	}
}

func newSnapshotPruneCmd(a *app) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots of the state file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.snapshots(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			if svc == nil {
				return services.ErrNoSnapshots
			}
			removed, err := svc.Prune(cmd.Context(), a.cfg.StatePath, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshots\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "number of snapshots to keep")
	return cmd
}
