package services

import (
	"context"
	"fmt"

	"github.com/flowgraph/dataflow/internal/core/graph"
	"github.com/flowgraph/dataflow/internal/core/snapshot"
	"github.com/flowgraph/dataflow/internal/infrastructure/metrics"
)

// SnapshotService takes and restores graph snapshots
// PRINCIPLES:
// - SRP: snapshot bookkeeping only; the graph and the saver do the work
// - DIP: depends on the snapshot.Saver abstraction
type SnapshotService struct {
	saver  snapshot.Saver
	driver string
}

// NewSnapshotService creates a snapshot service over saver. driver names
// the backend in metrics.
func NewSnapshotService(saver snapshot.Saver, driver string) *SnapshotService {
	return &SnapshotService{saver: saver, driver: driver}
}

// Take captures g under workspace and persists it
func (s *SnapshotService) Take(ctx context.Context, g *graph.Graph, workspace string, meta snapshot.Metadata) (*snapshot.Snapshot, error) {
	if meta.CreatedBy == "" {
		meta.CreatedBy = "flowgraph"
	}
	snap, err := snapshot.New(g, workspace, meta)
	if err != nil {
		return nil, err
	}
	if err := s.saver.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	metrics.IncSaves("snapshot:" + s.driver)
	metrics.SaveSizeBytes("snapshot:"+s.driver, int64(len(snap.State)))
	return snap, nil
}

// Restore replaces the contents of g with the snapshot stored under id
func (s *SnapshotService) Restore(ctx context.Context, id string, g *graph.Graph, missing graph.Missing) (*snapshot.Snapshot, graph.Unconsumed, error) {
	snap, err := s.saver.Load(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	out, err := snap.Restore(g, missing)
	if err != nil {
		return nil, nil, err
	}
	return snap, out, nil
}

// List returns snapshots matching filter, newest first
func (s *SnapshotService) List(ctx context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	return s.saver.List(ctx, filter)
}

// Delete removes the snapshot stored under id
func (s *SnapshotService) Delete(ctx context.Context, id string) error {
	return s.saver.Delete(ctx, id)
}

// Prune deletes all but the newest keep snapshots of workspace and
// reports how many were removed.
func (s *SnapshotService) Prune(ctx context.Context, workspace string, keep int) (int, error) {
	if keep < 0 {
		return 0, snapshot.ErrInvalidLimit
	}
	old, err := s.saver.List(ctx, snapshot.Filter{Workspace: workspace, Offset: keep})
	if err != nil {
		return 0, err
	}
	for i, snap := range old {
		if err := s.saver.Delete(ctx, snap.ID); err != nil {
			return i, fmt.Errorf("failed to delete snapshot %s: %w", snap.ID, err)
		}
	}
	return len(old), nil
}
