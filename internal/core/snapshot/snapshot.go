// Package snapshot stores whole graph states under an ID so that a session
// can go back to an earlier version of its graph.
package snapshot

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/flowgraph/dataflow/internal/core/graph"
)

// Version is written into every snapshot taken by New.
const Version = "1"

// Snapshot is a saved graph state.
// PRINCIPLES:
// - KISS: the state is kept as the same JSON document the state file holds
// - SRP: no knowledge of where it is stored
type Snapshot struct {
	ID        string    `json:"id" msgpack:"id"`
	Workspace string    `json:"workspace" msgpack:"workspace"`
	Title     string    `json:"title" msgpack:"title"`
	State     []byte    `json:"state" msgpack:"state"`
	Metadata  Metadata  `json:"metadata" msgpack:"metadata"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Version   string    `json:"version" msgpack:"version"`
}

// Metadata describes a snapshot without decoding its state.
type Metadata struct {
	Nodes     int      `json:"nodes" msgpack:"nodes"`
	Edges     int      `json:"edges" msgpack:"edges"`
	Source    string   `json:"source,omitempty" msgpack:"source,omitempty"`
	CreatedBy string   `json:"created_by,omitempty" msgpack:"created_by,omitempty"`
	Note      string   `json:"note,omitempty" msgpack:"note,omitempty"`
	Tags      []string `json:"tags,omitempty" msgpack:"tags,omitempty"`
}

// New captures the current state of g. Node and edge counts are filled in
// from the graph; the rest of meta is kept as given.
func New(g *graph.Graph, workspace string, meta Metadata) (*Snapshot, error) {
	st, err := g.State()
	if err != nil {
		return nil, fmt.Errorf("capture graph state: %w", err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode graph state: %w", err)
	}
	meta.Nodes = g.Len()
	meta.Edges = len(g.Edges())
	return &Snapshot{
		ID:        uuid.NewString(),
		Workspace: workspace,
		Title:     g.Title,
		State:     data,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
		Version:   Version,
	}, nil
}

// Restore replaces the contents of g with the snapshot's state.
func (s *Snapshot) Restore(g *graph.Graph, missing graph.Missing) (graph.Unconsumed, error) {
	var st graph.GraphState
	if err := json.Unmarshal(s.State, &st); err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %w", graph.ErrStructural, s.ID, err)
	}
	return g.SetState(st, missing)
}

// Validate ensures snapshot integrity
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return ErrInvalidSnapshotID
	}
	if s.Workspace == "" {
		return ErrInvalidWorkspace
	}
	if len(s.State) == 0 {
		return ErrEmptyState
	}
	return nil
}

// HasTags reports whether every tag in tags is on the snapshot.
func (s *Snapshot) HasTags(tags []string) bool {
	for _, t := range tags {
		if !slices.Contains(s.Metadata.Tags, t) {
			return false
		}
	}
	return true
}
