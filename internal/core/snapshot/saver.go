package snapshot

import (
	"context"
	"slices"
	"time"
)

// Saver persists snapshots.
// PRINCIPLES:
// - ISP: four methods, nothing backend specific
// - DIP: sessions depend on this interface, not on a database
type Saver interface {
	// Save persists a snapshot, replacing any with the same ID
	Save(ctx context.Context, s *Snapshot) error

	// Load retrieves a snapshot by ID
	Load(ctx context.Context, id string) (*Snapshot, error)

	// List returns snapshots matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*Snapshot, error)

	// Delete removes a snapshot by ID
	Delete(ctx context.Context, id string) error
}

// Filter for snapshot queries
type Filter struct {
	Workspace string     `json:"workspace,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Before    *time.Time `json:"before,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// Validate ensures filter parameters are valid
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	if f.Offset < 0 {
		return ErrInvalidOffset
	}
	if f.Since != nil && f.Before != nil && f.Since.After(*f.Before) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Match reports whether s passes every criterion of the filter except the
// paging ones.
func (f *Filter) Match(s *Snapshot) bool {
	if f.Workspace != "" && s.Workspace != f.Workspace {
		return false
	}
	if f.Since != nil && !s.Timestamp.After(*f.Since) {
		return false
	}
	if f.Before != nil && !s.Timestamp.Before(*f.Before) {
		return false
	}
	return s.HasTags(f.Tags)
}

// Apply filters, sorts newest first and pages snaps in memory.
func (f *Filter) Apply(snaps []*Snapshot) []*Snapshot {
	var out []*Snapshot
	for _, s := range snaps {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	SortNewestFirst(out)
	if f.Offset >= len(out) {
		return nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// SortNewestFirst orders snapshots by descending timestamp, then by ID.
func SortNewestFirst(snaps []*Snapshot) {
	slices.SortStableFunc(snaps, func(a, b *Snapshot) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
