// Package memory provides an in-process snapshot store
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowgraph/dataflow/internal/core/snapshot"
	"github.com/flowgraph/dataflow/pkg/serialization"
)

// SnapshotSaver implements snapshot.Saver with a mutex-guarded map.
// Snapshots are kept serialized, so Load always returns a private copy.
// PRINCIPLES:
// - KISS: one map, one lock
// - DIP: implements snapshot.Saver
type SnapshotSaver struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl        time.Duration
	maxEntries int
	maxBytes   int64
	size       int64

	serializer *serialization.Serializer
	now        func() time.Time
}

// Config holds configuration for SnapshotSaver
type Config struct {
	TTL        time.Duration             // zero keeps snapshots forever
	MaxEntries int                       // zero means unbounded
	MaxBytes   int64                     // zero means unbounded
	Serializer *serialization.Serializer // defaults to msgpack+zstd
}

type entry struct {
	meta       snapshot.Snapshot // copy without State, used by List filters
	data       []byte
	expiresAt  time.Time
	accessedAt time.Time
}

// NewSnapshotSaver creates a new in-memory snapshot saver
func NewSnapshotSaver(config Config) *SnapshotSaver {
	if config.Serializer == nil {
		config.Serializer = serialization.DefaultSerializer()
	}
	return &SnapshotSaver{
		entries:    make(map[string]*entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		maxBytes:   config.MaxBytes,
		serializer: config.Serializer,
		now:        time.Now,
	}
}

// DefaultSnapshotSaver creates an unbounded saver with the default serializer
func DefaultSnapshotSaver() *SnapshotSaver {
	return NewSnapshotSaver(Config{})
}

// Save stores a snapshot, evicting the least recently used ones when a
// bound would be exceeded.
func (s *SnapshotSaver) Save(_ context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return snapshot.ErrInvalidSnapshotID
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}
	data, err := s.serializer.Serialize(snap)
	if err != nil {
		return fmt.Errorf("snapshot serialization failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeExpired()
	if old, ok := s.entries[snap.ID]; ok {
		s.size -= int64(len(old.data))
		delete(s.entries, snap.ID)
	}
	if err := s.makeRoom(int64(len(data))); err != nil {
		return err
	}

	now := s.now()
	meta := *snap
	meta.State = nil
	e := &entry{meta: meta, data: data, accessedAt: now}
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.entries[snap.ID] = e
	s.size += int64(len(data))
	return nil
}

// Load retrieves a snapshot by ID
func (s *SnapshotSaver) Load(_ context.Context, id string) (*snapshot.Snapshot, error) {
	if id == "" {
		return nil, snapshot.ErrInvalidSnapshotID
	}
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.expired(e) {
		s.remove(id)
		ok = false
	}
	if ok {
		e.accessedAt = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return nil, snapshot.ErrSnapshotNotFound
	}

	var snap snapshot.Snapshot
	if err := s.serializer.Deserialize(e.data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot deserialization failed: %w", err)
	}
	return &snap, nil
}

// List returns snapshots matching the filter, newest first.
func (s *SnapshotSaver) List(_ context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	s.mu.Lock()
	s.removeExpired()
	candidates := make([]*snapshot.Snapshot, 0, len(s.entries))
	data := make(map[string][]byte, len(s.entries))
	for id, e := range s.entries {
		meta := e.meta
		candidates = append(candidates, &meta)
		data[id] = e.data
	}
	s.mu.Unlock()

	matched := filter.Apply(candidates)
	results := make([]*snapshot.Snapshot, 0, len(matched))
	for _, m := range matched {
		var snap snapshot.Snapshot
		if err := s.serializer.Deserialize(data[m.ID], &snap); err != nil {
			return nil, fmt.Errorf("snapshot deserialization failed: %w", err)
		}
		results = append(results, &snap)
	}
	return results, nil
}

// Delete removes a snapshot by ID
func (s *SnapshotSaver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return snapshot.ErrSnapshotNotFound
	}
	s.remove(id)
	return nil
}

// Stats reports the saver's usage.
type Stats struct {
	Count      int   `json:"count"`
	Bytes      int64 `json:"bytes"`
	MaxEntries int   `json:"max_entries"`
	MaxBytes   int64 `json:"max_bytes"`
}

// Stats returns current usage
func (s *SnapshotSaver) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Count: len(s.entries), Bytes: s.size, MaxEntries: s.maxEntries, MaxBytes: s.maxBytes}
}

// Private helpers; callers hold s.mu.

func (s *SnapshotSaver) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

func (s *SnapshotSaver) removeExpired() {
	for id, e := range s.entries {
		if s.expired(e) {
			s.remove(id)
		}
	}
}

func (s *SnapshotSaver) remove(id string) {
	if e, ok := s.entries[id]; ok {
		s.size -= int64(len(e.data))
		delete(s.entries, id)
	}
}

// makeRoom evicts least recently used entries until one more entry of
// size bytes fits.
func (s *SnapshotSaver) makeRoom(size int64) error {
	if s.maxBytes > 0 && size > s.maxBytes {
		return fmt.Errorf("%w: snapshot of %d bytes exceeds limit of %d", snapshot.ErrStoreFull, size, s.maxBytes)
	}
	for s.full(size) {
		oldest := ""
		var at time.Time
		for id, e := range s.entries {
			if oldest == "" || e.accessedAt.Before(at) {
				oldest, at = id, e.accessedAt
			}
		}
		if oldest == "" {
			return snapshot.ErrStoreFull
		}
		s.remove(oldest)
	}
	return nil
}

func (s *SnapshotSaver) full(size int64) bool {
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return true
	}
	return s.maxBytes > 0 && s.size+size > s.maxBytes
}
