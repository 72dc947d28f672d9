// Package snapshot defines domain-specific errors
package snapshot

import "errors"

// Domain errors - defined once, used everywhere
var (
	// Snapshot validation errors
	ErrInvalidSnapshotID = errors.New("invalid snapshot ID")
	ErrInvalidWorkspace  = errors.New("invalid workspace")
	ErrEmptyState        = errors.New("snapshot state cannot be empty")
	ErrSnapshotNotFound  = errors.New("snapshot not found")

	// Filter validation errors
	ErrInvalidLimit     = errors.New("limit cannot be negative")
	ErrInvalidOffset    = errors.New("offset cannot be negative")
	ErrInvalidTimeRange = errors.New("invalid time range: since is after before")

	// ErrStoreFull is returned when a bounded store cannot take another snapshot.
	ErrStoreFull = errors.New("snapshot store is full")
)
