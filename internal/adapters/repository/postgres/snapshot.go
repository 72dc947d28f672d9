// Package postgres stores snapshots in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowgraph/dataflow/internal/core/snapshot"
	"github.com/flowgraph/dataflow/pkg/serialization"
)

const columns = "id, workspace, title, state, metadata, timestamp, version"

// ErrNoPool is returned when the saver was built without a connection pool
var ErrNoPool = errors.New("postgres: no connection pool")

// SnapshotSaver implements snapshot.Saver for PostgreSQL
type SnapshotSaver struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	tableName  string
}

// NewSnapshotSaver creates a new PostgreSQL snapshot saver
func NewSnapshotSaver(pool *pgxpool.Pool, serializer *serialization.Serializer) *SnapshotSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &SnapshotSaver{
		pool:       pool,
		serializer: serializer,
		tableName:  "snapshots",
	}
}

// Open connects to dsn and prepares the snapshot table
func Open(ctx context.Context, dsn string, serializer *serialization.Serializer) (*SnapshotSaver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := NewSnapshotSaver(pool, serializer)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Save stores a snapshot, replacing any row with the same ID
func (s *SnapshotSaver) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return snapshot.ErrInvalidSnapshotID
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}
	if s.pool == nil {
		return ErrNoPool
	}

	data, err := s.serializer.Serialize(snap.State)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot state: %w", err)
	}
	metadataJSON, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}
	tags := snap.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			workspace = EXCLUDED.workspace,
			title = EXCLUDED.title,
			state = EXCLUDED.state,
			metadata = EXCLUDED.metadata,
			timestamp = EXCLUDED.timestamp,
			version = EXCLUDED.version,
			tags = EXCLUDED.tags
	`, s.tableName, columns)

	_, err = s.pool.Exec(ctx, query,
		snap.ID, snap.Workspace, snap.Title, data, metadataJSON, snap.Timestamp, snap.Version, tags)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID
func (s *SnapshotSaver) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if id == "" {
		return nil, snapshot.ErrInvalidSnapshotID
	}
	if s.pool == nil {
		return nil, ErrNoPool
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", columns, s.tableName)
	snap, err := s.scan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, snapshot.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// List retrieves snapshots matching the filter, newest first
func (s *SnapshotSaver) List(ctx context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}
	if s.pool == nil {
		return nil, ErrNoPool
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*snapshot.Snapshot
	for rows.Next() {
		snap, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}

// Delete removes a snapshot by ID
func (s *SnapshotSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return snapshot.ErrInvalidSnapshotID
	}
	if s.pool == nil {
		return ErrNoPool
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return snapshot.ErrSnapshotNotFound
	}
	return nil
}

// CreateTables creates the snapshot table and its indexes
func (s *SnapshotSaver) CreateTables(ctx context.Context) error {
	if s.pool == nil {
		return ErrNoPool
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(255) PRIMARY KEY,
			workspace TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			state BYTEA NOT NULL,
			metadata JSONB,
			timestamp TIMESTAMPTZ NOT NULL,
			version VARCHAR(50) NOT NULL DEFAULT '1',
			tags TEXT[] NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_workspace ON %[1]s (workspace);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s (timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_tags ON %[1]s USING GIN (tags);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *SnapshotSaver) scan(row pgx.Row) (*snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	var data []byte
	var metadataJSON []byte

	if err := row.Scan(&snap.ID, &snap.Workspace, &snap.Title, &data, &metadataJSON, &snap.Timestamp, &snap.Version); err != nil {
		return nil, err
	}
	snap.Timestamp = snap.Timestamp.UTC()

	if err := s.serializer.Deserialize(data, &snap.State); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot state: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &snap.Metadata); err != nil {
			return nil, fmt.Errorf("failed to deserialize metadata: %w", err)
		}
	}
	return &snap, nil
}

// buildListQuery constructs the SQL query for listing snapshots
func (s *SnapshotSaver) buildListQuery(filter snapshot.Filter) (string, []any) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1", columns, s.tableName)
	args := make([]any, 0)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Workspace != "" {
		query += " AND workspace = " + next(filter.Workspace)
	}
	if filter.Since != nil {
		query += " AND timestamp > " + next(*filter.Since)
	}
	if filter.Before != nil {
		query += " AND timestamp < " + next(*filter.Before)
	}
	if len(filter.Tags) > 0 {
		query += " AND tags @> " + next(filter.Tags)
	}

	query += " ORDER BY timestamp DESC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT " + next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + next(filter.Offset)
	}
	return query, args
}

// Close closes the connection pool
func (s *SnapshotSaver) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
