// Package config loads CLI configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"

	"github.com/flowgraph/dataflow/internal/core/graph"
	"github.com/flowgraph/dataflow/pkg/serialization"
	"github.com/flowgraph/dataflow/pkg/validation"
)

// Environment variable prefix shared by every setting
const envPrefix = "FLOWGRAPH_"

// Snapshot store drivers
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the flowgraph CLI
type Config struct {
	LogLevel  string         `json:"log_level" validate:"required,loglevel"`
	StatePath string         `json:"state_path" validate:"required"`
	Missing   string         `json:"missing" validate:"oneof=add skip return error"`
	Snapshot  SnapshotConfig `json:"snapshot"`
}

// SnapshotConfig selects and configures the snapshot store
type SnapshotConfig struct {
	Driver      string `json:"driver" validate:"oneof=none memory sqlite postgres"`
	DSN         string `json:"dsn" validate:"required_if=Driver sqlite,required_if=Driver postgres"`
	Compression string `json:"compression" validate:"oneof=none gzip zstd"`
	MaxEntries  int    `json:"max_entries" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		StatePath: "nodes.json",
		Missing:   string(graph.MissingAdd),
		Snapshot: SnapshotConfig{
			Driver:      DriverNone,
			Compression: string(serialization.CompressionZstd),
		},
	}
}

// Load reads the given .env files (".env" when none are given; missing
// files are ignored), then overlays FLOWGRAPH_* variables on the defaults.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.StatePath = getEnvWithDefault("STATE", cfg.StatePath)
	cfg.Missing = getEnvWithDefault("MISSING", cfg.Missing)
	cfg.Snapshot.Driver = getEnvWithDefault("SNAPSHOT_DRIVER", cfg.Snapshot.Driver)
	cfg.Snapshot.DSN = getEnvWithDefault("SNAPSHOT_DSN", cfg.Snapshot.DSN)
	cfg.Snapshot.Compression = getEnvWithDefault("COMPRESSION", cfg.Snapshot.Compression)
	maxEntries, err := getEnvAsInt("SNAPSHOT_MAX_ENTRIES", cfg.Snapshot.MaxEntries)
	if err != nil {
		return nil, err
	}
	cfg.Snapshot.MaxEntries = maxEntries

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	return validation.Struct(c)
}

// Level maps LogLevel onto an hclog level
func (c *Config) Level() hclog.Level {
	return hclog.LevelFromString(c.LogLevel)
}

// MissingPolicy returns the parsed unknown-key policy
func (c *Config) MissingPolicy() (graph.Missing, error) {
	return graph.ParseMissing(c.Missing)
}

// Serializer builds the snapshot serializer for the configured compression
func (c *Config) Serializer() (*serialization.Serializer, error) {
	compression, err := serialization.ParseCompression(c.Snapshot.Compression)
	if err != nil {
		return nil, err
	}
	return serialization.NewSerializer(serialization.Config{Compression: compression}), nil
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(envPrefix + key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return value, nil
}
