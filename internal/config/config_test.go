package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/dataflow/internal/core/graph"
	"github.com/flowgraph/dataflow/pkg/validation"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LOG_LEVEL", "STATE", "MISSING", "SNAPSHOT_DRIVER", "SNAPSHOT_DSN", "COMPRESSION", "SNAPSHOT_MAX_ENTRIES"} {
		t.Setenv(envPrefix+key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, hclog.Info, cfg.Level())

	policy, err := cfg.MissingPolicy()
	require.NoError(t, err)
	assert.Equal(t, graph.MissingAdd, policy)

	ser, err := cfg.Serializer()
	require.NoError(t, err)
	assert.Equal(t, "msgpack+zstd", ser.Name())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLOWGRAPH_LOG_LEVEL", "debug")
	t.Setenv("FLOWGRAPH_SNAPSHOT_DRIVER", "sqlite")
	t.Setenv("FLOWGRAPH_SNAPSHOT_DSN", "file:snaps.db")
	t.Setenv("FLOWGRAPH_COMPRESSION", "gzip")
	t.Setenv("FLOWGRAPH_SNAPSHOT_MAX_ENTRIES", "20")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, hclog.Debug, cfg.Level())
	assert.Equal(t, SnapshotConfig{Driver: DriverSQLite, DSN: "file:snaps.db", Compression: "gzip", MaxEntries: 20}, cfg.Snapshot)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FLOWGRAPH_STATE=graphs/main.json\nFLOWGRAPH_MISSING=skip\n"), 0o600))
	// godotenv does not override variables that are already set
	require.NoError(t, os.Unsetenv("FLOWGRAPH_STATE"))
	require.NoError(t, os.Unsetenv("FLOWGRAPH_MISSING"))
	t.Cleanup(func() {
		_ = os.Unsetenv("FLOWGRAPH_STATE")
		_ = os.Unsetenv("FLOWGRAPH_MISSING")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "graphs/main.json", cfg.StatePath)
	assert.Equal(t, "skip", cfg.Missing)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"log level", "FLOWGRAPH_LOG_LEVEL", "loud"},
		{"driver", "FLOWGRAPH_SNAPSHOT_DRIVER", "mongo"},
		{"dsn required", "FLOWGRAPH_SNAPSHOT_DRIVER", "postgres"},
		{"compression", "FLOWGRAPH_COMPRESSION", "lz4"},
		{"missing policy", "FLOWGRAPH_MISSING", "ignore"},
		{"max entries", "FLOWGRAPH_SNAPSHOT_MAX_ENTRIES", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
			require.Error(t, err)
			var verrs validation.ValidationErrors
			assert.ErrorAs(t, err, &verrs)
		})
	}

	clearEnv(t)
	t.Setenv("FLOWGRAPH_SNAPSHOT_MAX_ENTRIES", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.ErrorContains(t, err, "FLOWGRAPH_SNAPSHOT_MAX_ENTRIES")
}
