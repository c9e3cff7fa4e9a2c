package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/vectorstore/pkg/vector"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
[server]
port = 8080
`))
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Server.Mode)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, "memory", cfg.Backend.Type)
	assert.Equal(t, 1000, cfg.Backend.Memory.InitialCapacity)
	assert.Equal(t, time.Minute, cfg.Backend.CleanupInterval.Duration)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "vectorstore", cfg.MCP.Name)
	assert.Equal(t, vector.Version, cfg.MCP.Version)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadConfig_Backends(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
[server]
mode = "both"
port = 9090
read_timeout = "5s"

[backend]
type = "qdrant"

[backend.qdrant]
endpoint = "qdrant:6334"
consistency = "strong"
batch_size = 256

[backend.qdrant.retry]
max_retries = 5

[cache]
enabled = true
max_entries = 50
ttl = "1m"

[metrics]
enabled = true
`))
	require.NoError(t, err)

	assert.Equal(t, "both", cfg.Server.Mode)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, "qdrant:6334", cfg.Backend.Qdrant.Endpoint)
	assert.Equal(t, 256, cfg.Backend.Qdrant.BatchSize)
	assert.Equal(t, 5, cfg.Backend.Qdrant.Retry.MaxRetries)
	assert.Equal(t, "lru", cfg.Cache.Type)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing port", `[server]
mode = "http"`},
		{"bad mode", `[server]
mode = "grpc"
port = 1`},
		{"unknown backend", `[server]
port = 1
[backend]
type = "milvus"`},
		{"postgres without database", `[server]
port = 1
[backend]
type = "postgres"
[backend.postgres]
endpoint = "db:5432"`},
		{"redis cache without redis", `[server]
port = 1
[cache]
enabled = true
type = "redis"`},
		{"kafka without brokers", `[server]
port = 1
[kafka]
enabled = true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNewServer_Memory(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
[server]
port = 8080

[cache]
enabled = true

[backend.memory]
memory_threshold_mb = 1
`))
	require.NoError(t, err)

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	defer srv.Shutdown()

	require.NotNil(t, srv.engine)
	assert.Equal(t, "memory", srv.service.BackendInfo().Name)
	assert.NotNil(t, srv.service.Stats().Cache)
}
