package server

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Zereker/vectorstore/pkg/embedding"
	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/mq"
	"github.com/Zereker/vectorstore/pkg/redis"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/cache"
	"github.com/Zereker/vectorstore/pkg/vector/memory"
	"github.com/Zereker/vectorstore/pkg/vector/opensearch"
	"github.com/Zereker/vectorstore/pkg/vector/postgres"
	"github.com/Zereker/vectorstore/pkg/vector/qdrant"
)

// Config holds all configuration values
type Config struct {
	Server    ServerConfig             `toml:"server"`
	Log       log.Config               `toml:"log"`
	Backend   BackendConfig            `toml:"backend"`
	Cache     cache.Config             `toml:"cache"`
	Redis     redis.Config             `toml:"redis"`
	Models    embedding.Config         `toml:"genkit"`
	Embedding embedding.EmbedderConfig `toml:"embedding"`
	Kafka     mq.KafkaConfig           `toml:"kafka"`
	Metrics   MetricsConfig            `toml:"metrics"`
	MCP       MCPConfig                `toml:"mcp"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Mode            string          `toml:"mode"` // http, mcp, or both
	Host            string          `toml:"host"`
	Port            int             `toml:"port"`
	ReadTimeout     vector.Duration `toml:"read_timeout"`
	WriteTimeout    vector.Duration `toml:"write_timeout"`
	ShutdownTimeout vector.Duration `toml:"shutdown_timeout"`
}

// BackendConfig selects the storage backend. Only the table named by Type is read.
type BackendConfig struct {
	Type       string            `toml:"type"` // memory, opensearch, qdrant 或 postgres
	Memory     memory.Config     `toml:"memory"`
	OpenSearch opensearch.Config `toml:"opensearch"`
	Qdrant     qdrant.Config     `toml:"qdrant"`
	Postgres   postgres.Config   `toml:"postgres"`
	// CleanupInterval is how often the memory engine checks its threshold.
	CleanupInterval vector.Duration `toml:"cleanup_interval"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// MCPConfig names the MCP server implementation.
type MCPConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Validate checks server configuration
func (s *ServerConfig) Validate() error {
	if s.Mode == "" {
		s.Mode = "http" // default mode
	}
	switch s.Mode {
	case "http", "mcp", "both":
		// valid
	default:
		return fmt.Errorf("invalid mode: %s, must be http, mcp, or both", s.Mode)
	}
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port is required and must be between 1 and 65535")
	}
	if s.ReadTimeout.Duration <= 0 {
		s.ReadTimeout.Duration = 30 * time.Second
	}
	if s.WriteTimeout.Duration <= 0 {
		s.WriteTimeout.Duration = 30 * time.Second
	}
	if s.ShutdownTimeout.Duration <= 0 {
		s.ShutdownTimeout.Duration = 10 * time.Second
	}
	return nil
}

// Validate checks the selected backend only.
func (b *BackendConfig) Validate() error {
	if b.Type == "" {
		b.Type = "memory"
	}
	if b.CleanupInterval.Duration < 0 {
		return fmt.Errorf("cleanup_interval must not be negative")
	}
	if b.CleanupInterval.Duration == 0 {
		b.CleanupInterval.Duration = time.Minute
	}

	switch b.Type {
	case "memory":
		if b.Memory.InitialCapacity == 0 {
			b.Memory.InitialCapacity = memory.DefaultConfig().InitialCapacity
		}
		return wrap("memory", b.Memory.Validate())
	case "opensearch":
		return wrap("opensearch", b.OpenSearch.Validate())
	case "qdrant":
		return wrap("qdrant", b.Qdrant.Validate())
	case "postgres":
		return wrap("postgres", b.Postgres.Validate())
	default:
		return fmt.Errorf("unknown type %q, must be memory, opensearch, qdrant or postgres", b.Type)
	}
}

func wrap(section string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	return nil
}

// Validate fills the metrics path.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Path == "" {
		m.Path = "/metrics"
	}
	return nil
}

// Validate fills the advertised MCP implementation.
func (m *MCPConfig) Validate() error {
	if m.Name == "" {
		m.Name = "vectorstore"
	}
	if m.Version == "" {
		m.Version = vector.Version
	}
	return nil
}

// Validate checks all configuration fields
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if c.Cache.Enabled && c.Cache.Type == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("cache: type redis needs [redis] enabled")
	}

	if err := c.Models.Validate(); err != nil {
		return fmt.Errorf("genkit: %w", err)
	}

	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	return c.MCP.Validate()
}

// LoadConfig reads and parses the configuration file
func LoadConfig(filename string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
