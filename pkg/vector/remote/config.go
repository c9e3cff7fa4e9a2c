// Package remote holds what every network-backed vector store shares:
// connection settings, bounded retrying execution, batching and client-side
// rescoring.
package remote

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultBatchSize    = 1000
	DefaultMaxParallel  = 10
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
	DefaultMultiplier   = 2.0
)

// Consistency is the read-after-write guarantee requested from the backend.
type Consistency string

const (
	Strong   Consistency = "strong"
	Session  Consistency = "session"
	Bounded  Consistency = "bounded"
	Eventual Consistency = "eventual"
)

// RetryPolicy bounds exponential backoff for transient failures.
type RetryPolicy struct {
	MaxRetries   int             `toml:"max_retries"`
	InitialDelay vector.Duration `toml:"initial_delay"`
	MaxDelay     vector.Duration `toml:"max_delay"`
	Multiplier   float64         `toml:"multiplier"`
}

// Auth is either username/password or a bearer token.
type Auth struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Token    string `toml:"token"`
}

// Config is embedded by every remote backend configuration.
type Config struct {
	Endpoint      string          `toml:"endpoint"`
	Database      string          `toml:"database"`
	Timeout       vector.Duration `toml:"timeout"`
	BatchSize     int             `toml:"batch_size"`
	MaxParallel   int             `toml:"max_parallel_requests"`
	Retry         RetryPolicy     `toml:"retry"`
	Auth          Auth            `toml:"auth"`
	Consistency   Consistency     `toml:"consistency"`
	TLSSkipVerify bool            `toml:"tls_skip_verify"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig(endpoint string) Config {
	cfg := Config{Endpoint: endpoint}
	_ = cfg.Validate()
	return cfg
}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if c.Timeout.Duration <= 0 {
		c.Timeout.Duration = DefaultTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}

	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must not be negative")
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay.Duration == 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.InitialDelay.Duration <= 0 {
		c.Retry.InitialDelay.Duration = DefaultInitialDelay
	}
	if c.Retry.MaxDelay.Duration <= 0 {
		c.Retry.MaxDelay.Duration = DefaultMaxDelay
	}
	if c.Retry.MaxDelay.Duration < c.Retry.InitialDelay.Duration {
		return errors.New("retry.max_delay must not be below retry.initial_delay")
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = DefaultMultiplier
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be at least 1")
	}

	if c.Auth.Token != "" && c.Auth.Username != "" {
		return errors.New("auth: set either token or username/password, not both")
	}

	switch c.Consistency {
	case "":
		c.Consistency = Session
	case Strong, Session, Bounded, Eventual:
	default:
		return errors.Errorf("unknown consistency %q", c.Consistency)
	}
	return nil
}

// Metadata is surfaced in BackendInfo.
func (c *Config) Metadata() vector.Metadata {
	md := vector.Metadata{
		"endpoint":    vector.String(c.Endpoint),
		"batch_size":  vector.Int(int64(c.BatchSize)),
		"consistency": vector.String(string(c.Consistency)),
	}
	if c.Database != "" {
		md["database"] = vector.String(c.Database)
	}
	return md
}
