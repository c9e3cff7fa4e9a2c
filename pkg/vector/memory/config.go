package memory

import "fmt"

// Config tunes the in-memory engine.
type Config struct {
	// InitialCapacity pre-sizes each index's maps.
	InitialCapacity int `toml:"initial_capacity"`
	// MaxDocumentsPerIndex caps every index; 0 means unlimited.
	// An index may lower it with the "max_documents" option.
	MaxDocumentsPerIndex int `toml:"max_documents_per_index"`
	// MemoryThresholdMB triggers Cleanup and fails HealthCheck at twice the value; 0 disables.
	MemoryThresholdMB int `toml:"memory_threshold_mb"`
}

// DefaultConfig mirrors the engine defaults.
func DefaultConfig() Config {
	return Config{InitialCapacity: 1000}
}

// Validate checks memory engine configuration
func (c *Config) Validate() error {
	if c.InitialCapacity < 0 {
		return fmt.Errorf("initial_capacity must not be negative")
	}
	if c.MaxDocumentsPerIndex < 0 {
		return fmt.Errorf("max_documents_per_index must not be negative")
	}
	if c.MemoryThresholdMB < 0 {
		return fmt.Errorf("memory_threshold_mb must not be negative")
	}
	return nil
}

// indexOptions are the per-index tuning options understood by this engine.
type indexOptions struct {
	MaxDocuments int `mapstructure:"max_documents"`
}
