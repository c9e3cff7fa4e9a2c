// Package embedding turns text into vectors through genkit embedders.
package embedding

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector"
)

// ModelConfig describes one embedding model served by a vendor.
type ModelConfig struct {
	Name  string `toml:"name"`  // registration name, e.g. "doubao-embedding"
	Model string `toml:"model"` // vendor model identifier
	Dim   int    `toml:"dim"`
}

// Validate validates a model config
func (m *ModelConfig) Validate(index int) error {
	if m.Name == "" {
		return fmt.Errorf("models[%d].name is required", index)
	}
	if m.Model == "" {
		return fmt.Errorf("models[%d].model is required", index)
	}
	if m.Dim <= 0 {
		return fmt.Errorf("models[%d].dim is required", index)
	}
	return nil
}

// Config holds the genkit vendor configuration.
type Config struct {
	Ark ArkConfig `toml:"ark"`
}

// Validate checks genkit configuration
func (c *Config) Validate() error {
	if len(c.Ark.Models) > 0 {
		if err := c.Ark.Validate(); err != nil {
			return fmt.Errorf("ark: %w", err)
		}
	}
	return nil
}

// Enabled reports whether any embedder is configured.
func (c *Config) Enabled() bool {
	return len(c.Ark.Models) > 0
}

var g *genkit.Genkit

// Init initializes genkit with the configured vendor plugins.
func Init(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.WithMessage(err, "invalid config")
	}

	var plugins []api.Plugin
	if len(cfg.Ark.Models) > 0 {
		plugins = append(plugins, NewArkPlugin(cfg.Ark))
	}

	g = genkit.Init(ctx, genkit.WithPlugins(plugins...))
	return nil
}

// InitForTest initializes genkit with a mock plugin for testing.
// Returns the mock plugin for configuring responses.
func InitForTest(ctx context.Context, cfg MockConfig) *MockPlugin {
	mockPlugin := NewMockPlugin(cfg)
	g = genkit.Init(ctx, genkit.WithPlugins(mockPlugin))
	return mockPlugin
}

// Genkit returns the Genkit instance
func Genkit() *genkit.Genkit {
	return g
}

// Embedder turns texts into vectors, one per text in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]vector.Vector, error)
	Dimension() int
}

// EmbedderConfig selects the embedder the service uses.
type EmbedderConfig struct {
	Name      string `toml:"embedder"` // "<provider>/<model name>", e.g. "ark/doubao-embedding"
	Dimension int    `toml:"dimension"`
}

// Validate checks the embedder selection.
func (c *EmbedderConfig) Validate() error {
	if c.Name == "" {
		return nil
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must not be negative")
	}
	return nil
}

// GenkitEmbedder calls a registered genkit embedder.
type GenkitEmbedder struct {
	g    *genkit.Genkit
	name string
	dim  int
}

var _ Embedder = (*GenkitEmbedder)(nil)

// NewEmbedder looks the embedder up in gk; dim 0 skips the dimension check.
func NewEmbedder(gk *genkit.Genkit, cfg EmbedderConfig) (*GenkitEmbedder, error) {
	if gk == nil {
		return nil, errors.New("genkit is not initialized")
	}
	if genkit.LookupEmbedder(gk, cfg.Name) == nil {
		return nil, errors.Errorf("embedder not found: %s", cfg.Name)
	}
	return &GenkitEmbedder{g: gk, name: cfg.Name, dim: cfg.Dimension}, nil
}

func (e *GenkitEmbedder) Dimension() int {
	return e.dim
}

func (e *GenkitEmbedder) Embed(ctx context.Context, texts []string) ([]vector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := genkit.Embed(ctx, e.g, ai.WithEmbedderName(e.name), ai.WithTextDocs(texts...))
	if err != nil {
		return nil, errors.WithMessagef(err, "embed with %s", e.name)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, errors.Errorf("embedder %s returned %d embeddings for %d texts", e.name, len(resp.Embeddings), len(texts))
	}

	out := make([]vector.Vector, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, errors.Errorf("embedder %s returned an empty embedding", e.name)
		}
		if e.dim > 0 && len(emb.Embedding) != e.dim {
			return nil, vector.DimensionMismatch("", "", e.dim, len(emb.Embedding))
		}
		out[i] = vector.Vector(emb.Embedding)
	}
	return out, nil
}
