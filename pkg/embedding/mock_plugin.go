package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockConfig holds mock plugin configuration
type MockConfig struct {
	Provider string // default "mock"
	Models   []ModelConfig
}

// MockPlugin is a test-only genkit plugin with configurable embedders.
// Without a configured response an embedder returns a byte histogram of
// the text folded into Dim buckets, so equal texts embed equally.
type MockPlugin struct {
	mu sync.RWMutex

	provider  string
	responses map[string]func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
	models    []ModelConfig
}

// NewMockPlugin creates a new mock plugin for testing
func NewMockPlugin(cfg MockConfig) *MockPlugin {
	provider := cfg.Provider
	if provider == "" {
		provider = "mock"
	}
	return &MockPlugin{
		provider:  provider,
		models:    cfg.Models,
		responses: make(map[string]func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)),
	}
}

func (p *MockPlugin) Name() string {
	return "mock"
}

// Init implements api.Plugin interface - registers all mock embedders
func (p *MockPlugin) Init(ctx context.Context) []api.Action {
	actions := make([]api.Action, 0, len(p.models))
	for _, m := range p.models {
		actions = append(actions, p.defineEmbedder(m).(api.Action))
	}
	return actions
}

func histogram(text string, dim int) []float32 {
	v := make([]float32, dim)
	for i := 0; i < len(text); i++ {
		v[int(text[i])%dim]++
	}
	return v
}

func (p *MockPlugin) defineEmbedder(m ModelConfig) ai.Embedder {
	name := fmt.Sprintf("%s/%s", p.provider, m.Name)
	return ai.NewEmbedder(name, &ai.EmbedderOptions{
		Label:      fmt.Sprintf("Mock %s", m.Name),
		Dimensions: m.Dim,
	}, func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
		p.mu.RLock()
		fn, ok := p.responses[m.Name]
		p.mu.RUnlock()

		if ok && fn != nil {
			return fn(ctx, req)
		}

		embeddings := make([]*ai.Embedding, len(req.Input))
		for i, doc := range req.Input {
			text := ""
			for _, part := range doc.Content {
				text += part.Text
			}
			embeddings[i] = &ai.Embedding{Embedding: histogram(text, m.Dim)}
		}
		return &ai.EmbedResponse{Embeddings: embeddings}, nil
	})
}

// SetEmbedderResponse sets a custom response function for an embedder
func (p *MockPlugin) SetEmbedderResponse(embedderName string, fn func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[embedderName] = fn
}

// SetEmbedderVectorResponse makes an embedder return vec for every input.
func (p *MockPlugin) SetEmbedderVectorResponse(embedderName string, vec []float32) {
	p.SetEmbedderResponse(embedderName, func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
		embeddings := make([]*ai.Embedding, len(req.Input))
		for i := range req.Input {
			embeddings[i] = &ai.Embedding{Embedding: vec}
		}
		return &ai.EmbedResponse{Embeddings: embeddings}, nil
	})
}

// DefaultMockConfig returns a default mock config for testing
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Models: []ModelConfig{
			{Name: "test-embedding", Model: "test-embedding", Dim: 8},
		},
	}
}
