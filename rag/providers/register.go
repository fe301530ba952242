// Package providers implements embedding service providers behind a common
// registry, so the pipeline can switch providers through configuration.
package providers

import (
	"context"
	"fmt"
	"sync"
)

// Embedder converts text into a vector representation.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch returns embeddings for several texts in one request where
	// the provider supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimension returns the output vector size of the configured model.
	Dimension() (int, error)
}

// EmbedderFactory builds an Embedder from provider-specific options.
type EmbedderFactory func(config map[string]interface{}) (Embedder, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]EmbedderFactory)
)

// RegisterEmbedder adds a factory under the given provider name,
// overwriting any previous registration.
func RegisterEmbedder(name string, factory EmbedderFactory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// GetEmbedderFactory looks up a registered factory by provider name.
func GetEmbedderFactory(name string) (EmbedderFactory, error) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("embedder not found: %s", name)
	}
	return factory, nil
}

// List returns the names of registered providers.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
