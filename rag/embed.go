package rag

import (
	"context"
	"fmt"

	"github.com/teilomillet/researchgpt/rag/providers"
)

// EmbedderConfig selects and configures an embedding provider.
type EmbedderConfig struct {
	Provider string
	Options  map[string]interface{}
}

// EmbedderOption configures the EmbedderConfig.
type EmbedderOption func(*EmbedderConfig)

// SetProvider selects the embedding provider by registry name.
func SetProvider(provider string) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Provider = provider
	}
}

// SetModel selects the embedding model.
func SetModel(model string) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Options["model"] = model
	}
}

// SetAPIKey sets the provider API key.
func SetAPIKey(apiKey string) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Options["api_key"] = apiKey
	}
}

// SetOption sets a provider-specific option.
func SetOption(key string, value interface{}) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Options[key] = value
	}
}

// NewEmbedder creates an Embedder from the registered provider factories.
func NewEmbedder(opts ...EmbedderOption) (providers.Embedder, error) {
	config := &EmbedderConfig{
		Options: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.Provider == "" {
		return nil, fmt.Errorf("provider must be specified")
	}
	factory, err := providers.GetEmbedderFactory(config.Provider)
	if err != nil {
		return nil, err
	}
	return factory(config.Options)
}

// EmbeddedChunk is a chunk paired with its embedding and indexing metadata.
type EmbeddedChunk struct {
	Text      string                 `json:"text"`
	Embedding []float64              `json:"embedding"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// EmbeddingService embeds chunks in provider-sized batches.
type EmbeddingService struct {
	embedder  providers.Embedder
	batchSize int
	logger    Logger
}

// NewEmbeddingService wraps an Embedder. Chunks are embedded in batches of
// 100 by default.
func NewEmbeddingService(embedder providers.Embedder) *EmbeddingService {
	return &EmbeddingService{
		embedder:  embedder,
		batchSize: 100,
		logger:    GlobalLogger,
	}
}

// SetBatchSize overrides the embedding batch size.
func (s *EmbeddingService) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Dimension reports the embedding dimension of the underlying provider.
func (s *EmbeddingService) Dimension() (int, error) {
	return s.embedder.Dimension()
}

// Embed returns the embedding for a single text, typically a query.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float64, error) {
	return s.embedder.Embed(ctx, text)
}

// EmbedChunks embeds all chunks, attaching token size and chunk position
// metadata to each result.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []Chunk) ([]EmbeddedChunk, error) {
	embedded := make([]EmbeddedChunk, 0, len(chunks))

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("error embedding chunks %d-%d: %w", start, end-1, err)
		}

		for i, c := range batch {
			embedded = append(embedded, EmbeddedChunk{
				Text:      c.Text,
				Embedding: vectors[i],
				Metadata: map[string]interface{}{
					"token_size":     c.TokenSize,
					"start_sentence": c.StartSentence,
					"end_sentence":   c.EndSentence,
					"chunk_index":    start + i,
				},
			})
		}
		s.logger.Debug("embedded chunk batch", "from", start, "to", end-1, "total", len(chunks))
	}

	return embedded, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
