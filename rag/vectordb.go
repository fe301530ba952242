package rag

import (
	"fmt"
	"time"

	"context"
)

// IndexedDocument is the unit stored in a vector collection: chunk text,
// its embedding, and string-valued metadata.
type IndexedDocument struct {
	ID        string
	Text      string
	Embedding []float64
	Metadata  map[string]string
}

// SearchResult is one nearest-neighbor hit. Score is cosine similarity, so
// higher is closer and values are comparable across store implementations.
type SearchResult struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]string
}

// VectorDB abstracts the vector stores the pipeline can index into. All
// implementations score by cosine similarity.
type VectorDB interface {
	Connect(ctx context.Context) error
	Close() error
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dimension int) error
	DropCollection(ctx context.Context, name string) error
	Insert(ctx context.Context, collection string, docs []IndexedDocument) error
	Search(ctx context.Context, collection string, vector []float64, topK int) ([]SearchResult, error)
	Count(ctx context.Context, collection string) (int64, error)
}

// VectorDBConfig selects and configures a vector store implementation.
type VectorDBConfig struct {
	// Type is one of "chromem", "milvus", "memory".
	Type string
	// Address is the connection address for milvus, or the on-disk path
	// for chromem. Empty for chromem means an in-memory instance.
	Address string
	// Dimension is the embedding dimension used when creating collections.
	Dimension int
	// Timeout bounds store operations where the client supports it.
	Timeout time.Duration
}

// VectorDBOption configures a VectorDBConfig.
type VectorDBOption func(*VectorDBConfig)

// WithType selects the store implementation.
func WithType(dbType string) VectorDBOption {
	return func(c *VectorDBConfig) {
		c.Type = dbType
	}
}

// WithAddress sets the store address or path.
func WithAddress(address string) VectorDBOption {
	return func(c *VectorDBConfig) {
		c.Address = address
	}
}

// WithDimension sets the embedding dimension for new collections.
func WithDimension(dimension int) VectorDBOption {
	return func(c *VectorDBConfig) {
		c.Dimension = dimension
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(timeout time.Duration) VectorDBOption {
	return func(c *VectorDBConfig) {
		c.Timeout = timeout
	}
}

// NewVectorDB creates a vector store for the configured type.
func NewVectorDB(opts ...VectorDBOption) (VectorDB, error) {
	cfg := &VectorDBConfig{
		Type:      "chromem",
		Dimension: 1536,
		Timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch cfg.Type {
	case "chromem":
		return newChromemDB(cfg)
	case "milvus":
		return newMilvusDB(cfg)
	case "memory":
		return newMemoryDB(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
}
