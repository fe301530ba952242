package researchgpt

import (
	"context"
	"fmt"

	"github.com/teilomillet/researchgpt/rag"
)

// RetrieverResult is a scored piece of context returned by a retriever.
type RetrieverResult struct {
	Content  string
	Score    float64
	Metadata map[string]string
	// Source names the retriever that produced the result.
	Source string
}

// Retriever finds relevant chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrieverResult, error)
	Name() string
}

// SemanticRetriever embeds the query and searches the vector store by
// cosine similarity. Results below minScore are dropped.
type SemanticRetriever struct {
	embedder   *rag.EmbeddingService
	db         rag.VectorDB
	collection string
	minScore   float64
	logger     rag.Logger
}

// NewSemanticRetriever wires an embedding service and a vector store
// into a retriever over the given collection.
func NewSemanticRetriever(embedder *rag.EmbeddingService, db rag.VectorDB, collection string, minScore float64) *SemanticRetriever {
	return &SemanticRetriever{
		embedder:   embedder,
		db:         db,
		collection: collection,
		minScore:   minScore,
		logger:     rag.GlobalLogger,
	}
}

func (r *SemanticRetriever) Name() string { return "semantic" }

func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrieverResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := r.db.Search(ctx, r.collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	results := make([]RetrieverResult, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.minScore {
			continue
		}
		results = append(results, RetrieverResult{
			Content:  h.Text,
			Score:    h.Score,
			Metadata: h.Metadata,
			Source:   r.Name(),
		})
	}
	r.logger.Debug("semantic retrieval", "query", query, "hits", len(hits), "kept", len(results))
	return results, nil
}
