package researchgpt

import (
	"context"
	"strings"

	"github.com/teilomillet/researchgpt/rag"
)

// noOutputMarker is the model's reply when an excerpt holds nothing
// relevant to the question.
const noOutputMarker = "NO_OUTPUT"

// CompressionRetriever over-fetches from a base retriever, then has the
// LLM extract only the spans of each chunk relevant to the question.
// Chunks compressed down to nothing are dropped. When the LLM is
// unavailable it degrades to the uncompressed base results.
type CompressionRetriever struct {
	base   Retriever
	llm    LLM
	logger rag.Logger
}

// NewCompressionRetriever wraps a base retriever with LLM contextual
// compression.
func NewCompressionRetriever(base Retriever, llm LLM) *CompressionRetriever {
	return &CompressionRetriever{
		base:   base,
		llm:    llm,
		logger: rag.GlobalLogger,
	}
}

func (r *CompressionRetriever) Name() string { return "compression" }

func (r *CompressionRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrieverResult, error) {
	// Fetch extra candidates so compression has material to discard.
	candidates, err := r.base.Retrieve(ctx, query, topK*2)
	if err != nil {
		return nil, err
	}

	compressed := make([]RetrieverResult, 0, len(candidates))
	for _, c := range candidates {
		extract, err := r.llm.Generate(ctx, BuildCompressionPrompt(query, c.Content))
		if err != nil {
			r.logger.Warn("compression failed, keeping chunk uncompressed", "error", err)
			c.Source = r.Name()
			compressed = append(compressed, c)
			continue
		}
		extract = strings.TrimSpace(extract)
		if extract == "" || strings.EqualFold(extract, noOutputMarker) {
			continue
		}
		c.Content = extract
		c.Source = r.Name()
		compressed = append(compressed, c)
		if len(compressed) >= topK {
			break
		}
	}
	r.logger.Debug("contextual compression", "candidates", len(candidates), "kept", len(compressed))
	return compressed, nil
}
