package researchgpt

import (
	"context"
	"sort"
	"strings"

	"github.com/teilomillet/researchgpt/rag"
)

// maxQueryVariations caps the total queries the multi-query retriever
// runs, original question included.
const maxQueryVariations = 4

// MultiQueryRetriever asks the LLM for alternative phrasings of the
// question, retrieves for each phrasing, and merges the results. When
// the LLM is unavailable it degrades to the base retriever alone.
type MultiQueryRetriever struct {
	base   Retriever
	llm    LLM
	logger rag.Logger
}

// NewMultiQueryRetriever wraps a base retriever with LLM query
// expansion.
func NewMultiQueryRetriever(base Retriever, llm LLM) *MultiQueryRetriever {
	return &MultiQueryRetriever{
		base:   base,
		llm:    llm,
		logger: rag.GlobalLogger,
	}
}

func (r *MultiQueryRetriever) Name() string { return "multi_query" }

func (r *MultiQueryRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrieverResult, error) {
	queries := r.expand(ctx, query)

	seen := make(map[string]struct{})
	var merged []RetrieverResult
	for _, q := range queries {
		results, err := r.base.Retrieve(ctx, q, topK)
		if err != nil {
			r.logger.Warn("multi-query sub-retrieval failed", "query", q, "error", err)
			continue
		}
		for _, res := range results {
			key := contentKey(res.Content)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			res.Source = r.Name()
			merged = append(merged, res)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// expand returns the original query plus up to three LLM-generated
// variations.
func (r *MultiQueryRetriever) expand(ctx context.Context, query string) []string {
	queries := []string{query}
	reply, err := r.llm.Generate(ctx, BuildQueryExpansionPrompt(query))
	if err != nil {
		r.logger.Warn("query expansion failed, using original query only", "error", err)
		return queries
	}
	for _, v := range ParseQueryVariations(reply) {
		if strings.EqualFold(v, query) {
			continue
		}
		queries = append(queries, v)
		if len(queries) >= maxQueryVariations {
			break
		}
	}
	r.logger.Debug("expanded query", "original", query, "total", len(queries))
	return queries
}
