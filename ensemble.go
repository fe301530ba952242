package researchgpt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/teilomillet/researchgpt/rag"
)

// defaultRRFConstant is the k term in reciprocal rank fusion. Larger
// values flatten the difference between ranks.
const defaultRRFConstant = 60.0

// EnsembleRetriever fuses the ranked lists of several retrievers with
// weighted reciprocal rank fusion. Duplicate chunks across lists collapse
// to one entry whose fused score accumulates every list's contribution.
type EnsembleRetriever struct {
	retrievers []Retriever
	weights    []float64
	k          float64
	logger     rag.Logger
}

// NewEnsembleRetriever builds an ensemble over the given retrievers.
// weights must match retrievers in length; they are normalized to sum
// to one.
func NewEnsembleRetriever(retrievers []Retriever, weights []float64) (*EnsembleRetriever, error) {
	if len(retrievers) == 0 {
		return nil, fmt.Errorf("ensemble needs at least one retriever")
	}
	if len(weights) != len(retrievers) {
		return nil, fmt.Errorf("got %d weights for %d retrievers", len(weights), len(retrievers))
	}
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative retriever weight %f", w)
		}
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("retriever weights sum to zero")
	}
	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / sum
	}
	return &EnsembleRetriever{
		retrievers: retrievers,
		weights:    normalized,
		k:          defaultRRFConstant,
		logger:     rag.GlobalLogger,
	}, nil
}

// SetRRFConstant overrides the fusion constant.
func (e *EnsembleRetriever) SetRRFConstant(k float64) {
	if k > 0 {
		e.k = k
	}
}

func (e *EnsembleRetriever) Name() string { return "ensemble" }

// Retrieve runs every member retriever and fuses their lists. A member
// failing is logged and skipped; the ensemble errors only when every
// member fails.
func (e *EnsembleRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrieverResult, error) {
	type fused struct {
		result RetrieverResult
		score  float64
	}
	byContent := make(map[string]*fused)
	failures := 0

	for i, r := range e.retrievers {
		results, err := r.Retrieve(ctx, query, topK)
		if err != nil {
			e.logger.Warn("ensemble member failed", "retriever", r.Name(), "error", err)
			failures++
			continue
		}
		for rank, res := range results {
			contribution := e.weights[i] / (e.k + float64(rank+1))
			key := contentKey(res.Content)
			if f, ok := byContent[key]; ok {
				f.score += contribution
			} else {
				byContent[key] = &fused{result: res, score: contribution}
			}
		}
	}

	if failures == len(e.retrievers) {
		return nil, fmt.Errorf("all %d ensemble retrievers failed", failures)
	}

	out := make([]RetrieverResult, 0, len(byContent))
	for _, f := range byContent {
		f.result.Score = f.score
		out = append(out, f.result)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	limit := topK * 2
	if len(out) > limit {
		out = out[:limit]
	}
	e.logger.Debug("ensemble fusion", "query", query, "fused", len(out), "failures", failures)
	return out, nil
}

// contentKey fingerprints chunk text for deduplication across
// retrievers, ignoring case and surrounding whitespace.
func contentKey(text string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(h[:])
}
