package researchgpt

import (
	"context"
	"strings"
)

// fakeLLM routes prompts to a handler and records every prompt it saw.
type fakeLLM struct {
	handler func(prompt string) (string, error)
	prompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.handler == nil {
		return "ok", nil
	}
	return f.handler(prompt)
}

// fakeRetriever returns a fixed result list.
type fakeRetriever struct {
	name    string
	results []RetrieverResult
	err     error
	calls   []string
}

func (f *fakeRetriever) Name() string { return f.name }

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrieverResult, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > topK {
		return f.results[:topK], nil
	}
	return f.results, nil
}

// fakeEmbedder produces deterministic three-dimensional embeddings from
// keyword presence, so related texts land near each other.
type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() (int, error) { return 3, nil }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	lower := strings.ToLower(text)
	vec := []float64{0.05, 0.05, 0.05}
	if strings.Contains(lower, "attention") {
		vec[0] = 1
	}
	if strings.Contains(lower, "convolution") {
		vec[1] = 1
	}
	if strings.Contains(lower, "reinforcement") {
		vec[2] = 1
	}
	return vec, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func results(contents ...string) []RetrieverResult {
	out := make([]RetrieverResult, len(contents))
	for i, c := range contents {
		out[i] = RetrieverResult{Content: c, Score: 1 - float64(i)*0.1}
	}
	return out
}
