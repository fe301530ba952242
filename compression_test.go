package researchgpt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces chunks with extracted spans", func(t *testing.T) {
		base := &fakeRetriever{name: "semantic", results: results("long chunk about attention and other things")}
		llm := &fakeLLM{handler: func(string) (string, error) {
			return "attention", nil
		}}

		r := NewCompressionRetriever(base, llm)
		got, err := r.Retrieve(ctx, "what is attention", 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "attention", got[0].Content)
		assert.Equal(t, "compression", got[0].Source)
	})

	t.Run("drops irrelevant chunks", func(t *testing.T) {
		base := &fakeRetriever{name: "semantic", results: results("about attention", "about cooking")}
		llm := &fakeLLM{handler: func(prompt string) (string, error) {
			if strings.Contains(prompt, "cooking") {
				return "NO_OUTPUT", nil
			}
			return "attention span", nil
		}}

		r := NewCompressionRetriever(base, llm)
		got, err := r.Retrieve(ctx, "what is attention", 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "attention span", got[0].Content)
	})

	t.Run("drops empty extractions", func(t *testing.T) {
		base := &fakeRetriever{name: "semantic", results: results("something")}
		llm := &fakeLLM{handler: func(string) (string, error) {
			return "   \n", nil
		}}

		r := NewCompressionRetriever(base, llm)
		got, err := r.Retrieve(ctx, "question", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("over-fetches from the base retriever", func(t *testing.T) {
		base := &fakeRetriever{name: "semantic", results: results("a", "b", "c", "d", "e", "f")}
		llm := &fakeLLM{handler: func(string) (string, error) {
			return "NO_OUTPUT", nil
		}}

		r := NewCompressionRetriever(base, llm)
		_, err := r.Retrieve(ctx, "question", 3)
		require.NoError(t, err)
		// topK*2 candidates were requested, so all six passed through
		// the llm.
		assert.Len(t, llm.prompts, 6)
	})

	t.Run("stops once topK chunks survive", func(t *testing.T) {
		base := &fakeRetriever{name: "semantic", results: results("a", "b", "c", "d")}
		llm := &fakeLLM{handler: func(prompt string) (string, error) {
			return "kept", nil
		}}

		r := NewCompressionRetriever(base, llm)
		got, err := r.Retrieve(ctx, "question", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Len(t, llm.prompts, 2)
	})

	t.Run("keeps chunk uncompressed when llm fails", func(t *testing.T) {
		base := &fakeRetriever{name: "semantic", results: results("original chunk")}
		llm := &fakeLLM{handler: func(string) (string, error) {
			return "", errors.New("llm down")
		}}

		r := NewCompressionRetriever(base, llm)
		got, err := r.Retrieve(ctx, "question", 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "original chunk", got[0].Content)
	})

	t.Run("propagates base retriever failure", func(t *testing.T) {
		base := &fakeRetriever{name: "semantic", err: errors.New("boom")}
		r := NewCompressionRetriever(base, &fakeLLM{})
		_, err := r.Retrieve(ctx, "question", 5)
		assert.Error(t, err)
	})
}
