package researchgpt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnsembleRetriever(t *testing.T) {
	r := &fakeRetriever{name: "a"}

	t.Run("rejects empty retriever list", func(t *testing.T) {
		_, err := NewEnsembleRetriever(nil, nil)
		assert.Error(t, err)
	})

	t.Run("rejects mismatched weights", func(t *testing.T) {
		_, err := NewEnsembleRetriever([]Retriever{r}, []float64{0.5, 0.5})
		assert.Error(t, err)
	})

	t.Run("rejects negative weight", func(t *testing.T) {
		_, err := NewEnsembleRetriever([]Retriever{r}, []float64{-1})
		assert.Error(t, err)
	})

	t.Run("rejects all-zero weights", func(t *testing.T) {
		_, err := NewEnsembleRetriever([]Retriever{r}, []float64{0})
		assert.Error(t, err)
	})
}

func TestEnsembleRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("fuses by weighted reciprocal rank", func(t *testing.T) {
		// "shared" is ranked first by both members; "only-a" appears in
		// one list. Fused, "shared" must come out on top.
		a := &fakeRetriever{name: "a", results: results("shared", "only-a")}
		b := &fakeRetriever{name: "b", results: results("shared", "only-b")}

		e, err := NewEnsembleRetriever([]Retriever{a, b}, []float64{0.5, 0.5})
		require.NoError(t, err)

		fused, err := e.Retrieve(ctx, "query", 5)
		require.NoError(t, err)
		require.Len(t, fused, 3)
		assert.Equal(t, "shared", fused[0].Content)
		assert.Greater(t, fused[0].Score, fused[1].Score)
	})

	t.Run("weights shift the ranking", func(t *testing.T) {
		a := &fakeRetriever{name: "a", results: results("from-a")}
		b := &fakeRetriever{name: "b", results: results("from-b")}

		e, err := NewEnsembleRetriever([]Retriever{a, b}, []float64{0.9, 0.1})
		require.NoError(t, err)

		fused, err := e.Retrieve(ctx, "query", 5)
		require.NoError(t, err)
		require.Len(t, fused, 2)
		assert.Equal(t, "from-a", fused[0].Content)
	})

	t.Run("deduplicates case and whitespace variants", func(t *testing.T) {
		a := &fakeRetriever{name: "a", results: results("Same Chunk")}
		b := &fakeRetriever{name: "b", results: results("  same chunk  ")}

		e, err := NewEnsembleRetriever([]Retriever{a, b}, []float64{0.5, 0.5})
		require.NoError(t, err)

		fused, err := e.Retrieve(ctx, "query", 5)
		require.NoError(t, err)
		assert.Len(t, fused, 1)
	})

	t.Run("caps output at twice topK", func(t *testing.T) {
		a := &fakeRetriever{name: "a", results: results("1", "2", "3", "4", "5", "6")}
		b := &fakeRetriever{name: "b", results: results("7", "8", "9", "10", "11", "12")}

		e, err := NewEnsembleRetriever([]Retriever{a, b}, []float64{0.5, 0.5})
		require.NoError(t, err)

		fused, err := e.Retrieve(ctx, "query", 3)
		require.NoError(t, err)
		assert.Len(t, fused, 6)
	})

	t.Run("tolerates a failing member", func(t *testing.T) {
		a := &fakeRetriever{name: "a", err: errors.New("boom")}
		b := &fakeRetriever{name: "b", results: results("survivor")}

		e, err := NewEnsembleRetriever([]Retriever{a, b}, []float64{0.5, 0.5})
		require.NoError(t, err)

		fused, err := e.Retrieve(ctx, "query", 5)
		require.NoError(t, err)
		require.Len(t, fused, 1)
		assert.Equal(t, "survivor", fused[0].Content)
	})

	t.Run("errors when every member fails", func(t *testing.T) {
		a := &fakeRetriever{name: "a", err: errors.New("boom")}
		b := &fakeRetriever{name: "b", err: errors.New("boom")}

		e, err := NewEnsembleRetriever([]Retriever{a, b}, []float64{0.5, 0.5})
		require.NoError(t, err)

		_, err = e.Retrieve(ctx, "query", 5)
		assert.Error(t, err)
	})
}
