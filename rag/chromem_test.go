package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemDB(t *testing.T) {
	ctx := context.Background()

	newDB := func(t *testing.T) VectorDB {
		// An empty address runs chromem fully in memory.
		db, err := NewVectorDB(WithType("chromem"), WithAddress(""), WithDimension(3))
		require.NoError(t, err)
		require.NoError(t, db.Connect(ctx))
		require.NoError(t, db.CreateCollection(ctx, "papers", 3))
		return db
	}

	t.Run("has collection", func(t *testing.T) {
		db := newDB(t)
		ok, err := db.HasCollection(ctx, "papers")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = db.HasCollection(ctx, "other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("insert and search", func(t *testing.T) {
		db := newDB(t)
		require.NoError(t, db.Insert(ctx, "papers", []IndexedDocument{
			{ID: "a", Text: "alpha", Embedding: []float64{1, 0, 0}, Metadata: map[string]string{"file_name": "a.pdf"}},
			{ID: "b", Text: "beta", Embedding: []float64{0, 1, 0}},
		}))

		count, err := db.Count(ctx, "papers")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		results, err := db.Search(ctx, "papers", []float64{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].ID)
		assert.Equal(t, "a.pdf", results[0].Metadata["file_name"])
		assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	})

	t.Run("rejects missing embedding", func(t *testing.T) {
		db := newDB(t)
		err := db.Insert(ctx, "papers", []IndexedDocument{{ID: "bad", Text: "no vector"}})
		assert.Error(t, err)
	})

	t.Run("search clamps topK to document count", func(t *testing.T) {
		db := newDB(t)
		require.NoError(t, db.Insert(ctx, "papers", []IndexedDocument{
			{ID: "only", Text: "single", Embedding: []float64{1, 0, 0}},
		}))
		results, err := db.Search(ctx, "papers", []float64{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("search on empty collection", func(t *testing.T) {
		db := newDB(t)
		results, err := db.Search(ctx, "papers", []float64{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("persists to disk", func(t *testing.T) {
		dir := t.TempDir()
		db, err := NewVectorDB(WithType("chromem"), WithAddress(dir), WithDimension(3))
		require.NoError(t, err)
		require.NoError(t, db.Connect(ctx))
		require.NoError(t, db.CreateCollection(ctx, "papers", 3))
		require.NoError(t, db.Insert(ctx, "papers", []IndexedDocument{
			{ID: "a", Text: "alpha", Embedding: []float64{1, 0, 0}},
		}))
		require.NoError(t, db.Close())

		reopened, err := NewVectorDB(WithType("chromem"), WithAddress(dir), WithDimension(3))
		require.NoError(t, err)
		require.NoError(t, reopened.Connect(ctx))
		ok, err := reopened.HasCollection(ctx, "papers")
		require.NoError(t, err)
		assert.True(t, ok)

		count, err := reopened.Count(ctx, "papers")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}
