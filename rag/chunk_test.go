package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextChunker(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tc, err := NewTextChunker()
		require.NoError(t, err)
		assert.Equal(t, 1000, tc.ChunkSize)
		assert.Equal(t, 200, tc.ChunkOverlap)
	})

	t.Run("rejects zero chunk size", func(t *testing.T) {
		_, err := NewTextChunker(ChunkSize(0))
		assert.Error(t, err)
	})

	t.Run("rejects overlap at least chunk size", func(t *testing.T) {
		_, err := NewTextChunker(ChunkSize(100), ChunkOverlap(100))
		assert.Error(t, err)
	})
}

func TestTextChunkerChunk(t *testing.T) {
	tc, err := NewTextChunker(ChunkSize(10), ChunkOverlap(3))
	require.NoError(t, err)

	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, tc.Chunk(""))
	})

	t.Run("short text fits one chunk", func(t *testing.T) {
		chunks := tc.Chunk("One short sentence.")
		require.Len(t, chunks, 1)
		assert.Equal(t, "One short sentence.", chunks[0].Text)
	})

	t.Run("long text splits with overlap", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i < 20; i++ {
			sb.WriteString("This sentence has exactly six words. ")
		}
		chunks := tc.Chunk(sb.String())
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, c.TokenSize, 10+6, "chunk may exceed budget by at most one sentence")
			assert.NotEmpty(t, c.Text)
		}
		// Consecutive chunks share sentences.
		for i := 1; i < len(chunks); i++ {
			assert.Less(t, chunks[i].StartSentence, chunks[i-1].EndSentence)
		}
	})
}

func TestSmartSentenceSplitter(t *testing.T) {
	t.Run("splits on terminators", func(t *testing.T) {
		sentences := SmartSentenceSplitter("First one. Second one! Third one?")
		require.Len(t, sentences, 3)
		assert.Equal(t, "First one.", sentences[0])
		assert.Equal(t, "Third one?", sentences[2])
	})

	t.Run("does not split inside quotes", func(t *testing.T) {
		sentences := SmartSentenceSplitter(`He said "wait. stop." and sat. Done.`)
		require.Len(t, sentences, 2)
		assert.Equal(t, `He said "wait. stop." and sat.`, sentences[0])
		assert.Equal(t, "Done.", sentences[1])
	})

	t.Run("keeps trailing fragment", func(t *testing.T) {
		sentences := SmartSentenceSplitter("Complete sentence. trailing fragment")
		require.Len(t, sentences, 2)
		assert.Equal(t, "trailing fragment", sentences[1])
	})
}

func TestParagraphSplitter(t *testing.T) {
	parts := ParagraphSplitter("first paragraph\n\nsecond paragraph\n\n\n\nthird")
	require.Len(t, parts, 3)
	assert.Equal(t, "second paragraph", parts[1])
}

func TestWordTokenCounter(t *testing.T) {
	assert.Equal(t, 0, WordTokenCounter{}.Count(""))
	assert.Equal(t, 4, WordTokenCounter{}.Count("four words in here"))
}
