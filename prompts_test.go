package researchgpt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQAPrompt(t *testing.T) {
	prompt := BuildQAPrompt("what is attention?", []string{"first chunk", "second chunk"})
	assert.Contains(t, prompt, "first chunk"+contextSeparator+"second chunk")
	assert.Contains(t, prompt, "Question: what is attention?")
	assert.True(t, strings.HasPrefix(prompt, "You are a research assistant"))
}

func TestBuildCompressionPrompt(t *testing.T) {
	prompt := BuildCompressionPrompt("the question", "the excerpt")
	assert.Contains(t, prompt, "Question: the question")
	assert.Contains(t, prompt, "the excerpt")
	assert.Contains(t, prompt, "NO_OUTPUT")
}

func TestBuildSummaryQuestion(t *testing.T) {
	t.Run("without topic", func(t *testing.T) {
		q := BuildSummaryQuestion("")
		assert.Contains(t, q, "across the indexed research papers")
	})

	t.Run("with topic", func(t *testing.T) {
		q := BuildSummaryQuestion("transformer architectures")
		assert.Contains(t, q, "about transformer architectures")
	})

	t.Run("whitespace topic falls back", func(t *testing.T) {
		assert.Equal(t, BuildSummaryQuestion(""), BuildSummaryQuestion("   "))
	})
}

func TestBuildQueryExpansionPrompt(t *testing.T) {
	prompt := BuildQueryExpansionPrompt("original question")
	assert.Contains(t, prompt, "Original question: original question")
	assert.Contains(t, prompt, "numbered list")
}
