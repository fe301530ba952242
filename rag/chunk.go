package rag

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is a span of document text prepared for embedding. It records the
// token count and the sentence range it covers in the source document.
type Chunk struct {
	// Text is the chunk content
	Text string
	// TokenSize is the number of tokens in the chunk
	TokenSize int
	// StartSentence is the index of the first sentence in the chunk
	StartSentence int
	// EndSentence is the index one past the last sentence in the chunk
	EndSentence int
}

// Chunker splits document text into chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []Chunk
}

// TokenCounter counts tokens in a string. Implementations range from
// whitespace word counting to model-accurate subword tokenization.
type TokenCounter interface {
	Count(text string) int
}

// TextChunker splits text on sentence boundaries, packing sentences into
// chunks up to ChunkSize tokens and carrying ChunkOverlap tokens of trailing
// context into the next chunk.
type TextChunker struct {
	// ChunkSize is the target chunk size in tokens
	ChunkSize int
	// ChunkOverlap is the desired token overlap between adjacent chunks
	ChunkOverlap int
	// TokenCounter counts tokens in candidate sentences
	TokenCounter TokenCounter
	// SentenceSplitter splits raw text into sentences
	SentenceSplitter func(string) []string
}

// TextChunkerOption configures a TextChunker.
type TextChunkerOption func(*TextChunker)

// ChunkSize sets the target chunk size in tokens.
func ChunkSize(size int) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.ChunkSize = size
	}
}

// ChunkOverlap sets the token overlap carried between adjacent chunks.
func ChunkOverlap(overlap int) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.ChunkOverlap = overlap
	}
}

// WithTokenCounter sets the token counting strategy.
func WithTokenCounter(counter TokenCounter) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.TokenCounter = counter
	}
}

// WithSentenceSplitter sets the sentence splitting function.
func WithSentenceSplitter(splitter func(string) []string) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.SentenceSplitter = splitter
	}
}

// NewTextChunker creates a TextChunker. Defaults: 1000 token chunks with a
// 200 token overlap, word-based token counting, and the smart sentence
// splitter.
func NewTextChunker(options ...TextChunkerOption) (*TextChunker, error) {
	tc := &TextChunker{
		ChunkSize:        1000,
		ChunkOverlap:     200,
		TokenCounter:     &WordTokenCounter{},
		SentenceSplitter: SmartSentenceSplitter,
	}
	for _, option := range options {
		option(tc)
	}
	if tc.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", tc.ChunkSize)
	}
	if tc.ChunkOverlap < 0 || tc.ChunkOverlap >= tc.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", tc.ChunkOverlap)
	}
	return tc, nil
}

// Chunk splits text into overlapping chunks. Sentences are accumulated until
// the token budget is exceeded; the new chunk then starts with enough
// trailing sentences from the previous one to cover the overlap budget.
func (tc *TextChunker) Chunk(text string) []Chunk {
	sentences := tc.SentenceSplitter(text)
	var chunks []Chunk
	var current Chunk
	currentTokens := 0

	for i, sentence := range sentences {
		sentenceTokens := tc.TokenCounter.Count(sentence)

		if currentTokens+sentenceTokens > tc.ChunkSize && currentTokens > 0 {
			chunks = append(chunks, current)

			overlapStart := max(current.StartSentence, current.EndSentence-tc.overlapSentences(sentences, current.EndSentence))
			current = Chunk{
				Text:          strings.Join(sentences[overlapStart:i+1], " "),
				StartSentence: overlapStart,
				EndSentence:   i + 1,
			}
			currentTokens = 0
			for j := overlapStart; j <= i; j++ {
				currentTokens += tc.TokenCounter.Count(sentences[j])
			}
		} else {
			if currentTokens == 0 {
				current.StartSentence = i
				current.Text = sentence
			} else {
				current.Text += " " + sentence
			}
			current.EndSentence = i + 1
			currentTokens += sentenceTokens
		}
		current.TokenSize = currentTokens
	}

	if current.TokenSize > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// overlapSentences returns how many sentences ending at endSentence are
// needed to reach the configured token overlap.
func (tc *TextChunker) overlapSentences(sentences []string, endSentence int) int {
	tokens := 0
	count := 0
	for i := endSentence - 1; i >= 0 && tokens < tc.ChunkOverlap; i-- {
		tokens += tc.TokenCounter.Count(sentences[i])
		count++
	}
	return count
}

// SmartSentenceSplitter splits text into sentences on terminal punctuation
// while keeping quoted passages intact.
func SmartSentenceSplitter(text string) []string {
	var sentences []string
	var current strings.Builder
	inQuote := false

	for _, r := range text {
		current.WriteRune(r)
		if r == '"' {
			inQuote = !inQuote
		}
		if (r == '.' || r == '!' || r == '?') && !inQuote {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// ParagraphSplitter splits text on blank lines. Useful for documents where
// sentence punctuation is unreliable, such as OCR output.
func ParagraphSplitter(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// WordTokenCounter approximates token counts by splitting on whitespace.
type WordTokenCounter struct{}

// Count returns the number of whitespace-delimited words.
func (WordTokenCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TikTokenCounter counts tokens with the tiktoken encodings used by OpenAI
// models, giving exact counts for embedding and context budgeting.
type TikTokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTikTokenCounter creates a counter for the given encoding, e.g.
// "cl100k_base" for GPT-4 family models.
func NewTikTokenCounter(encoding string) (*TikTokenCounter, error) {
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %w", err)
	}
	return &TikTokenCounter{tke: tke}, nil
}

// Count returns the exact token count under the configured encoding.
func (ttc *TikTokenCounter) Count(text string) int {
	return len(ttc.tke.Encode(text, nil, nil))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
