package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// BM25Parameters tunes BM25 scoring.
type BM25Parameters struct {
	// K1 controls term frequency saturation, typically 1.2-2.0
	K1 float64
	// B controls document length normalization, typically 0.75
	B float64
}

// DefaultBM25Parameters returns the usual BM25 defaults.
func DefaultBM25Parameters() BM25Parameters {
	return BM25Parameters{K1: 1.5, B: 0.75}
}

// BM25Index is the keyword-matching index the ensemble superseded as the
// primary retriever. It remains available as an optional sparse retriever
// and for corpora where embeddings are unavailable.
type BM25Index struct {
	mu           sync.RWMutex
	docs         map[string]string
	metadata     map[string]map[string]string
	termFreq     map[string]map[string]int
	docFreq      map[string]int
	docLength    map[string]int
	totalLength  int
	params       BM25Parameters
	preprocessor func(string) []string
}

// NewBM25Index creates an empty index with default parameters.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		docs:         make(map[string]string),
		metadata:     make(map[string]map[string]string),
		termFreq:     make(map[string]map[string]int),
		docFreq:      make(map[string]int),
		docLength:    make(map[string]int),
		params:       DefaultBM25Parameters(),
		preprocessor: Tokenize,
	}
}

// Tokenize lowercases text and splits it on non-letter, non-digit runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Add indexes a document. Re-adding an existing ID replaces it.
func (idx *BM25Index) Add(ctx context.Context, id, content string, metadata map[string]string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docs[id]; exists {
		idx.removeLocked(id)
	}

	terms := idx.preprocessor(content)
	tf := make(map[string]int, len(terms))
	for _, term := range terms {
		tf[term]++
	}

	idx.docs[id] = content
	idx.metadata[id] = metadata
	idx.termFreq[id] = tf
	idx.docLength[id] = len(terms)
	idx.totalLength += len(terms)
	for term := range tf {
		idx.docFreq[term]++
	}
	return nil
}

// Remove deletes a document from the index.
func (idx *BM25Index) Remove(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
	return nil
}

func (idx *BM25Index) removeLocked(id string) {
	tf, exists := idx.termFreq[id]
	if !exists {
		return
	}
	for term := range tf {
		idx.docFreq[term]--
		if idx.docFreq[term] == 0 {
			delete(idx.docFreq, term)
		}
	}
	idx.totalLength -= idx.docLength[id]
	delete(idx.docs, id)
	delete(idx.metadata, id)
	delete(idx.termFreq, id)
	delete(idx.docLength, id)
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search scores all documents against the query and returns the topK by
// BM25 score. Documents matching no query term are omitted.
func (idx *BM25Index) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	totalDocs := len(idx.docs)
	if totalDocs == 0 {
		return []SearchResult{}, nil
	}
	avgLength := float64(idx.totalLength) / float64(totalDocs)

	scores := make(map[string]float64)
	for _, term := range idx.preprocessor(query) {
		df, exists := idx.docFreq[term]
		if !exists {
			continue
		}
		idf := math.Log(1 + (float64(totalDocs)-float64(df)+0.5)/(float64(df)+0.5))

		for docID, tf := range idx.termFreq {
			freq, exists := tf[term]
			if !exists {
				continue
			}
			docLen := float64(idx.docLength[docID])
			numerator := float64(freq) * (idx.params.K1 + 1)
			denominator := float64(freq) + idx.params.K1*(1-idx.params.B+idx.params.B*docLen/avgLength)
			scores[docID] += idf * numerator / denominator
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for docID, score := range scores {
		results = append(results, SearchResult{
			ID:       docID,
			Score:    score,
			Text:     idx.docs[docID],
			Metadata: idx.metadata[docID],
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SetParameters replaces the BM25 tuning parameters.
func (idx *BM25Index) SetParameters(params BM25Parameters) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.params = params
}

// SetPreprocessor replaces the tokenizer. Existing postings are unchanged,
// so set it before indexing.
func (idx *BM25Index) SetPreprocessor(preprocessor func(string) []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.preprocessor = preprocessor
}
