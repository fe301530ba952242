package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryDB is an in-memory VectorDB backed by a linear scan. It exists for
// tests and small corpora; nothing is persisted.
type MemoryDB struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	docs      []IndexedDocument
}

func newMemoryDB(_ *VectorDBConfig) (*MemoryDB, error) {
	return &MemoryDB{
		collections: make(map[string]*memoryCollection),
	}, nil
}

// Connect is a no-op for the in-memory store.
func (m *MemoryDB) Connect(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryDB) Close() error { return nil }

// HasCollection reports whether the named collection exists.
func (m *MemoryDB) HasCollection(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

// CreateCollection creates an empty collection. Creating an existing
// collection is an error.
func (m *MemoryDB) CreateCollection(ctx context.Context, name string, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	m.collections[name] = &memoryCollection{dimension: dimension}
	return nil
}

// DropCollection removes a collection and its documents.
func (m *MemoryDB) DropCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// Insert appends documents to a collection.
func (m *MemoryDB) Insert(ctx context.Context, collection string, docs []IndexedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	for _, doc := range docs {
		if col.dimension > 0 && len(doc.Embedding) != col.dimension {
			return fmt.Errorf("document %s has dimension %d, collection expects %d", doc.ID, len(doc.Embedding), col.dimension)
		}
	}
	col.docs = append(col.docs, docs...)
	return nil
}

// Search scans the collection and returns the topK documents by cosine
// similarity to the query vector.
func (m *MemoryDB) Search(ctx context.Context, collection string, vector []float64, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", collection)
	}

	results := make([]SearchResult, 0, len(col.docs))
	for _, doc := range col.docs {
		results = append(results, SearchResult{
			ID:       doc.ID,
			Score:    CosineSimilarity(vector, doc.Embedding),
			Text:     doc.Text,
			Metadata: doc.Metadata,
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

// Count returns the number of documents in a collection.
func (m *MemoryDB) Count(ctx context.Context, collection string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("collection %s does not exist", collection)
	}
	return int64(len(col.docs)), nil
}

// CosineSimilarity returns the cosine of the angle between two vectors, or
// zero when either vector is empty or all zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
