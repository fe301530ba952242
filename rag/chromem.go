package rag

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemDB is a VectorDB backed by chromem-go. With an address it persists
// collections to disk, which makes it the local-first default store; without
// one it runs fully in memory.
type ChromemDB struct {
	db          *chromem.DB
	path        string
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

func newChromemDB(cfg *VectorDBConfig) (*ChromemDB, error) {
	return &ChromemDB{
		path:        cfg.Address,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Connect opens (or creates) the on-disk database when a path is configured.
func (c *ChromemDB) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}
	if c.path == "" {
		c.db = chromem.NewDB()
		return nil
	}
	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return fmt.Errorf("failed to create vector store directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(c.path, false)
	if err != nil {
		return fmt.Errorf("failed to open chromem store at %s: %w", c.path, err)
	}
	c.db = db
	GlobalLogger.Info("opened chromem vector store", "path", c.path)
	return nil
}

// Close is a no-op; chromem persists on write.
func (c *ChromemDB) Close() error { return nil }

// noEmbed satisfies chromem's embedding hook. Documents and queries always
// carry precomputed embeddings, so it must never run.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be computed before insertion")
}

// HasCollection reports whether the named collection exists.
func (c *ChromemDB) HasCollection(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return false, fmt.Errorf("store not connected")
	}
	if _, ok := c.collections[name]; ok {
		return true, nil
	}
	col := c.db.GetCollection(name, noEmbed)
	if col != nil {
		c.collections[name] = col
		return true, nil
	}
	return false, nil
}

// CreateCollection creates the collection if needed. Chromem has no schema;
// the dimension argument is ignored.
func (c *ChromemDB) CreateCollection(ctx context.Context, name string, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("store not connected")
	}
	col, err := c.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	c.collections[name] = col
	return nil
}

// DropCollection deletes the collection and its documents.
func (c *ChromemDB) DropCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("store not connected")
	}
	delete(c.collections, name)
	if err := c.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// Insert stores documents with their precomputed embeddings.
func (c *ChromemDB) Insert(ctx context.Context, collection string, docs []IndexedDocument) error {
	col, err := c.collection(collection)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		err := col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Metadata:  doc.Metadata,
			Embedding: toFloat32(doc.Embedding),
		})
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
	}
	GlobalLogger.Debug("inserted documents", "collection", collection, "count", len(docs))
	return nil
}

// Search returns the topK most similar documents by cosine similarity.
// Chromem rejects result counts above the collection size, so topK is
// clamped first.
func (c *ChromemDB) Search(ctx context.Context, collection string, vector []float64, topK int) ([]SearchResult, error) {
	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}

	if n := col.Count(); n < topK {
		topK = n
	}
	if topK == 0 {
		return []SearchResult{}, nil
	}

	hits, err := col.QueryEmbedding(ctx, toFloat32(vector), topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			ID:       hit.ID,
			Score:    float64(hit.Similarity),
			Text:     hit.Content,
			Metadata: hit.Metadata,
		}
	}
	return results, nil
}

// Count returns the number of documents in a collection.
func (c *ChromemDB) Count(ctx context.Context, collection string) (int64, error) {
	col, err := c.collection(collection)
	if err != nil {
		return 0, err
	}
	return int64(col.Count()), nil
}

func (c *ChromemDB) collection(name string) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, fmt.Errorf("store not connected")
	}
	col = c.db.GetCollection(name, noEmbed)
	if col == nil {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}
	c.collections[name] = col
	return col, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
