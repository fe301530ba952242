package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	milvusFieldID        = "ID"
	milvusFieldEmbedding = "Embedding"
	milvusFieldText      = "Text"
	milvusFieldMetadata  = "Metadata"

	milvusMaxTextLength = 65535
	milvusMaxIDLength   = 64
)

// MilvusDB is a VectorDB backed by a Milvus deployment. Collections use an
// HNSW index with cosine similarity so scores line up with the other stores.
type MilvusDB struct {
	config *VectorDBConfig
	client client.Client
}

func newMilvusDB(cfg *VectorDBConfig) (*MilvusDB, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("milvus address is required")
	}
	return &MilvusDB{config: cfg}, nil
}

// Connect dials the Milvus server.
func (m *MilvusDB) Connect(ctx context.Context) error {
	c, err := client.NewClient(ctx, client.Config{Address: m.config.Address})
	if err != nil {
		return fmt.Errorf("failed to connect to milvus at %s: %w", m.config.Address, err)
	}
	m.client = c
	return nil
}

// Close releases the client connection.
func (m *MilvusDB) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// HasCollection reports whether the named collection exists.
func (m *MilvusDB) HasCollection(ctx context.Context, name string) (bool, error) {
	return m.client.HasCollection(ctx, name)
}

// CreateCollection creates the collection schema, its HNSW index, and loads
// it for search.
func (m *MilvusDB) CreateCollection(ctx context.Context, name string, dimension int) error {
	schema := entity.NewSchema().
		WithName(name).
		WithDescription("research paper chunks").
		WithField(entity.NewField().
			WithName(milvusFieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(milvusMaxIDLength).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(milvusFieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dimension))).
		WithField(entity.NewField().
			WithName(milvusFieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(milvusMaxTextLength)).
		WithField(entity.NewField().
			WithName(milvusFieldMetadata).
			WithDataType(entity.FieldTypeJSON))

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	index, err := entity.NewIndexHNSW(entity.COSINE, 16, 256)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := m.client.CreateIndex(ctx, name, milvusFieldEmbedding, index, false); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", name, err)
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return nil
}

// DropCollection removes the collection.
func (m *MilvusDB) DropCollection(ctx context.Context, name string) error {
	return m.client.DropCollection(ctx, name)
}

// Insert writes documents and flushes so they become searchable.
func (m *MilvusDB) Insert(ctx context.Context, collection string, docs []IndexedDocument) error {
	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	vectors := make([][]float32, len(docs))
	metas := make([][]byte, len(docs))

	for i, doc := range docs {
		ids[i] = doc.ID
		texts[i] = doc.Text
		vectors[i] = toFloat32(doc.Embedding)
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
		}
		metas[i] = meta
	}

	dim := m.config.Dimension
	if dim == 0 && len(docs) > 0 {
		dim = len(docs[0].Embedding)
	}

	_, err := m.client.Insert(ctx, collection, "",
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnFloatVector(milvusFieldEmbedding, dim, vectors),
		entity.NewColumnVarChar(milvusFieldText, texts),
		entity.NewColumnJSONBytes(milvusFieldMetadata, metas),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}

	if err := m.client.Flush(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to flush %s: %w", collection, err)
	}
	return nil
}

// Search runs a cosine-similarity vector search and returns topK hits.
func (m *MilvusDB) Search(ctx context.Context, collection string, vector []float64, topK int) ([]SearchResult, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResults, err := m.client.Search(
		ctx,
		collection,
		nil,
		"",
		[]string{milvusFieldText, milvusFieldMetadata},
		[]entity.Vector{entity.FloatVector(toFloat32(vector))},
		milvusFieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search on %s failed: %w", collection, err)
	}

	var results []SearchResult
	for _, sr := range searchResults {
		textCol := sr.Fields.GetColumn(milvusFieldText)
		metaCol := sr.Fields.GetColumn(milvusFieldMetadata)
		for i := 0; i < sr.ResultCount; i++ {
			id, err := sr.IDs.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read result id: %w", err)
			}
			result := SearchResult{
				ID:    id,
				Score: float64(sr.Scores[i]),
			}
			if textCol != nil {
				if text, err := textCol.GetAsString(i); err == nil {
					result.Text = text
				}
			}
			if metaCol != nil {
				if raw, err := metaCol.GetAsString(i); err == nil && raw != "" {
					meta := make(map[string]string)
					if err := json.Unmarshal([]byte(raw), &meta); err == nil {
						result.Metadata = meta
					}
				}
			}
			results = append(results, result)
		}
	}
	return results, nil
}

// Count returns the row count reported by collection statistics.
func (m *MilvusDB) Count(ctx context.Context, collection string) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get statistics for %s: %w", collection, err)
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", raw, err)
	}
	return count, nil
}
