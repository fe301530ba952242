// Package researchgpt answers questions over a corpus of research PDFs.
// PDFs are parsed, chunked, embedded, and indexed in a vector store;
// questions run through an ensemble of embedding-based retrievers whose
// fused context is handed to an LLM.
package researchgpt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teilomillet/researchgpt/config"
	"github.com/teilomillet/researchgpt/rag"
	"github.com/teilomillet/researchgpt/storage"
)

// Answer is the response to a question: the LLM's answer plus the fused
// context chunks it was grounded on.
type Answer struct {
	Text    string
	Context []RetrieverResult
}

// RetrievalStats reports the retriever configuration in effect.
type RetrievalStats struct {
	TopK        int
	MinScore    float64
	Weights     []float64
	RRFConstant float64
}

// ChunkingStats reports the chunker configuration in effect.
type ChunkingStats struct {
	Size    int
	Overlap int
}

// SystemStats reports the state of the pipeline.
type SystemStats struct {
	IndexedChunks int64
	Collection    string
	StoreType     string
	Retrieval     RetrievalStats
	Chunking      ChunkingStats
	Storage       storage.Stats
}

// System is the assembled pipeline. Construct it with New and release
// its resources with Close.
type System struct {
	cfg      *config.Config
	parser   *rag.ParserManager
	chunker  rag.Chunker
	embedder *rag.EmbeddingService
	db       rag.VectorDB
	sparse   *rag.BM25Index
	llm      LLM
	local    *storage.LocalStore
	azure    *storage.AzureStore
	logger   rag.Logger

	mu        sync.Mutex
	processed map[string]struct{}
}

// Option overrides a System component, mainly for testing.
type Option func(*System)

// WithLLM substitutes the completion model.
func WithLLM(llm LLM) Option {
	return func(s *System) { s.llm = llm }
}

// WithVectorDB substitutes the vector store.
func WithVectorDB(db rag.VectorDB) Option {
	return func(s *System) { s.db = db }
}

// WithEmbeddingService substitutes the embedding service.
func WithEmbeddingService(svc *rag.EmbeddingService) Option {
	return func(s *System) { s.embedder = svc }
}

// New assembles a System from configuration. The vector store is
// connected and the collection created if missing.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var level rag.LogLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		rag.SetGlobalLogLevel(level)
	}

	chunker, err := rag.NewTextChunker(
		rag.ChunkSize(cfg.Chunking.Size),
		rag.ChunkOverlap(cfg.Chunking.Overlap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	s := &System{
		cfg:       cfg,
		parser:    rag.NewParserManager(),
		chunker:   chunker,
		sparse:    rag.NewBM25Index(),
		logger:    rag.GlobalLogger,
		processed: make(map[string]struct{}),
	}
	pdfParser := rag.NewPDFParser()
	pdfParser.MaxFileSize = cfg.MaxFileSizeBytes()
	s.parser.AddParser("pdf", pdfParser)

	for _, opt := range opts {
		opt(s)
	}

	if s.embedder == nil {
		embedder, err := rag.NewEmbedder(
			rag.SetProvider("openai"),
			rag.SetAPIKey(cfg.OpenAI.APIKey),
			rag.SetModel(cfg.OpenAI.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		s.embedder = rag.NewEmbeddingService(embedder)
	}

	if s.llm == nil {
		llm, err := NewLLM(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		if err != nil {
			return nil, err
		}
		s.llm = llm
	}

	if s.db == nil {
		dim, err := s.embedder.Dimension()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve embedding dimension: %w", err)
		}
		db, err := rag.NewVectorDB(
			rag.WithType(cfg.Vector.Type),
			rag.WithAddress(vectorAddress(cfg)),
			rag.WithDimension(dim),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		s.db = db
	}

	if err := s.db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to vector store: %w", err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		s.db.Close()
		return nil, err
	}

	if cfg.Storage.Enabled {
		local, err := storage.NewLocalStore(cfg.Storage.PDFDir,
			storage.WithBackups(cfg.Storage.Backup),
			storage.WithMaxFileSize(cfg.MaxFileSizeBytes()),
		)
		if err != nil {
			s.db.Close()
			return nil, err
		}
		s.local = local
	}

	return s, nil
}

// vectorAddress picks the store-appropriate address field: milvus
// connects to a server, chromem persists to a path.
func vectorAddress(cfg *config.Config) string {
	if cfg.Vector.Type == "milvus" {
		return cfg.Vector.Address
	}
	return cfg.Vector.Path
}

func (s *System) ensureCollection(ctx context.Context) error {
	ok, err := s.db.HasCollection(ctx, s.cfg.Vector.Collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if ok {
		return nil
	}
	dim, err := s.embedder.Dimension()
	if err != nil {
		return fmt.Errorf("failed to resolve embedding dimension: %w", err)
	}
	if err := s.db.CreateCollection(ctx, s.cfg.Vector.Collection, dim); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	s.logger.Info("created collection", "name", s.cfg.Vector.Collection, "dimension", dim)
	return nil
}

// Close releases the vector store connection.
func (s *System) Close() error {
	return s.db.Close()
}

// AddPDF ingests one PDF into the index. With local storage enabled the
// file is also archived into the store, filed by year/month when
// organize is set.
func (s *System) AddPDF(ctx context.Context, path string, organize bool) error {
	if err := s.ingest(ctx, path); err != nil {
		return err
	}
	if s.local != nil {
		if _, err := s.local.Add(path, organize); err != nil {
			return fmt.Errorf("indexed but failed to archive: %w", err)
		}
	}
	return nil
}

// ingest parses, chunks, embeds, and indexes a single file.
func (s *System) ingest(ctx context.Context, path string) error {
	doc, err := s.parser.Parse(path)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%s contains no extractable text", path)
	}

	chunks := s.chunker.Chunk(doc.Content)
	embedded, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", path, err)
	}

	docs := make([]rag.IndexedDocument, len(embedded))
	for i, ec := range embedded {
		meta := make(map[string]string, len(doc.Metadata)+len(ec.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		for k, v := range ec.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		docs[i] = rag.IndexedDocument{
			ID:        uuid.NewString(),
			Text:      ec.Text,
			Embedding: ec.Embedding,
			Metadata:  meta,
		}
	}

	if err := s.db.Insert(ctx, s.cfg.Vector.Collection, docs); err != nil {
		return fmt.Errorf("failed to index %s: %w", path, err)
	}
	for _, d := range docs {
		if err := s.sparse.Add(ctx, d.ID, d.Text, d.Metadata); err != nil {
			s.logger.Warn("failed to add chunk to keyword index", "id", d.ID, "error", err)
		}
	}

	s.mu.Lock()
	s.processed[filepath.Base(path)] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("ingested pdf", "path", path, "chunks", len(docs))
	return nil
}

// ProcessDirectory ingests every PDF found under dir. Files that fail
// are logged and skipped; the error reports how many failed.
func (s *System) ProcessDirectory(ctx context.Context, dir string) (int, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	processed, failed := 0, 0
	for _, path := range paths {
		if err := s.ingest(ctx, path); err != nil {
			s.logger.Error("failed to process pdf", "path", path, "error", err)
			failed++
			continue
		}
		processed++
	}
	if failed > 0 {
		return processed, fmt.Errorf("%d of %d PDFs failed to process", failed, len(paths))
	}
	return processed, nil
}

// ProcessLocalStorage ingests every PDF in the local store that has not
// been ingested during this session.
func (s *System) ProcessLocalStorage(ctx context.Context) (int, error) {
	if s.local == nil {
		return 0, fmt.Errorf("local storage is disabled")
	}
	files, err := s.local.List()
	if err != nil {
		return 0, err
	}

	processed, failed := 0, 0
	for _, f := range files {
		s.mu.Lock()
		_, done := s.processed[f.Name]
		s.mu.Unlock()
		if done {
			continue
		}
		if err := s.ingest(ctx, f.Path); err != nil {
			s.logger.Error("failed to process stored pdf", "path", f.Path, "error", err)
			failed++
			continue
		}
		processed++
	}
	if failed > 0 {
		return processed, fmt.Errorf("%d stored PDFs failed to process", failed)
	}
	return processed, nil
}

// ProcessAzure downloads every PDF blob in the configured container and
// ingests it. Downloads go through a temporary directory that is removed
// afterwards; with downloadLocal the downloaded files are also retained
// in local storage.
func (s *System) ProcessAzure(ctx context.Context, downloadLocal bool) (int, error) {
	if downloadLocal && s.local == nil {
		return 0, fmt.Errorf("local storage is disabled")
	}
	az, err := s.azureStore(ctx)
	if err != nil {
		return 0, err
	}
	blobs, err := az.List(ctx)
	if err != nil {
		return 0, err
	}

	tmp, err := os.MkdirTemp("", "researchgpt-ingest-")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	processed, failed := 0, 0
	for _, blob := range blobs {
		path, err := az.Download(ctx, blob, tmp)
		if err != nil {
			s.logger.Error("failed to download blob", "blob", blob, "error", err)
			failed++
			continue
		}
		if err := s.ingest(ctx, path); err != nil {
			s.logger.Error("failed to process blob", "blob", blob, "error", err)
			failed++
			continue
		}
		if downloadLocal {
			if _, err := s.local.Add(path, true); err != nil {
				s.logger.Error("failed to retain blob locally", "blob", blob, "error", err)
				failed++
				continue
			}
		}
		processed++
	}
	if failed > 0 {
		return processed, fmt.Errorf("%d of %d blobs failed to process", failed, len(blobs))
	}
	return processed, nil
}

func (s *System) azureStore(ctx context.Context) (*storage.AzureStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.azure != nil {
		return s.azure, nil
	}
	az, err := storage.NewAzureStore(ctx, s.cfg.Azure.ConnectionString, s.cfg.Azure.Container)
	if err != nil {
		return nil, err
	}
	s.azure = az
	return az, nil
}

// retriever assembles the ensemble over the current index.
func (s *System) retriever() (Retriever, error) {
	semantic := NewSemanticRetriever(s.embedder, s.db, s.cfg.Vector.Collection, s.cfg.Retrieval.MinScore)
	multi := NewMultiQueryRetriever(semantic, s.llm)
	compressed := NewCompressionRetriever(semantic, s.llm)

	ensemble, err := NewEnsembleRetriever(
		[]Retriever{semantic, multi, compressed},
		s.cfg.Retrieval.Weights,
	)
	if err != nil {
		return nil, err
	}
	ensemble.SetRRFConstant(s.cfg.Retrieval.RRFConstant)
	return ensemble, nil
}

// Ask answers a question from the indexed corpus.
func (s *System) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("question is empty")
	}

	retriever, err := s.retriever()
	if err != nil {
		return Answer{}, err
	}
	results, err := retriever.Retrieve(ctx, question, s.cfg.Retrieval.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieval failed: %w", err)
	}
	if len(results) == 0 {
		return Answer{Text: "I could not find relevant information in the indexed papers to answer that question."}, nil
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Content
	}
	answer, err := s.llm.Generate(ctx, BuildQAPrompt(question, contexts))
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: answer, Context: results}, nil
}

// Summarize produces an overview of the indexed corpus by routing a
// survey question through Ask. A non-empty topic scopes the summary to
// that topic.
func (s *System) Summarize(ctx context.Context, topic string) (Answer, error) {
	return s.Ask(ctx, BuildSummaryQuestion(topic))
}

// SearchKeyword runs a plain BM25 keyword search over the chunks
// ingested this session, bypassing embeddings and the LLM.
func (s *System) SearchKeyword(ctx context.Context, query string, topK int) ([]rag.SearchResult, error) {
	return s.sparse.Search(ctx, query, topK)
}

// Stats reports index and storage state.
func (s *System) Stats(ctx context.Context) (SystemStats, error) {
	count, err := s.db.Count(ctx, s.cfg.Vector.Collection)
	if err != nil {
		return SystemStats{}, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	stats := SystemStats{
		IndexedChunks: count,
		Collection:    s.cfg.Vector.Collection,
		StoreType:     s.cfg.Vector.Type,
		Retrieval: RetrievalStats{
			TopK:        s.cfg.Retrieval.TopK,
			MinScore:    s.cfg.Retrieval.MinScore,
			Weights:     s.cfg.Retrieval.Weights,
			RRFConstant: s.cfg.Retrieval.RRFConstant,
		},
		Chunking: ChunkingStats{
			Size:    s.cfg.Chunking.Size,
			Overlap: s.cfg.Chunking.Overlap,
		},
	}
	if s.local != nil {
		st, err := s.local.Stats()
		if err != nil {
			return SystemStats{}, err
		}
		stats.Storage = st
	}
	return stats, nil
}

// ListPDFs lists the PDFs held in local storage.
func (s *System) ListPDFs() ([]storage.FileInfo, error) {
	if s.local == nil {
		return nil, fmt.Errorf("local storage is disabled")
	}
	return s.local.List()
}

// DeletePDF removes a PDF from local storage by name. The already
// indexed chunks stay in the vector store.
func (s *System) DeletePDF(name string) error {
	if s.local == nil {
		return fmt.Errorf("local storage is disabled")
	}
	return s.local.Delete(name)
}

// CleanupBackups removes storage backups older than maxAge.
func (s *System) CleanupBackups(maxAge time.Duration) (int, error) {
	if s.local == nil {
		return 0, fmt.Errorf("local storage is disabled")
	}
	return s.local.CleanupBackups(maxAge)
}
