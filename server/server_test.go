package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/researchgpt"
	"github.com/teilomillet/researchgpt/config"
	"github.com/teilomillet/researchgpt/rag"
)

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "generate 3 different versions") {
		return "1. variant", nil
	}
	if strings.Contains(prompt, "Relevant parts:") {
		return "NO_OUTPUT", nil
	}
	return "stub answer", nil
}

type stubEmbedder struct{}

func (stubEmbedder) Dimension() (int, error) { return 2, nil }

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.Contains(strings.ToLower(text), "attention") {
		return []float64{1, 0.1}, nil
	}
	return []float64{0.1, 1}, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(ctx, t)
	}
	return out, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		OpenAI:   config.OpenAIConfig{APIKey: "test-key", Model: "gpt-4", EmbeddingModel: "test"},
		Vector:   config.VectorConfig{Type: "memory", Collection: "papers"},
		Chunking: config.ChunkingConfig{Size: 100, Overlap: 10},
		Retrieval: config.RetrievalConfig{
			TopK:        3,
			MinScore:    0.5,
			Weights:     []float64{0.4, 0.3, 0.3},
			RRFConstant: 60,
		},
		Storage: config.StorageConfig{
			Enabled: true,
			PDFDir:  t.TempDir(),
			Backup:  true,
		},
		LogLevel: "error",
	}

	db, err := rag.NewVectorDB(rag.WithType("memory"), rag.WithDimension(2))
	require.NoError(t, err)

	sys, err := researchgpt.New(context.Background(), cfg,
		researchgpt.WithLLM(stubLLM{}),
		researchgpt.WithVectorDB(db),
		researchgpt.WithEmbeddingService(rag.NewEmbeddingService(stubEmbedder{})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	return New(sys)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAsk(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing question", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/ask", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("answers", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/ask", map[string]string{"question": "what is attention?"})
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Answer string `json:"answer"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Answer)
	})

	t.Run("sources omitted by default", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/ask", map[string]any{"question": "what is attention?"})
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotContains(t, resp, "sources")
	})

	t.Run("sources included on request", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/ask", map[string]any{
			"question":        "what is attention?",
			"include_sources": true,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp, "sources")
	})
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t)

	t.Run("without body", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/summary", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp, "answer")
		assert.NotContains(t, resp, "sources")
	})

	t.Run("with topic and sources", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/summary", map[string]any{
			"topic":           "attention",
			"include_sources": true,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp, "answer")
		assert.Contains(t, resp, "sources")
	})
}

func TestStats(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		IndexedChunks int64  `json:"indexed_chunks"`
		Collection    string `json:"collection"`
		StoreType     string `json:"store_type"`
		Retrieval     struct {
			TopK        int       `json:"top_k"`
			MinScore    float64   `json:"min_score"`
			Weights     []float64 `json:"weights"`
			RRFConstant float64   `json:"rrf_constant"`
		} `json:"retrieval"`
		Chunking struct {
			Size    int `json:"size"`
			Overlap int `json:"overlap"`
		} `json:"chunking"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "papers", resp.Collection)
	assert.Equal(t, "memory", resp.StoreType)
	assert.Zero(t, resp.IndexedChunks)
	assert.Equal(t, 3, resp.Retrieval.TopK)
	assert.Equal(t, 0.5, resp.Retrieval.MinScore)
	assert.Equal(t, []float64{0.4, 0.3, 0.3}, resp.Retrieval.Weights)
	assert.Equal(t, float64(60), resp.Retrieval.RRFConstant)
	assert.Equal(t, 100, resp.Chunking.Size)
	assert.Equal(t, 10, resp.Chunking.Overlap)
}

func TestListDocumentsEmpty(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Documents []any `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Documents)
}

func TestDeleteMissingDocument(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, http.MethodDelete, "/api/v1/documents/missing.pdf", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcess(t *testing.T) {
	srv := newTestServer(t)

	t.Run("unknown source", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/process", map[string]string{"source": "ftp"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("directory requires path", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/process", map[string]string{"source": "directory"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty directory", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/process", map[string]string{
			"source":    "directory",
			"directory": t.TempDir(),
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"processed":0}`, w.Body.String())
	})

	t.Run("local storage", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/process", map[string]string{"source": "local"})
		require.Equal(t, http.StatusOK, w.Code)
	})
}

func TestUploadRejectsNonPDF(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKeywordSearch(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing query", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/v1/search", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty index", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/v1/search?q=attention", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Results []any `json:"results"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Results)
	})
}
