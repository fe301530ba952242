// Package server exposes the pipeline over HTTP.
package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teilomillet/researchgpt"
	"github.com/teilomillet/researchgpt/rag"
)

// Server wraps a researchgpt.System with a JSON API.
type Server struct {
	system *researchgpt.System
	router *gin.Engine
	logger rag.Logger
}

// New builds the server and its routes.
func New(system *researchgpt.System) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		system: system,
		router: gin.New(),
		logger: rag.GlobalLogger,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

// Router returns the underlying gin engine, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("starting http server", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api/v1")
	api.POST("/documents", s.handleUpload)
	api.GET("/documents", s.handleList)
	api.DELETE("/documents/:name", s.handleDelete)
	api.POST("/process", s.handleProcess)
	api.POST("/ask", s.handleAsk)
	api.POST("/summary", s.handleSummary)
	api.GET("/stats", s.handleStats)
	api.GET("/search", s.handleKeywordSearch)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleUpload accepts a multipart PDF upload and indexes it.
func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .pdf files are accepted"})
		return
	}

	tmp, err := os.MkdirTemp("", "researchgpt-upload-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	organize := c.DefaultPostForm("organize", "true") != "false"
	if err := s.system.AddPDF(c.Request.Context(), path, organize); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"indexed": file.Filename})
}

func (s *Server) handleList(c *gin.Context) {
	files, err := s.system.ListPDFs()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, len(files))
	for i, f := range files {
		out[i] = gin.H{
			"name":     f.Name,
			"size":     f.Size,
			"modified": f.ModTime,
		}
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func (s *Server) handleDelete(c *gin.Context) {
	name := c.Param("name")
	if err := s.system.DeletePDF(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

type processRequest struct {
	// Source is "local", "azure", or "directory".
	Source    string `json:"source" binding:"required"`
	Directory string `json:"directory"`
	// DownloadLocal retains Azure downloads in local storage.
	DownloadLocal bool `json:"download_local"`
}

func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		processed int
		err       error
	)
	switch req.Source {
	case "local":
		processed, err = s.system.ProcessLocalStorage(c.Request.Context())
	case "azure":
		processed, err = s.system.ProcessAzure(c.Request.Context(), req.DownloadLocal)
	case "directory":
		if req.Directory == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "directory is required for source=directory"})
			return
		}
		processed, err = s.system.ProcessDirectory(c.Request.Context(), req.Directory)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown source %q", req.Source)})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "processed": processed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

type askRequest struct {
	Question       string `json:"question" binding:"required"`
	IncludeSources bool   `json:"include_sources"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	answer, err := s.system.Ask(c.Request.Context(), req.Question)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, answerJSON(answer, req.IncludeSources))
}

type summaryRequest struct {
	Topic          string `json:"topic"`
	IncludeSources bool   `json:"include_sources"`
}

func (s *Server) handleSummary(c *gin.Context) {
	var req summaryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	answer, err := s.system.Summarize(c.Request.Context(), req.Topic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, answerJSON(answer, req.IncludeSources))
}

func answerJSON(a researchgpt.Answer, includeSources bool) gin.H {
	out := gin.H{"answer": a.Text}
	if !includeSources {
		return out
	}
	sources := make([]gin.H, len(a.Context))
	for i, r := range a.Context {
		sources[i] = gin.H{
			"content":   r.Content,
			"score":     r.Score,
			"retriever": r.Source,
			"file":      r.Metadata["file_name"],
		}
	}
	out["sources"] = sources
	return out
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.system.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"indexed_chunks": stats.IndexedChunks,
		"collection":     stats.Collection,
		"store_type":     stats.StoreType,
		"retrieval": gin.H{
			"top_k":        stats.Retrieval.TopK,
			"min_score":    stats.Retrieval.MinScore,
			"weights":      stats.Retrieval.Weights,
			"rrf_constant": stats.Retrieval.RRFConstant,
		},
		"chunking": gin.H{
			"size":    stats.Chunking.Size,
			"overlap": stats.Chunking.Overlap,
		},
		"storage": gin.H{
			"files":        stats.Storage.TotalFiles,
			"bytes":        stats.Storage.TotalBytes,
			"backup_files": stats.Storage.BackupFiles,
			"backup_bytes": stats.Storage.BackupBytes,
		},
	})
}

func (s *Server) handleKeywordSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	results, err := s.system.SearchKeyword(c.Request.Context(), query, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, len(results))
	for i, r := range results {
		out[i] = gin.H{
			"id":    r.ID,
			"score": r.Score,
			"text":  r.Text,
			"file":  r.Metadata["file_name"],
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}
