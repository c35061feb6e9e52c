// Package server exposes repository analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/imyousuf/depgraph/internal/analyzer"
	"github.com/imyousuf/depgraph/internal/discover"
	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/indexer"
	"github.com/imyousuf/depgraph/internal/parser"
)

const serviceName = "depgraph"

// Config holds what the server needs to analyze a repository on request.
type Config struct {
	Registry *parser.Registry
	Discover discover.Options
	Analyzer []analyzer.Option
	Logger   *slog.Logger
}

// Server handles HTTP analysis requests.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router *gin.Engine
}

// KnowledgeRequest is the body of POST /extract_knowledge.
type KnowledgeRequest struct {
	RepoPath string `json:"repo_path" binding:"required"`
}

// KnowledgeResponse is returned by POST /extract_knowledge.
type KnowledgeResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	RunID   string          `json:"run_id,omitempty"`
	Graph   *graph.Snapshot `json:"graph,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), s.logRequests())
	router.GET("/health", s.HandleHealth)
	router.POST("/extract_knowledge", s.HandleExtractKnowledge)
	s.router = router
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// HandleHealth reports that the server is up.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "Server is running",
	})
}

// HandleExtractKnowledge analyzes the repository named in the request body
// and returns its graph. Analysis failures are reported in the body with
// status "error" and HTTP 200; only a malformed request is a 400.
func (s *Server) HandleExtractKnowledge(c *gin.Context) {
	var req KnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, KnowledgeResponse{
			Status:  "error",
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	run, err := s.analyze(c.Request.Context(), req.RepoPath)
	if err != nil {
		s.logger.Warn("extract knowledge failed", "repo_path", req.RepoPath, "error", err)
		c.JSON(http.StatusOK, KnowledgeResponse{Status: "error", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, KnowledgeResponse{
		Status: "success",
		RunID:  run.ID,
		Graph:  run.Result.Snapshot(),
	})
}

func (s *Server) analyze(ctx context.Context, root string) (*indexer.Run, error) {
	idx, err := indexer.NewIndexer(indexer.Config{
		Root:     root,
		Registry: s.cfg.Registry,
		Discover: s.cfg.Discover,
		Analyzer: s.cfg.Analyzer,
		Logger: func(format string, args ...any) {
			s.logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	if err != nil {
		return nil, err
	}
	return idx.IndexRepository(ctx)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
