// Package server exposes the paper graph over HTTP for the visualisation
// front end.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/query"
	"github.com/brunobiangulo/papergraph/store"
)

// Service is the subset of *papergraph.Engine the server needs.
type Service interface {
	Ingest(ctx context.Context, documentID, text string) (*papergraph.IngestResult, error)
	IngestFile(ctx context.Context, path string) (*papergraph.IngestResult, error)
	Graph(ctx context.Context) (*query.Graph, error)
	Subgraph(ctx context.Context, documentID string) (*query.Graph, error)
	Documents(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (store.Stats, error)
}

var _ Service = (*papergraph.Engine)(nil)

// Options configures a Server.
type Options struct {
	// UploadDir receives files posted to /api/upload.
	UploadDir string
	// MaxUploadBytes caps multipart request bodies. Zero means 50 MiB.
	MaxUploadBytes int64
	// APIKey, when set, is required as a bearer token on /api routes.
	APIKey string
	// CORSOrigins is sent as Access-Control-Allow-Origin when non-empty.
	CORSOrigins string
	// IngestTimeout bounds one ingestion request.
	IngestTimeout time.Duration
}

// Server holds the state for the REST API server.
type Server struct {
	svc    Service
	opts   Options
	router *gin.Engine
}

// NewServer creates a new Server instance.
func NewServer(svc Service, opts Options) *Server {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if opts.IngestTimeout <= 0 {
		opts.IngestTimeout = 30 * time.Minute
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(recoveryMiddleware(), requestIDMiddleware(), logMiddleware(), corsMiddleware(opts.CORSOrigins))

	s := &Server{svc: svc, opts: opts, router: r}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api", authMiddleware(s.opts.APIKey))
	api.GET("/papers", s.handlePapers)
	api.GET("/graph", s.handleGraph)
	api.GET("/stats", s.handleStats)
	api.POST("/ingest", s.handleIngest)
	api.POST("/upload", s.handleUpload)
}

// Handler returns the router for embedding or testing.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // uploads ingest synchronously and can be long
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
