package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/query"
)

// paperEntry is one row of /api/papers.
type paperEntry struct {
	Source string `json:"source"`
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/papers
// Lists the distinct document sources recorded on nodes.
func (s *Server) handlePapers(c *gin.Context) {
	docs, err := s.svc.Documents(c.Request.Context())
	if err != nil {
		slog.Error("listing papers", "error", err)
		handleError(c, err)
		return
	}
	out := make([]paperEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, paperEntry{Source: d})
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/graph?paper=<source>&format=cytoscape|elements
// Without paper the full graph is returned.
func (s *Server) handleGraph(c *gin.Context) {
	ctx := c.Request.Context()
	paper := c.Query("paper")

	var (
		g   *query.Graph
		err error
	)
	if paper == "" {
		g, err = s.svc.Graph(ctx)
	} else {
		g, err = s.svc.Subgraph(ctx, paper)
	}
	if err != nil {
		slog.Error("fetching graph", "paper", paper, "error", err)
		handleError(c, err)
		return
	}

	switch c.DefaultQuery("format", "cytoscape") {
	case "cytoscape":
		c.JSON(http.StatusOK, g.Cytoscape())
	case "elements":
		c.JSON(http.StatusOK, g)
	default:
		handleError(c, NewAppError(http.StatusBadRequest, "format must be cytoscape or elements", nil))
	}
}

// GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// POST /api/ingest
// Ingests raw text under a caller-chosen document id.
func (s *Server) handleIngest(c *gin.Context) {
	var req struct {
		DocumentID string `json:"document_id" binding:"required"`
		Text       string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.IngestTimeout)
	defer cancel()

	res, err := s.svc.Ingest(ctx, req.DocumentID, req.Text)
	s.respondIngest(c, res, err, gin.H{})
}

// POST /api/upload (multipart field "paper")
// Stores the file under the upload directory and ingests it with the file
// name as the document id.
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	header, err := c.FormFile("paper")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			handleError(c, NewAppError(http.StatusRequestEntityTooLarge, "File too large", err))
			return
		}
		handleError(c, NewAppError(http.StatusBadRequest, "No file uploaded", err))
		return
	}

	// Sanitise filename to prevent path traversal.
	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, "..") {
		handleError(c, NewAppError(http.StatusBadRequest, "Invalid file name", nil))
		return
	}

	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		slog.Error("creating upload dir", "dir", s.opts.UploadDir, "error", err)
		handleError(c, err)
		return
	}
	dst := filepath.Join(s.opts.UploadDir, name)
	if err := c.SaveUploadedFile(header, dst); err != nil {
		slog.Error("saving uploaded file", "file", name, "error", err)
		handleError(c, NewAppError(http.StatusInternalServerError, "Failed to save file", err))
		return
	}
	slog.Info("processing paper", "file", dst)

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.IngestTimeout)
	defer cancel()

	res, err := s.svc.IngestFile(ctx, dst)
	s.respondIngest(c, res, err, gin.H{
		"message":  "Paper uploaded and processed",
		"filename": name,
	})
}

func (s *Server) respondIngest(c *gin.Context, res *papergraph.IngestResult, err error, body gin.H) {
	if err != nil {
		slog.Error("ingest error", "error", err)
		appErr := MapError(err)
		payload := gin.H{"error": appErr.Message}
		if res != nil {
			payload["result"] = res
		}
		c.JSON(appErr.Code, payload)
		return
	}
	body["result"] = res
	c.JSON(http.StatusOK, body)
}
