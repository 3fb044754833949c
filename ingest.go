package papergraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brunobiangulo/papergraph/parser"
)

// Document is one unit of work for IngestAll. When Text is empty the file
// at Path is parsed; ID defaults to the base name of Path.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

// DocumentReport is the outcome of one document within a run.
type DocumentReport struct {
	DocumentID string        `json:"document_id"`
	Path       string        `json:"path,omitempty"`
	Result     *IngestResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	Err        error         `json:"-"`
}

// RunReport summarises an IngestAll run.
type RunReport struct {
	RunID     string           `json:"run_id"`
	Documents []DocumentReport `json:"documents"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// IngestFile parses the file at path and ingests it with the file's base
// name as the document ID.
func (e *Engine) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	text, err := e.parseFile(ctx, path)
	if err != nil {
		observe(statusParseFailed, 0)
		return nil, err
	}
	return e.Ingest(ctx, filepath.Base(path), text)
}

func (e *Engine) parseFile(ctx context.Context, path string) (string, error) {
	if !e.parsers.Supports(path) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, parser.FormatOf(path))
	}
	start := time.Now()
	text, err := e.parsers.ParseFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrParsingFailed, filepath.Base(path), err)
	}
	slog.Info("ingest: parsing complete", "file", filepath.Base(path),
		"chars", len(text), "elapsed", time.Since(start).Round(time.Millisecond))
	return text, nil
}

// IngestAll ingests docs, at most the configured concurrency at a time.
// A failing document is recorded in the report and never stops the run.
// Reports keep the order of docs.
func (e *Engine) IngestAll(ctx context.Context, docs []Document) *RunReport {
	run := &RunReport{
		RunID:     uuid.NewString(),
		Documents: make([]DocumentReport, len(docs)),
	}
	ctx, span := e.tracer.Start(ctx, "papergraph.IngestAll", trace.WithAttributes(
		attribute.String("run.id", run.RunID),
		attribute.Int("run.documents", len(docs)),
	))
	defer span.End()

	start := time.Now()
	slog.Info("ingest: run started", "run_id", run.RunID, "documents", len(docs), "concurrency", e.concurrency)

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, d := range docs {
		rep := &run.Documents[i]
		rep.DocumentID, rep.Path = d.ID, d.Path
		if rep.DocumentID == "" && d.Path != "" {
			rep.DocumentID = filepath.Base(d.Path)
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			rep.Err = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(d Document, rep *DocumentReport) {
			defer wg.Done()
			defer func() { <-sem }()
			rep.Result, rep.Err = e.ingestDocument(ctx, rep.DocumentID, d)
		}(d, rep)
	}
	wg.Wait()

	for i := range run.Documents {
		rep := &run.Documents[i]
		if rep.Err != nil {
			rep.Error = rep.Err.Error()
			run.Failed++
			slog.Warn("ingest: document failed", "run_id", run.RunID,
				"document", rep.DocumentID, "error", rep.Err)
			continue
		}
		run.Succeeded++
	}
	run.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("run.succeeded", run.Succeeded),
		attribute.Int("run.failed", run.Failed),
	)
	slog.Info("ingest: run complete", "run_id", run.RunID,
		"succeeded", run.Succeeded, "failed", run.Failed, "elapsed", run.Elapsed.Round(time.Millisecond))
	return run
}

func (e *Engine) ingestDocument(ctx context.Context, id string, d Document) (*IngestResult, error) {
	text := d.Text
	if text == "" {
		if d.Path == "" {
			return nil, fmt.Errorf("%w: document %q has neither text nor path", ErrInvalidDocument, id)
		}
		var err error
		if text, err = e.parseFile(ctx, d.Path); err != nil {
			observe(statusParseFailed, 0)
			return nil, err
		}
	}
	return e.Ingest(ctx, id, text)
}

// IngestPath ingests a single file, or every supported file directly inside
// a directory (sorted by name, not recursive).
func (e *Engine) IngestPath(ctx context.Context, path string) (*RunReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return e.IngestAll(ctx, []Document{{Path: path}}), nil
	}

	docs, err := e.listDocuments(path)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		slog.Warn("ingest: no supported files found", "dir", path, "formats", e.parsers.Formats())
	}
	return e.IngestAll(ctx, docs), nil
}

func (e *Engine) listDocuments(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var docs []Document
	for _, ent := range entries {
		if ent.IsDir() || !e.parsers.Supports(ent.Name()) {
			continue
		}
		docs = append(docs, Document{Path: filepath.Join(dir, ent.Name())})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// Failures returns the reports of documents that did not ingest.
func (r *RunReport) Failures() []DocumentReport {
	var out []DocumentReport
	for _, d := range r.Documents {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// StoreFailed reports whether any document in the run hit a store error.
func (r *RunReport) StoreFailed() bool {
	for _, d := range r.Documents {
		if errors.Is(d.Err, ErrStoreFailure) {
			return true
		}
	}
	return false
}
