// Package papergraph builds a knowledge graph of research papers: an LLM
// extracts typed concepts and relations from each paper's text, and the
// result is merged into a shared graph store with per-node provenance.
package papergraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/brunobiangulo/papergraph/cache"
	"github.com/brunobiangulo/papergraph/graph"
	"github.com/brunobiangulo/papergraph/llm"
	"github.com/brunobiangulo/papergraph/parser"
	"github.com/brunobiangulo/papergraph/query"
	"github.com/brunobiangulo/papergraph/store"
)

const tracerName = "github.com/brunobiangulo/papergraph"

// IngestResult reports the outcome of ingesting one document.
type IngestResult struct {
	DocumentID       string              `json:"document_id"`
	NodesWritten     int                 `json:"nodes_written"`
	EdgesWritten     int                 `json:"edges_written"`
	EdgesSkipped     int                 `json:"edges_skipped"`
	Skipped          []graph.SkippedEdge `json:"skipped,omitempty"`
	ExtractionFailed bool                `json:"extraction_failed"`
	ExtractionError  string              `json:"extraction_error,omitempty"`
	ExtractionCached bool                `json:"extraction_cached,omitempty"`
	Elapsed          time.Duration       `json:"elapsed"`
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	atomic         bool
	tracerProvider trace.TracerProvider
	parsers        *parser.Registry
	concurrency    int
	extractTimeout time.Duration
	model          string
	cache          cache.Cache
}

// WithAtomicBatches commits each document in a single store transaction.
func WithAtomicBatches() Option {
	return func(o *options) { o.atomic = true }
}

// WithTracerProvider sets the OpenTelemetry provider used for ingest spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithParsers replaces the built-in parser registry.
func WithParsers(r *parser.Registry) Option {
	return func(o *options) { o.parsers = r }
}

// WithConcurrency bounds the documents IngestAll processes at once.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithExtractTimeout caps each extraction call.
func WithExtractTimeout(d time.Duration) Option {
	return func(o *options) { o.extractTimeout = d }
}

// WithExtractionCache reuses extraction responses for unchanged documents.
// The engine closes c on Close.
func WithExtractionCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithModel overrides the model named in extraction requests.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// Engine ties extraction, commit and query together over one owned store.
type Engine struct {
	store     store.GraphStore
	chat      llm.Provider
	parsers   *parser.Registry
	extractor *graph.Extractor
	committer *graph.Committer
	query     *query.Adapter
	tracer    trace.Tracer
	cache     cache.Cache

	concurrency int

	closeOnce sync.Once
	closed    chan struct{}
}

// New opens the store and LLM provider described by cfg and returns an
// engine owning both.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chat, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	c, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		release(s, chat)
		return nil, fmt.Errorf("opening extraction cache: %w", err)
	}

	return NewEngine(s, chat, append(configOptions(cfg, c), opts...)...), nil
}

// release closes whatever New opened before a later step failed.
func release(s io.Closer, chat llm.Provider) {
	if err := s.Close(); err != nil {
		slog.Warn("closing store after failed setup", "error", err)
	}
	if c, ok := chat.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("closing chat provider after failed setup", "error", err)
		}
	}
}

// configOptions translates cfg into engine options. c may be nil.
func configOptions(cfg Config, c cache.Cache) []Option {
	opts := []Option{
		WithConcurrency(cfg.IngestConcurrency),
		WithExtractTimeout(cfg.ExtractTimeout),
	}
	if cfg.LLM.Model != "" {
		opts = append(opts, WithModel(cfg.LLM.Model))
	}
	if cfg.AtomicBatches {
		opts = append(opts, WithAtomicBatches())
	}
	if c != nil {
		opts = append(opts, WithExtractionCache(c))
	}
	return opts
}

// NewEngine builds an engine over an existing store and provider. The
// engine takes ownership of both and releases them on Close.
func NewEngine(s store.GraphStore, chat llm.Provider, opts ...Option) *Engine {
	o := options{concurrency: 1}
	for _, fn := range opts {
		fn(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.parsers == nil {
		o.parsers = parser.NewRegistry()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}

	var xopts []graph.ExtractorOption
	if o.extractTimeout > 0 {
		xopts = append(xopts, graph.WithTimeout(o.extractTimeout))
	}
	if o.model != "" {
		xopts = append(xopts, graph.WithModel(o.model))
	}
	if o.cache != nil {
		xopts = append(xopts, graph.WithCache(o.cache))
	}
	var copts []graph.CommitterOption
	if o.atomic {
		copts = append(copts, graph.WithAtomicBatches())
	}

	return &Engine{
		store:       s,
		chat:        chat,
		parsers:     o.parsers,
		extractor:   graph.NewExtractor(chat, xopts...),
		committer:   graph.NewCommitter(s, copts...),
		query:       query.NewAdapter(s),
		tracer:      o.tracerProvider.Tracer(tracerName),
		cache:       o.cache,
		concurrency: o.concurrency,
		closed:      make(chan struct{}),
	}
}

// Ingest extracts a graph from text and merges it into the store under
// documentID. Extraction failures are absorbed: the result is flagged and
// nothing is written. Store failures are returned wrapped in
// ErrStoreFailure together with the partial result.
func (e *Engine) Ingest(ctx context.Context, documentID, text string) (*IngestResult, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, ErrInvalidDocument
	}
	if e.isClosed() {
		return nil, ErrEngineClosed
	}

	ctx, span := e.tracer.Start(ctx, "papergraph.Ingest",
		trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	start := time.Now()
	slog.Info("ingest: extracting graph", "document", documentID, "chars", len(text))

	ex := e.extract(ctx, text)
	res := &IngestResult{
		DocumentID:       documentID,
		ExtractionFailed: ex.Failed(),
		ExtractionCached: ex.Cached,
	}
	if ex.Cached {
		extractionCacheHits.Inc()
	}
	if ex.Failed() {
		res.ExtractionError = ex.Failure.Error()
	}

	report, err := e.commit(ctx, documentID, ex)
	res.NodesWritten = report.NodesWritten
	res.EdgesWritten = report.EdgesWritten
	res.EdgesSkipped = report.EdgesSkipped
	res.Skipped = report.Skipped
	res.Elapsed = time.Since(start)

	nodesWritten.Add(float64(report.NodesWritten))
	edgesWritten.Add(float64(report.EdgesWritten))
	edgesSkipped.Add(float64(report.EdgesSkipped))

	span.SetAttributes(
		attribute.Int("graph.nodes_written", res.NodesWritten),
		attribute.Int("graph.edges_written", res.EdgesWritten),
		attribute.Int("graph.edges_skipped", res.EdgesSkipped),
		attribute.Bool("graph.extraction_failed", res.ExtractionFailed),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph store failure")
		observe(statusStoreFailed, res.Elapsed)
		slog.Error("ingest: commit failed", "document", documentID,
			"nodes_written", res.NodesWritten, "edges_written", res.EdgesWritten, "error", err)
		return res, fmt.Errorf("%w: document %q: %w", ErrStoreFailure, documentID, err)
	}

	status := statusOK
	if res.ExtractionFailed {
		status = statusExtractionFailed
	}
	observe(status, res.Elapsed)
	slog.Info("ingest: document complete", "document", documentID,
		"nodes", res.NodesWritten, "edges", res.EdgesWritten, "skipped", res.EdgesSkipped,
		"extraction_failed", res.ExtractionFailed, "elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (e *Engine) extract(ctx context.Context, text string) graph.Extraction {
	ctx, span := e.tracer.Start(ctx, "papergraph.Extract")
	defer span.End()

	ex := e.extractor.Extract(ctx, text)
	if ex.Failed() {
		span.RecordError(ex.Failure)
		span.SetStatus(codes.Error, "extraction failed")
	}
	span.SetAttributes(
		attribute.Int("graph.nodes_extracted", len(ex.Nodes)),
		attribute.Int("graph.edges_extracted", len(ex.Edges)),
		attribute.Bool("graph.extraction_cached", ex.Cached),
	)
	return ex
}

func (e *Engine) commit(ctx context.Context, documentID string, ex graph.Extraction) (graph.CommitReport, error) {
	ctx, span := e.tracer.Start(ctx, "papergraph.Commit")
	defer span.End()

	report, err := e.committer.Commit(ctx, documentID, ex)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

func observe(status string, elapsed time.Duration) {
	documentsProcessed.WithLabelValues(status).Inc()
	ingestDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// Graph returns every node and edge in the store.
func (e *Engine) Graph(ctx context.Context) (*query.Graph, error) {
	return e.query.FullGraph(ctx)
}

// Subgraph returns the nodes provenanced to documentID and the edges
// between them.
func (e *Engine) Subgraph(ctx context.Context, documentID string) (*query.Graph, error) {
	if documentID == "" {
		return nil, ErrInvalidDocument
	}
	return e.query.DocumentGraph(ctx, documentID)
}

// Documents lists the distinct document identifiers recorded on nodes.
func (e *Engine) Documents(ctx context.Context) ([]string, error) {
	return e.query.Documents(ctx)
}

// Stats reports node, edge and document counts.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return store.Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	return *st, nil
}

// BackfillSource stamps documentID on every node that has no source and
// returns how many nodes changed.
func (e *Engine) BackfillSource(ctx context.Context, documentID string) (int64, error) {
	if documentID == "" {
		return 0, ErrInvalidDocument
	}
	n, err := e.store.BackfillSource(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("backfilling source: %w", err)
	}
	slog.Info("store: backfilled source", "document", documentID, "nodes", n)
	return n, nil
}

// Parsers exposes the registry used by IngestFile.
func (e *Engine) Parsers() *parser.Registry { return e.parsers }

// Close releases the store, the extraction cache and, when it holds
// resources, the LLM provider.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		err = e.store.Close()
		if e.cache != nil {
			err = errors.Join(err, e.cache.Close())
		}
		if c, ok := e.chat.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	})
	return err
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}
