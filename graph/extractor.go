package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/papergraph/cache"
	"github.com/brunobiangulo/papergraph/llm"
)

// extractionPrompt is the system prompt for knowledge extraction from
// research papers. The JSON schema is appended so providers without native
// structured output still see the expected shape.
const extractionPrompt = `You are an AI Researcher building a Knowledge Graph. Read the paper text. Extract key concepts. Focus on **semantic novelty**.

Rules:
1. Identify the main paper, authors, methods proposed, metrics used, and datasets.
2. If Paper A renders faster than Paper B, create an 'IMPROVES_ON' edge with property {'aspect': 'rendering_speed'}.
3. Do not just dump citations. Focus on the core contributions and relationships.
4. Ensure every 'source_label' and 'target_label' in edges exists in the 'nodes' list.

Suggested node types: PAPER, CONCEPT, METHOD, AUTHOR, METRIC, DATASET.
Suggested relation types: INTRODUCES, IMPROVES_ON, USES, EVALUATES_ON, AUTHORED_BY, EXTENDS.

Return a single JSON object matching this schema and nothing else:
%s`

// Extractor turns document text into candidate nodes and edges with one
// structured model call.
type Extractor struct {
	chat    llm.Provider
	model   string
	timeout time.Duration
	cache   cache.Cache
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithModel overrides the provider's default model.
func WithModel(model string) ExtractorOption {
	return func(e *Extractor) { e.model = model }
}

// WithTimeout bounds each extraction call. Zero means no bound.
func WithTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) { e.timeout = d }
}

// WithCache reuses validated responses for identical (model, text) pairs.
// The model is the provider's reported default plus any WithModel override.
// Cache errors are logged and otherwise ignored.
func WithCache(c cache.Cache) ExtractorOption {
	return func(e *Extractor) { e.cache = c }
}

// NewExtractor creates an extractor backed by the given provider.
func NewExtractor(chat llm.Provider, opts ...ExtractorOption) *Extractor {
	e := &Extractor{chat: chat}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract asks the model for the knowledge graph of text. It never returns
// an error: any failure yields the empty extraction with Failure set.
func (x *Extractor) Extract(ctx context.Context, text string) Extraction {
	start := time.Now()
	ex, err := x.extract(ctx, text)
	if err != nil {
		slog.Warn("graph: extraction failed, continuing with empty result",
			"error", err, "elapsed", time.Since(start).Round(time.Millisecond))
		return Empty(err)
	}
	slog.Debug("graph: extraction complete",
		"nodes", len(ex.Nodes), "edges", len(ex.Edges),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return ex
}

func (x *Extractor) extract(ctx context.Context, text string) (Extraction, error) {
	var key string
	if x.cache != nil {
		key = cache.Key(SchemaName, llm.ModelOf(x.chat), x.model, text)
		if ex, ok := x.cached(ctx, key); ok {
			return ex, nil
		}
	}

	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	schema := ExtractionSchema()
	resp, err := x.chat.Chat(ctx, llm.ChatRequest{
		Model: x.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(extractionPrompt, schema.JSON())},
			{Role: llm.RoleUser, Content: text},
		},
		Temperature: 0,
		Schema:      schema,
		SchemaName:  SchemaName,
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("extraction llm chat: %w", err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return Extraction{}, fmt.Errorf("parsing extraction result: %w", err)
	}

	ex, err := ValidateExtraction(jsonStr)
	if err != nil {
		return Extraction{}, err
	}
	if x.cache != nil {
		if err := x.cache.Set(ctx, key, []byte(jsonStr)); err != nil {
			slog.Warn("graph: caching extraction failed", "error", err)
		}
	}
	return ex, nil
}

func (x *Extractor) cached(ctx context.Context, key string) (Extraction, bool) {
	raw, ok, err := x.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("graph: extraction cache unavailable", "error", err)
		return Extraction{}, false
	}
	if !ok {
		return Extraction{}, false
	}
	ex, err := ValidateExtraction(string(raw))
	if err != nil {
		slog.Warn("graph: discarding invalid cached extraction", "error", err)
		return Extraction{}, false
	}
	slog.Debug("graph: extraction cache hit", "key", key[:12])
	ex.Cached = true
	return ex, true
}
