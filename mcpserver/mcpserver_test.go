package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/query"
	"github.com/brunobiangulo/papergraph/store"
	"github.com/brunobiangulo/papergraph/value"
)

type fakeService struct {
	err      error
	ingested map[string]string
}

func (f *fakeService) Ingest(_ context.Context, id, text string) (*papergraph.IngestResult, error) {
	if f.ingested == nil {
		f.ingested = map[string]string{}
	}
	f.ingested[id] = text
	return &papergraph.IngestResult{DocumentID: id, NodesWritten: 3}, f.err
}

func (f *fakeService) IngestFile(_ context.Context, path string) (*papergraph.IngestResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &papergraph.IngestResult{DocumentID: path}, nil
}

func (f *fakeService) Graph(context.Context) (*query.Graph, error) { return sample(), f.err }

func (f *fakeService) Subgraph(_ context.Context, doc string) (*query.Graph, error) {
	if doc != "doc1" {
		return &query.Graph{Nodes: []query.NodeElement{}, Edges: []query.EdgeElement{}}, f.err
	}
	return sample(), f.err
}

func (f *fakeService) Documents(context.Context) ([]string, error) {
	return []string{"doc1", "doc2"}, f.err
}

func (f *fakeService) Stats(context.Context) (store.Stats, error) {
	return store.Stats{Nodes: 2, Edges: 1, Sources: 1}, f.err
}

func sample() *query.Graph {
	return &query.Graph{
		Nodes: []query.NodeElement{
			{ID: "1", Label: "BERT", Type: "METHOD", Properties: value.Map{"source": value.StringOf("doc1")}},
			{ID: "2", Label: "GLUE", Type: "DATASET", Properties: value.Map{"source": value.StringOf("doc1")}},
		},
		Edges: []query.EdgeElement{
			{ID: "5", SourceID: "1", TargetID: "2", RelationType: "EVALUATES_ON", Properties: value.Map{}},
		},
	}
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return tc.Text
}

func TestNewRegistersServer(t *testing.T) {
	assert.NotNil(t, New(&fakeService{}, "test"))
}

func TestListDocuments(t *testing.T) {
	h := &handlers{svc: &fakeService{}}
	res, err := h.handleListDocuments(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `["doc1","doc2"]`, text(t, res))
}

func TestGetDocumentGraph(t *testing.T) {
	h := &handlers{svc: &fakeService{}}
	ctx := context.Background()

	res, err := h.handleGetDocumentGraph(ctx, call(map[string]any{"document_id": "doc1"}))
	require.NoError(t, err)
	var g query.Graph
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &g))
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 1)

	res, err = h.handleGetDocumentGraph(ctx, call(map[string]any{"document_id": "doc1", "format": "cytoscape"}))
	require.NoError(t, err)
	var cy query.CytoscapeGraph
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &cy))
	assert.Len(t, cy.Elements, 3)
	assert.Equal(t, "e5", cy.Elements[2].Data.ID)

	res, err = h.handleGetDocumentGraph(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.handleGetDocumentGraph(ctx, call(map[string]any{"document_id": "doc1", "format": "svg"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGetGraphError(t *testing.T) {
	h := &handlers{svc: &fakeService{err: errors.New("db down")}}
	res, err := h.handleGetGraph(context.Background(), call(nil))
	require.NoError(t, err, "tool failures are reported in the result")
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "db down")
}

func TestIngestDocument(t *testing.T) {
	svc := &fakeService{}
	h := &handlers{svc: svc}
	ctx := context.Background()

	res, err := h.handleIngestDocument(ctx, call(map[string]any{"document_id": "bert.pdf", "text": "BERT uses GLUE"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "BERT uses GLUE", svc.ingested["bert.pdf"])

	var out papergraph.IngestResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.Equal(t, 3, out.NodesWritten)

	res, err = h.handleIngestDocument(ctx, call(map[string]any{"document_id": "bert.pdf"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestIngestFile(t *testing.T) {
	h := &handlers{svc: &fakeService{err: papergraph.ErrUnsupportedFormat}}
	res, err := h.handleIngestFile(context.Background(), call(map[string]any{"path": "deck.pptx"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.handleIngestFile(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestStatsResource(t *testing.T) {
	h := &handlers{svc: &fakeService{}}
	var req mcp.ReadResourceRequest
	req.Params.URI = statsURI

	contents, err := h.handleStatsResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.JSONEq(t, `{"nodes":2,"edges":1,"sources":1}`, tc.Text)
}
