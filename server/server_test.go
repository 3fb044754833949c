package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/query"
	"github.com/brunobiangulo/papergraph/store"
	"github.com/brunobiangulo/papergraph/value"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	graphs    map[string]*query.Graph
	docs      []string
	err       error
	ingestErr error
	ingested  []string
	files     []string
}

func (f *fakeService) Ingest(_ context.Context, id, text string) (*papergraph.IngestResult, error) {
	f.ingested = append(f.ingested, id+":"+text)
	return &papergraph.IngestResult{DocumentID: id, NodesWritten: 2, EdgesWritten: 1}, f.ingestErr
}

func (f *fakeService) IngestFile(_ context.Context, path string) (*papergraph.IngestResult, error) {
	f.files = append(f.files, path)
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &papergraph.IngestResult{DocumentID: filepath.Base(path), NodesWritten: 1}, nil
}

func (f *fakeService) Graph(context.Context) (*query.Graph, error) {
	return f.graphs[""], f.err
}

func (f *fakeService) Subgraph(_ context.Context, doc string) (*query.Graph, error) {
	if f.err != nil {
		return nil, f.err
	}
	if g, ok := f.graphs[doc]; ok {
		return g, nil
	}
	return &query.Graph{Nodes: []query.NodeElement{}, Edges: []query.EdgeElement{}}, nil
}

func (f *fakeService) Documents(context.Context) ([]string, error) { return f.docs, f.err }

func (f *fakeService) Stats(context.Context) (store.Stats, error) {
	return store.Stats{Nodes: 3, Edges: 1, Sources: 1}, f.err
}

func sampleGraph() *query.Graph {
	src := value.Map{"source": value.StringOf("doc1")}
	return &query.Graph{
		Nodes: []query.NodeElement{
			{ID: "1", Label: "Transformer", Type: "METHOD", Properties: src},
			{ID: "2", Label: "WMT14", Type: "DATASET", Properties: src},
		},
		Edges: []query.EdgeElement{
			{ID: "7", SourceID: "1", TargetID: "2", RelationType: "EVALUATES_ON", Properties: value.Map{}},
		},
	}
}

func newTestServer(t *testing.T, svc Service, opts Options) *Server {
	t.Helper()
	if opts.UploadDir == "" {
		opts.UploadDir = t.TempDir()
	}
	return NewServer(svc, opts)
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})
	w := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := do(s, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestPapers(t *testing.T) {
	s := newTestServer(t, &fakeService{docs: []string{"attention.pdf", "bert.pdf"}}, Options{})
	w := do(s, httptest.NewRequest(http.MethodGet, "/api/papers", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"source":"attention.pdf"},{"source":"bert.pdf"}]`, w.Body.String())

	s = newTestServer(t, &fakeService{}, Options{})
	w = do(s, httptest.NewRequest(http.MethodGet, "/api/papers", nil))
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGraphCytoscape(t *testing.T) {
	svc := &fakeService{graphs: map[string]*query.Graph{"doc1": sampleGraph()}}
	s := newTestServer(t, svc, Options{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/api/graph?paper=doc1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"elements":[
		{"data":{"id":"1","label":"Transformer","type":"METHOD","properties":{"source":"doc1"}}},
		{"data":{"id":"2","label":"WMT14","type":"DATASET","properties":{"source":"doc1"}}},
		{"data":{"id":"e7","label":"EVALUATES_ON","source":"1","target":"2","properties":{}}}
	]}`, w.Body.String())

	w = do(s, httptest.NewRequest(http.MethodGet, "/api/graph?paper=unknown", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"elements":[]}`, w.Body.String())
}

func TestGraphElementsFormat(t *testing.T) {
	svc := &fakeService{graphs: map[string]*query.Graph{"": sampleGraph()}}
	s := newTestServer(t, svc, Options{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/api/graph?format=elements", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var g query.Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Len(t, g.Nodes, 2)
	assert.Equal(t, "EVALUATES_ON", g.Edges[0].RelationType)

	w = do(s, httptest.NewRequest(http.MethodGet, "/api/graph?format=dot", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphStoreError(t *testing.T) {
	s := newTestServer(t, &fakeService{err: errors.New("connection refused")}, Options{})
	w := do(s, httptest.NewRequest(http.MethodGet, "/api/graph", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestIngestJSON(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc, Options{})

	body := `{"document_id":"doc1","text":"We propose the Transformer."}`
	w := do(s, httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"doc1:We propose the Transformer."}, svc.ingested)

	var resp struct {
		Result papergraph.IngestResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Result.NodesWritten)

	w = do(s, httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{"text":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestStoreFailureReturnsPartialResult(t *testing.T) {
	svc := &fakeService{ingestErr: fmt.Errorf("%w: disk full", papergraph.ErrStoreFailure)}
	s := newTestServer(t, svc, Options{})

	w := do(s, httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{"document_id":"d","text":"t"}`)))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp struct {
		Error  string                   `json:"error"`
		Result *papergraph.IngestResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Failed to write graph", resp.Error)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 2, resp.Result.NodesWritten)
}

func multipartUpload(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	svc := &fakeService{}
	dir := t.TempDir()
	s := newTestServer(t, svc, Options{UploadDir: dir})

	w := do(s, multipartUpload(t, "paper", "../../attention.txt", "abstract"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	saved := filepath.Join(dir, "attention.txt")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "abstract", string(data))
	assert.Equal(t, []string{saved}, svc.files)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "attention.txt", resp["filename"])
	assert.Equal(t, "Paper uploaded and processed", resp["message"])
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})
	w := do(s, multipartUpload(t, "file", "a.pdf", "x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"No file uploaded"}`, w.Body.String())

	svc := &fakeService{ingestErr: fmt.Errorf("%w: pptx", papergraph.ErrUnsupportedFormat)}
	s = newTestServer(t, svc, Options{})
	w = do(s, multipartUpload(t, "paper", "slides.pptx", "x"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	s = newTestServer(t, &fakeService{}, Options{MaxUploadBytes: 256})
	w = do(s, multipartUpload(t, "paper", "big.txt", strings.Repeat("x", 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{APIKey: "secret"})

	w := do(s, httptest.NewRequest(http.MethodGet, "/api/papers", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/papers", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = do(s, req)
	assert.Equal(t, http.StatusOK, w.Code)

	for _, header := range []string{"Bearer secre", "Bearer secret2", "Bearer ", "secret", "Basic secret"} {
		req = httptest.NewRequest(http.MethodGet, "/api/papers", nil)
		req.Header.Set("Authorization", header)
		assert.Equal(t, http.StatusUnauthorized, do(s, req).Code, header)
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health is public")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{CORSOrigins: "*"})
	w := do(s, httptest.NewRequest(http.MethodOptions, "/api/graph", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})
	w := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{papergraph.ErrInvalidDocument, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", papergraph.ErrParsingFailed), http.StatusUnprocessableEntity},
		{papergraph.ErrEngineClosed, http.StatusServiceUnavailable},
		{NewAppError(http.StatusTeapot, "teapot", nil), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, MapError(tt.err).Code, tt.err.Error())
	}
	assert.Nil(t, MapError(nil))
}
