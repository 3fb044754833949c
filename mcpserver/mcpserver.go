// Package mcpserver exposes the paper graph to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/query"
	"github.com/brunobiangulo/papergraph/store"
)

const statsURI = "papergraph://graph/stats"

// Service is the subset of *papergraph.Engine exposed as MCP tools.
type Service interface {
	Ingest(ctx context.Context, documentID, text string) (*papergraph.IngestResult, error)
	IngestFile(ctx context.Context, path string) (*papergraph.IngestResult, error)
	Graph(ctx context.Context) (*query.Graph, error)
	Subgraph(ctx context.Context, documentID string) (*query.Graph, error)
	Documents(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (store.Stats, error)
}

var _ Service = (*papergraph.Engine)(nil)

type handlers struct {
	svc Service
}

// New builds an MCP server with the graph tools and resources registered.
func New(svc Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"papergraph",
		version,
		server.WithResourceCapabilities(false, false),
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	h := &handlers{svc: svc}

	s.AddResource(
		mcp.NewResource(
			statsURI,
			"Graph Statistics",
			mcp.WithResourceDescription("Node, edge and document counts of the paper graph"),
			mcp.WithMIMEType("application/json"),
		),
		h.handleStatsResource,
	)

	s.AddTool(
		mcp.NewTool(
			"list_documents",
			mcp.WithDescription("List the documents (papers) that have contributed nodes to the graph."),
		),
		h.handleListDocuments,
	)

	s.AddTool(
		mcp.NewTool(
			"get_graph",
			mcp.WithDescription("Return every node and edge in the paper graph."),
			mcp.WithString("format", mcp.Description("elements (default) or cytoscape")),
		),
		h.handleGetGraph,
	)

	s.AddTool(
		mcp.NewTool(
			"get_document_graph",
			mcp.WithDescription("Return the nodes extracted from one document and the edges between them."),
			mcp.WithString("document_id", mcp.Required(), mcp.Description("Document identifier, usually the file name")),
			mcp.WithString("format", mcp.Description("elements (default) or cytoscape")),
		),
		h.handleGetDocumentGraph,
	)

	s.AddTool(
		mcp.NewTool(
			"ingest_document",
			mcp.WithDescription("Extract concepts and relations from paper text and merge them into the graph."),
			mcp.WithString("document_id", mcp.Required(), mcp.Description("Identifier recorded as the source of extracted nodes")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Full paper text, markdown preferred")),
		),
		h.handleIngestDocument,
	)

	s.AddTool(
		mcp.NewTool(
			"ingest_file",
			mcp.WithDescription("Parse a local PDF, HTML, XLSX or text file and ingest it under its file name."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path readable by the server process")),
		),
		h.handleIngestFile,
	)

	return s
}

// Run serves the MCP protocol on stdio until the client disconnects or ctx
// is cancelled.
func Run(ctx context.Context, svc Service, version string) error {
	s := New(svc, version)
	slog.Info("Starting MCP server on Stdio")
	return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
}

func (h *handlers) handleStatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.svc.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) handleListDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := h.svc.Documents(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing documents failed: %v", err)), nil
	}
	return jsonResult(docs)
}

func (h *handlers) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := h.svc.Graph(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading graph failed: %v", err)), nil
	}
	return graphResult(g, request)
}

func (h *handlers) handleGetDocumentGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	docID, ok := args["document_id"].(string)
	if !ok || docID == "" {
		return mcp.NewToolResultError("document_id argument required"), nil
	}
	g, err := h.svc.Subgraph(ctx, docID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading graph for %s failed: %v", docID, err)), nil
	}
	return graphResult(g, request)
}

func (h *handlers) handleIngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	docID, ok := args["document_id"].(string)
	if !ok || docID == "" {
		return mcp.NewToolResultError("document_id argument required"), nil
	}
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return mcp.NewToolResultError("text argument required"), nil
	}
	res, err := h.svc.Ingest(ctx, docID, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}
	return jsonResult(res)
}

func (h *handlers) handleIngestFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, ok := request.GetArguments()["path"].(string)
	if !ok || path == "" {
		return mcp.NewToolResultError("path argument required"), nil
	}
	res, err := h.svc.IngestFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}
	return jsonResult(res)
}

func graphResult(g *query.Graph, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, _ := request.GetArguments()["format"].(string)
	switch format {
	case "", "elements":
		return jsonResult(g)
	case "cytoscape":
		return jsonResult(g.Cytoscape())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
