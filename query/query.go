// Package query projects stored graph rows into the element model served to
// visualisation clients.
package query

import (
	"context"
	"fmt"
	"strconv"

	"github.com/brunobiangulo/papergraph/store"
	"github.com/brunobiangulo/papergraph/value"
)

// NodeElement is a node as exposed to consumers. IDs are decimal strings.
type NodeElement struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Type       string    `json:"type"`
	Properties value.Map `json:"properties"`
}

// EdgeElement is an edge as exposed to consumers.
type EdgeElement struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"sourceId"`
	TargetID     string    `json:"targetId"`
	RelationType string    `json:"relationType"`
	Properties   value.Map `json:"properties"`
}

// Graph is a set of node and edge elements.
type Graph struct {
	Nodes []NodeElement `json:"nodes"`
	Edges []EdgeElement `json:"edges"`
}

// Adapter reads from a graph store and shapes the result for consumers.
type Adapter struct {
	reader store.Reader
}

// NewAdapter creates an adapter over r.
func NewAdapter(r store.Reader) *Adapter {
	return &Adapter{reader: r}
}

// FullGraph returns every node and edge regardless of provenance.
func (a *Adapter) FullGraph(ctx context.Context) (*Graph, error) {
	nodes, err := a.reader.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: listing nodes: %w", err)
	}
	edges, err := a.reader.ListEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: listing edges: %w", err)
	}
	return project(nodes, edges), nil
}

// DocumentGraph returns the nodes whose source is documentID and the edges
// whose two endpoints are both such nodes. Edges crossing into another
// document appear only in FullGraph.
func (a *Adapter) DocumentGraph(ctx context.Context, documentID string) (*Graph, error) {
	nodes, err := a.reader.ListNodesBySource(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query: listing nodes for %q: %w", documentID, err)
	}
	edges, err := a.reader.ListEdgesBySource(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query: listing edges for %q: %w", documentID, err)
	}
	return project(nodes, edges), nil
}

// Documents lists the known document identifiers.
func (a *Adapter) Documents(ctx context.Context) ([]string, error) {
	sources, err := a.reader.ListDistinctSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: listing documents: %w", err)
	}
	return sources, nil
}

func project(nodes []store.Node, edges []store.Edge) *Graph {
	g := &Graph{
		Nodes: make([]NodeElement, 0, len(nodes)),
		Edges: make([]EdgeElement, 0, len(edges)),
	}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, NodeElement{
			ID:         formatID(n.ID),
			Label:      n.Label,
			Type:       n.Type,
			Properties: orEmpty(n.Properties),
		})
	}
	for _, e := range edges {
		g.Edges = append(g.Edges, EdgeElement{
			ID:           formatID(e.ID),
			SourceID:     formatID(e.SourceID),
			TargetID:     formatID(e.TargetID),
			RelationType: e.RelationType,
			Properties:   orEmpty(e.Properties),
		})
	}
	return g
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func orEmpty(m value.Map) value.Map {
	if m == nil {
		return value.Map{}
	}
	return m
}
