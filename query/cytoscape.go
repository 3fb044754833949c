package query

import "github.com/brunobiangulo/papergraph/value"

// CytoscapeGraph is the {"elements": [...]} document consumed by
// Cytoscape.js front ends.
type CytoscapeGraph struct {
	Elements []CytoscapeElement `json:"elements"`
}

// CytoscapeElement wraps one node or edge payload under "data".
type CytoscapeElement struct {
	Data CytoscapeData `json:"data"`
}

// CytoscapeData carries node fields (type set) or edge fields (source and
// target set). Edge relation types are rendered as the element label.
type CytoscapeData struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Type       string    `json:"type,omitempty"`
	Source     string    `json:"source,omitempty"`
	Target     string    `json:"target,omitempty"`
	Properties value.Map `json:"properties"`
}

// Cytoscape renders g as Cytoscape elements: nodes first, then edges.
// Edge IDs get an "e" prefix since Cytoscape shares one ID namespace
// between nodes and edges.
func (g *Graph) Cytoscape() CytoscapeGraph {
	out := CytoscapeGraph{Elements: make([]CytoscapeElement, 0, len(g.Nodes)+len(g.Edges))}
	for _, n := range g.Nodes {
		out.Elements = append(out.Elements, CytoscapeElement{Data: CytoscapeData{
			ID:         n.ID,
			Label:      n.Label,
			Type:       n.Type,
			Properties: n.Properties,
		}})
	}
	for _, e := range g.Edges {
		out.Elements = append(out.Elements, CytoscapeElement{Data: CytoscapeData{
			ID:         "e" + e.ID,
			Label:      e.RelationType,
			Source:     e.SourceID,
			Target:     e.TargetID,
			Properties: e.Properties,
		}})
	}
	return out
}
