package graph

import "github.com/brunobiangulo/papergraph/value"

// Node type values suggested to the model. The schema does not restrict
// types to this set.
const (
	TypePaper   = "PAPER"
	TypeConcept = "CONCEPT"
	TypeMethod  = "METHOD"
	TypeAuthor  = "AUTHOR"
	TypeMetric  = "METRIC"
	TypeDataset = "DATASET"
)

// Relation type values suggested to the model.
const (
	RelIntroduces = "INTRODUCES"
	RelImprovesOn = "IMPROVES_ON"
	RelUses       = "USES"
	RelEvaluates  = "EVALUATES_ON"
	RelAuthoredBy = "AUTHORED_BY"
	RelExtends    = "EXTENDS"
)

// ExtractedNode is a candidate node returned by the model.
type ExtractedNode struct {
	Label      string    `json:"label"`
	Type       string    `json:"type"`
	Properties value.Map `json:"properties,omitempty"`
}

// ExtractedEdge is a candidate edge returned by the model. Endpoints are
// referenced by node label, not by stored ID.
type ExtractedEdge struct {
	SourceLabel  string    `json:"source_label"`
	TargetLabel  string    `json:"target_label"`
	RelationType string    `json:"relation_type"`
	Properties   value.Map `json:"properties,omitempty"`
}

// Extraction holds the structured output for one document. A failed
// extraction is empty and carries the reason in Failure.
type Extraction struct {
	Nodes   []ExtractedNode `json:"nodes"`
	Edges   []ExtractedEdge `json:"edges"`
	Failure error           `json:"-"`
	// Cached is set when the response came from the extraction cache.
	Cached bool `json:"-"`
}

// Failed reports whether the extraction fell back to the empty result.
func (e Extraction) Failed() bool { return e.Failure != nil }

// Empty returns the empty extraction, optionally annotated with a failure.
func Empty(failure error) Extraction {
	return Extraction{Nodes: []ExtractedNode{}, Edges: []ExtractedEdge{}, Failure: failure}
}
