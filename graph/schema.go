package graph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/brunobiangulo/papergraph/llm"
	"github.com/brunobiangulo/papergraph/value"
)

// SchemaName labels the extraction schema for providers that require one.
const SchemaName = "knowledge_graph"

// ExtractionSchema returns the fixed schema the model is asked to fill.
// It documents, but cannot enforce, that edge labels appear among nodes.
func ExtractionSchema() *llm.Schema {
	props := func(desc string) *llm.Schema {
		return &llm.Schema{Type: "object", Description: desc}
	}
	str := func(desc string) *llm.Schema {
		return &llm.Schema{Type: "string", Description: desc}
	}
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"nodes": {
				Type:        "array",
				Description: "List of entities extracted from the text",
				Items: &llm.Schema{
					Type: "object",
					Properties: map[string]*llm.Schema{
						"label":      str("The unique name or identifier of the entity"),
						"type":       str("The type of the entity (e.g. PAPER, CONCEPT, METHOD)"),
						"properties": props("Additional metadata about the entity"),
					},
					Required: []string{"label", "type"},
				},
			},
			"edges": {
				Type:        "array",
				Description: "List of relationships between the extracted entities",
				Items: &llm.Schema{
					Type: "object",
					Properties: map[string]*llm.Schema{
						"source_label":  str("The label of the source node; must appear in nodes"),
						"target_label":  str("The label of the target node; must appear in nodes"),
						"relation_type": str("The type of relationship (e.g. INTRODUCES, IMPROVES_ON)"),
						"properties":    props("Reasoning and other metadata for the relationship"),
					},
					Required: []string{"source_label", "target_label", "relation_type"},
				},
			},
		},
		Required: []string{"nodes", "edges"},
	}
}

// ValidationError describes where a model response departs from the schema.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid extraction: " + e.Reason
	}
	return fmt.Sprintf("invalid extraction at %s: %s", e.Path, e.Reason)
}

func invalid(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ValidateExtraction parses a raw JSON document and checks it against the
// extraction schema. It returns either the typed extraction or a
// *ValidationError; never both.
func ValidateExtraction(raw string) (Extraction, error) {
	if !gjson.Valid(raw) {
		return Extraction{}, invalid("", "response is not valid JSON")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return Extraction{}, invalid("", "top level must be an object")
	}

	nodesRes := root.Get("nodes")
	if !nodesRes.IsArray() {
		return Extraction{}, invalid("nodes", "must be an array")
	}
	edgesRes := root.Get("edges")
	if !edgesRes.IsArray() {
		return Extraction{}, invalid("edges", "must be an array")
	}

	out := Extraction{Nodes: []ExtractedNode{}, Edges: []ExtractedEdge{}}

	for i, n := range nodesRes.Array() {
		path := fmt.Sprintf("nodes[%d]", i)
		if !n.IsObject() {
			return Extraction{}, invalid(path, "must be an object")
		}
		label, err := requiredString(n, path, "label")
		if err != nil {
			return Extraction{}, err
		}
		typ, err := requiredString(n, path, "type")
		if err != nil {
			return Extraction{}, err
		}
		props, err := optionalProperties(n, path)
		if err != nil {
			return Extraction{}, err
		}
		out.Nodes = append(out.Nodes, ExtractedNode{Label: label, Type: typ, Properties: props})
	}

	for i, e := range edgesRes.Array() {
		path := fmt.Sprintf("edges[%d]", i)
		if !e.IsObject() {
			return Extraction{}, invalid(path, "must be an object")
		}
		src, err := requiredString(e, path, "source_label")
		if err != nil {
			return Extraction{}, err
		}
		dst, err := requiredString(e, path, "target_label")
		if err != nil {
			return Extraction{}, err
		}
		rel, err := requiredString(e, path, "relation_type")
		if err != nil {
			return Extraction{}, err
		}
		props, err := optionalProperties(e, path)
		if err != nil {
			return Extraction{}, err
		}
		out.Edges = append(out.Edges, ExtractedEdge{SourceLabel: src, TargetLabel: dst, RelationType: rel, Properties: props})
	}

	return out, nil
}

func requiredString(obj gjson.Result, path, key string) (string, error) {
	r := obj.Get(key)
	if !r.Exists() {
		return "", invalid(path+"."+key, "is required")
	}
	if r.Type != gjson.String {
		return "", invalid(path+"."+key, "must be a string")
	}
	return r.Str, nil
}

func optionalProperties(obj gjson.Result, path string) (value.Map, error) {
	r := obj.Get("properties")
	if !r.Exists() || r.Type == gjson.Null {
		return value.Map{}, nil
	}
	if !r.IsObject() {
		return nil, invalid(path+".properties", "must be an object")
	}
	m, _ := value.FromGJSON(r).AsMap()
	return m, nil
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON attempts to find a JSON object in the LLM response text.
// It handles markdown code blocks and prose before/after the object.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON object found in response")
}
