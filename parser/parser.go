// Package parser turns source documents into plain text suitable for
// knowledge-graph extraction.
package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrNoText is returned when a document parses but yields no text.
var ErrNoText = errors.New("parser: no text extracted")

// ParseResult holds the text of a parsed document, split into sections.
type ParseResult struct {
	Sections []Section         `json:"sections"`
	Method   string            `json:"method"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Section is one contiguous block of a document: a page, a sheet or the
// whole body for single-block formats.
type Section struct {
	Heading    string            `json:"heading,omitempty"`
	Content    string            `json:"content"`
	Level      int               `json:"level,omitempty"`
	PageNumber int               `json:"page_number,omitempty"`
	Type       string            `json:"type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Text renders the sections as one markdown document. Headings become
// markdown headings at their level (minimum 1).
func (r *ParseResult) Text() string {
	var b strings.Builder
	for _, s := range r.Sections {
		if strings.TrimSpace(s.Content) == "" && s.Heading == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if s.Heading != "" {
			b.WriteString(strings.Repeat("#", max(s.Level, 1)))
			b.WriteString(" ")
			b.WriteString(s.Heading)
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimRight(s.Content, "\n"))
	}
	return b.String()
}

// Parser extracts text from one document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// FormatOf returns the lower-cased extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
