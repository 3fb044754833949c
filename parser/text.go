package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser reads plain text and markdown. Apart from dropping a byte
// order mark and normalising line endings the content is not touched, so
// markdown headings reach the extractor as written.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md", "markdown"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	content := strings.TrimPrefix(string(data), "\uFEFF")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	res := &ParseResult{Method: "native"}
	if strings.TrimSpace(content) == "" {
		return res, nil
	}
	if title := markdownTitle(content); title != "" {
		res.Metadata = map[string]string{"title": title}
	}
	res.Sections = []Section{{Content: content, Type: "paragraph"}}
	return res, nil
}

// markdownTitle returns the text of the first level-one heading.
func markdownTitle(content string) string {
	for line := range strings.Lines(content) {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}
