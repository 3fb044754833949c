package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// headingMaxRunes bounds the length of a line promoted to a heading.
const headingMaxRunes = 50

var blankRuns = regexp.MustCompile(`\n\n+`)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse extracts the plain text of every page and applies a light markdown
// pass: runs of blank lines collapse to one and short upper-case lines are
// promoted to "## " headings.
func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	sections := make([]Section, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sections = append(sections, Section{
			Content:    toMarkdown(text),
			PageNumber: i,
			Type:       "page",
		})
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"page_count": fmt.Sprintf("%d", totalPages)},
	}, nil
}

func toMarkdown(text string) string {
	text = blankRuns.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if trimmed := strings.TrimSpace(line); isHeadingLine(trimmed) {
			lines[i] = "## " + trimmed
		}
	}
	return strings.Join(lines, "\n")
}

// isHeadingLine matches short lines with at least one letter and no
// lower-case letters. Bare numbers (page numbers, years) are left alone.
func isHeadingLine(line string) bool {
	n := utf8.RuneCountInString(line)
	if n == 0 || n >= headingMaxRunes {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
