package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser renders each non-empty sheet as a markdown table, e.g. a
// benchmark results workbook accompanying a paper.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sections []Section

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		width := 0
		for _, row := range rows {
			width = max(width, len(row))
		}

		var content strings.Builder
		for i, row := range rows {
			cells := make([]string, width)
			copy(cells, row)
			for j := range cells {
				cells[j] = strings.ReplaceAll(strings.TrimSpace(cells[j]), "|", `\|`)
			}
			content.WriteString("| " + strings.Join(cells, " | ") + " |\n")
			if i == 0 {
				content.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
			}
		}

		sections = append(sections, Section{
			Heading: sheet,
			Content: content.String(),
			Type:    "table",
			Level:   2,
			Metadata: map[string]string{
				"sheet_name": sheet,
				"row_count":  fmt.Sprintf("%d", len(rows)),
			},
		})
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
	}, nil
}
