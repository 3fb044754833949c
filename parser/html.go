package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// boilerplate is removed before conversion so site chrome does not reach
// the extractor.
const boilerplate = "script, style, noscript, nav, header, footer, aside, form, iframe"

// HTMLParser converts saved web pages (arXiv abstracts, blog posts) to
// markdown.
type HTMLParser struct{}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HTML file: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	title := strings.TrimSpace(doc.Find("head > title").First().Text())

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find(boilerplate).Remove()
	content, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("rendering HTML body: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("converting HTML: %w", err)
	}
	md = strings.TrimSpace(md)

	res := &ParseResult{Method: "html-to-markdown"}
	if title != "" {
		res.Metadata = map[string]string{"title": title}
	}
	if md == "" {
		return res, nil
	}
	res.Sections = []Section{{Heading: title, Content: md, Type: "paragraph"}}
	return res, nil
}
