package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// DefaultParser implements Parser for every content type
// domain.AllowedContentTypes admits, without a round trip to an external
// parsing service. PDF text extraction and HTML→Markdown conversion follow
// the readability-then-convert approach a web-fetching tool takes for the
// same problem, generalized from fetched pages to uploaded files.
type DefaultParser struct{}

// Parse implements Parser.
func (DefaultParser) Parse(ctx context.Context, contentType string, fileBytes []byte) (ParsedContent, error) {
	switch contentType {
	case "application/pdf":
		return parsePDF(fileBytes)
	case "text/html":
		return parseHTML(fileBytes)
	default:
		// text/plain, text/markdown, application/json, text/csv: the
		// chunker works directly on raw text for all of these.
		text := string(fileBytes)
		return ParsedContent{
			Markdown:  text,
			WordCount: len(strings.Fields(text)),
		}, nil
	}
}

func parsePDF(fileBytes []byte) (ParsedContent, error) {
	r, err := pdf.NewReader(bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		return ParsedContent{}, fmt.Errorf("ingest: open pdf: %w", err)
	}

	var buf strings.Builder
	pageCount := r.NumPage()
	for i := 1; i <= pageCount; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n\n")
	}

	content := buf.String()
	return ParsedContent{
		Markdown:  content,
		PageCount: pageCount,
		WordCount: len(strings.Fields(content)),
	}, nil
}

func parseHTML(fileBytes []byte) (ParsedContent, error) {
	html := string(fileBytes)

	body := html
	if art, err := readability.FromReader(strings.NewReader(html), &url.URL{}); err == nil && strings.TrimSpace(art.Content) != "" {
		body = art.Content
	}

	md, err := htmltomarkdown.ConvertString(body, converter.WithDomain(""))
	if err != nil {
		return ParsedContent{}, fmt.Errorf("ingest: html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)

	return ParsedContent{
		Markdown:  md,
		WordCount: len(strings.Fields(md)),
	}, nil
}
