package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/docurag/docurag/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// pdftotext separates pages with form feeds, which is where the per-page
// numbering comes from.
type DocconvExtractor struct{}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

func (e *DocconvExtractor) ExtractPages(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return nil, fmt.Errorf("docconv: %w: %w", core.ErrEmptyDocument, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pages []core.Page
	for i, raw := range strings.Split(res.Body, "\f") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		pages = append(pages, core.Page{Number: i + 1, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("docconv: %w", core.ErrEmptyDocument)
	}
	return pages, nil
}
