package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// extractPDF returns the non-empty page texts joined by blank lines.
// pdfcpu validates the file structure first so corrupt uploads fail fast,
// before MuPDF is asked to parse them.
func extractPDF(ctx context.Context, path string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}

	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", 0, fmt.Errorf("invalid PDF: %w", err)
	}
	if pages == 0 {
		return "", 0, errors.New("PDF has no pages")
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", 0, fmt.Errorf("open PDF: %w", err)
	}
	defer doc.Close()

	segments := make([]string, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		text, err := doc.Text(n)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", n+1, err)
		}
		if strings.TrimSpace(text) != "" {
			segments = append(segments, strings.TrimSpace(text))
		}
	}
	return strings.Join(segments, "\n\n"), pages, nil
}
