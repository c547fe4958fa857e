package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

var ErrPageOutOfRange = errors.New("start page beyond document length")

// PageImage is one rasterized page, numbered from 1.
type PageImage struct {
	Number int
	PNG    []byte
}

// PDFRasterizer renders PDF pages to PNG using MuPDF through go-fitz
type PDFRasterizer struct {
	dpi float64
}

func NewPDFRasterizer(dpi float64) *PDFRasterizer {
	if dpi <= 0 {
		dpi = 200
	}
	return &PDFRasterizer{dpi: dpi}
}

// Rasterize renders pages [start, end] of the document at path. end is
// clamped to the page count; a start past the last page is an error.
func (r *PDFRasterizer) Rasterize(ctx context.Context, path string, start, end int) ([]PageImage, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if start < 1 || start > pageCount {
		return nil, fmt.Errorf("%w: start %d, pages %d", ErrPageOutOfRange, start, pageCount)
	}
	if end > pageCount {
		end = pageCount
	}

	pages := make([]PageImage, 0, end-start+1)
	for n := start; n <= end; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(n-1, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", n, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", n, err)
		}
		pages = append(pages, PageImage{Number: n, PNG: buf.Bytes()})
	}

	return pages, nil
}
