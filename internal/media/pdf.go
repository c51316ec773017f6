package media

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFRasterizer counts pages with github.com/ledongthuc/pdf, the only PDF
// library in the pack (teacher's internal/services/market/filings.go
// extractPDFText, same pdf.Open/r.NumPage/panic-recovery shape). The
// library is a text extractor, not a rasterizer: no pack dependency
// renders PDF pages to pixels, and "PDF-to-image rasterization" is one of
// spec.md section 1's explicitly out-of-scope external collaborators.
// RenderBatch is therefore a documented stub; callers in tests use
// FakeRasterizer instead.
type PDFRasterizer struct{}

// NewPDFRasterizer returns a Rasterizer backed by ledongthuc/pdf.
func NewPDFRasterizer() *PDFRasterizer {
	return &PDFRasterizer{}
}

var _ Rasterizer = (*PDFRasterizer)(nil)

// PageCount recovers from panics the way the teacher's extractPDFText
// does (corrupt PDFs can panic deep inside the zlib decoder).
func (r *PDFRasterizer) PageCount(ctx context.Context, path string) (count int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			count = 0
			err = fmt.Errorf("media: panic counting pages: %v", rec)
		}
	}()

	f, doc, openErr := pdf.Open(path)
	if openErr != nil {
		return 0, fmt.Errorf("media: open pdf %s: %w", path, openErr)
	}
	defer f.Close()

	return doc.NumPage(), nil
}

func (r *PDFRasterizer) RenderBatch(ctx context.Context, path string, startIndex, count, dpi int) ([]Page, error) {
	return nil, ErrNotImplemented
}
