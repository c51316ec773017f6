package media_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/docworker/internal/media"
)

func TestPDFRasterizer_PageCountMissingFile(t *testing.T) {
	r := media.NewPDFRasterizer()
	_, err := r.PageCount(context.Background(), "/nonexistent/doc.pdf")
	assert.Error(t, err)
}

func TestPDFRasterizer_RenderBatchNotImplemented(t *testing.T) {
	r := media.NewPDFRasterizer()
	_, err := r.RenderBatch(context.Background(), "doc.pdf", 1, 1, 150)
	assert.ErrorIs(t, err, media.ErrNotImplemented)
}
