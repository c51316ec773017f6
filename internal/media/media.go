// Package media adapts the media-decoding collaborator spec.md names as
// deliberately out of scope (PDF-to-image rasterization, audio file
// splitting) behind small interfaces, so the OCR and transcription
// pipelines have something concrete to call and test against.
package media

import (
	"context"
	"errors"
)

// ErrNotImplemented marks a production-shaped implementation that cannot
// perform the operation without a decoding library outside the corpus.
var ErrNotImplemented = errors.New("media: not implemented")

// Page is a single rasterized PDF page ready for vision-model inference.
type Page struct {
	Index    int // 1-based
	Data     []byte
	MimeType string
}

// Rasterizer turns a PDF file into per-page images, batched so the OCR
// pipeline (spec.md section 4.7) can bound memory use.
type Rasterizer interface {
	// PageCount returns the total page count of the PDF at path.
	PageCount(ctx context.Context, path string) (int, error)

	// RenderBatch renders pages [startIndex, startIndex+count) (1-based,
	// inclusive start) at the given DPI.
	RenderBatch(ctx context.Context, path string, startIndex, count, dpi int) ([]Page, error)
}

// AudioChunk is a single fixed-duration re-encoded audio segment ready
// for transcription inference.
type AudioChunk struct {
	Index    int // 1-based
	Data     []byte
	MimeType string
}

// AudioSplitter splits an input audio/video file into fixed-duration
// chunks (spec.md section 4.8).
type AudioSplitter interface {
	// Split divides the file at path into chunks of chunkDurationSec
	// seconds each (last chunk may be shorter).
	Split(ctx context.Context, path string, chunkDurationSec int) ([]AudioChunk, error)
}
