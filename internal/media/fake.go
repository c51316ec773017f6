package media

import (
	"context"
	"fmt"
)

// FakeRasterizer is a deterministic Rasterizer for pipeline tests: it
// treats Pages as the document and slices it into batches, no real PDF
// parsing involved.
type FakeRasterizer struct {
	Pages int
	Err   error
}

var _ Rasterizer = (*FakeRasterizer)(nil)

func (f *FakeRasterizer) PageCount(ctx context.Context, path string) (int, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Pages, nil
}

func (f *FakeRasterizer) RenderBatch(ctx context.Context, path string, startIndex, count, dpi int) ([]Page, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	end := startIndex + count
	if count <= 0 || end > f.Pages+1 {
		end = f.Pages + 1
	}
	var pages []Page
	for i := startIndex; i < end; i++ {
		pages = append(pages, Page{
			Index:    i,
			Data:     []byte(fmt.Sprintf("page-%d-bytes", i)),
			MimeType: "image/png",
		})
	}
	return pages, nil
}

// FakeAudioSplitter is a deterministic AudioSplitter for pipeline tests.
type FakeAudioSplitter struct {
	Chunks int
	Err    error
}

var _ AudioSplitter = (*FakeAudioSplitter)(nil)

func (f *FakeAudioSplitter) Split(ctx context.Context, path string, chunkDurationSec int) ([]AudioChunk, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	chunks := make([]AudioChunk, 0, f.Chunks)
	for i := 1; i <= f.Chunks; i++ {
		chunks = append(chunks, AudioChunk{
			Index:    i,
			Data:     []byte(fmt.Sprintf("chunk-%d-bytes", i)),
			MimeType: "audio/wav",
		})
	}
	return chunks, nil
}
