package media_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/docworker/internal/media"
)

func TestFakeRasterizer_BatchesPages(t *testing.T) {
	r := &media.FakeRasterizer{Pages: 5}
	ctx := context.Background()

	count, err := r.PageCount(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	batch, err := r.RenderBatch(ctx, "doc.pdf", 1, 2, 150)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 1, batch[0].Index)
	assert.Equal(t, 2, batch[1].Index)
}

func TestFakeRasterizer_ZeroCountRendersAll(t *testing.T) {
	r := &media.FakeRasterizer{Pages: 3}
	batch, err := r.RenderBatch(context.Background(), "doc.pdf", 1, 0, 150)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestFakeAudioSplitter_ProducesIndexedChunks(t *testing.T) {
	s := &media.FakeAudioSplitter{Chunks: 3}
	chunks, err := s.Split(context.Background(), "audio.mp3", 300)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Index)
	assert.Equal(t, 3, chunks[2].Index)
}
