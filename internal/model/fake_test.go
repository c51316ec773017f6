package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/docworker/internal/model"
)

func TestFakeClient_OCRPageReturnsCannedResponsesInOrder(t *testing.T) {
	c := &model.FakeClient{OCRResponses: []string{"first", "second"}}
	ctx := context.Background()

	text, err := c.OCRPage(ctx, nil, "image/png", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "first", text)

	text, err = c.OCRPage(ctx, nil, "image/png", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "second", text)

	text, err = c.OCRPage(ctx, nil, "image/png", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "page text 3", text)
}

func TestFakeClient_TranscribeChunkReturnsCannedResponses(t *testing.T) {
	c := &model.FakeClient{TranscribeResponses: []string{"hello"}}
	text, err := c.TranscribeChunk(context.Background(), nil, "audio/wav", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestFakeClient_PropagatesConfiguredError(t *testing.T) {
	c := &model.FakeClient{Err: errors.New("rate limited")}
	_, err := c.OCRPage(context.Background(), nil, "image/png", "prompt")
	assert.ErrorIs(t, err, c.Err)
}
