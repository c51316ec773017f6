package blobstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/docworker/internal/blobstore"
	"github.com/bobmcallan/docworker/internal/common"
)

func TestGCSStore_RequiresBucket(t *testing.T) {
	_, err := blobstore.NewGCSStore(common.NewSilentLogger(), blobstore.GCSConfig{})
	assert.Error(t, err)
}

func TestGCSStore_MethodsReturnNotImplemented(t *testing.T) {
	s, err := blobstore.NewGCSStore(common.NewSilentLogger(), blobstore.GCSConfig{Bucket: "b"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, blobstore.ErrNotImplemented)

	_, err = s.UploadText(ctx, "k", "text")
	assert.ErrorIs(t, err, blobstore.ErrNotImplemented)

	_, err = s.SignedURL(ctx, "k", 0)
	assert.ErrorIs(t, err, blobstore.ErrNotImplemented)
}
