package cancel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/docworker/internal/cancel"
	"github.com/bobmcallan/docworker/internal/queuestore"
	"github.com/bobmcallan/docworker/internal/queuestore/queuestoretest"
)

func TestIsCancelled_NoRecord(t *testing.T) {
	store, _ := queuestoretest.New(t)
	c := cancel.New(store)
	assert.False(t, c.IsCancelled(context.Background(), "missing"))
}

func TestIsCancelled_CancelRequestedFlag(t *testing.T) {
	store, _ := queuestoretest.New(t)
	ctx := context.Background()
	require.NoError(t, store.HSet(ctx, queuestore.StatusKey("job-1"), map[string]any{"cancel_requested": "1"}, time.Hour))

	c := cancel.New(store)
	assert.True(t, c.IsCancelled(ctx, "job-1"))
}

func TestIsCancelled_StatusCancelled(t *testing.T) {
	store, _ := queuestoretest.New(t)
	ctx := context.Background()
	require.NoError(t, store.HSet(ctx, queuestore.StatusKey("job-2"), map[string]any{"status": "CANCELLED"}, time.Hour))

	c := cancel.New(store)
	assert.True(t, c.IsCancelled(ctx, "job-2"))
}

type erroringStore struct{ queuestore.Store }

func (erroringStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return nil, errors.New("connection reset")
}

func TestIsCancelled_FailsOpenOnKVError(t *testing.T) {
	c := cancel.New(erroringStore{})
	assert.False(t, c.IsCancelled(context.Background(), "job-3"), "a KV outage must never cancel the job")
}

func TestEnsureNotCancelled_RaisesJobCancelled(t *testing.T) {
	store, _ := queuestoretest.New(t)
	ctx := context.Background()
	require.NoError(t, store.HSet(ctx, queuestore.StatusKey("job-4"), map[string]any{"status": "CANCELLED"}, time.Hour))

	c := cancel.New(store)
	err := c.EnsureNotCancelled(ctx, "job-4")
	require.Error(t, err)

	var jc *cancel.JobCancelled
	require.ErrorAs(t, err, &jc)
	assert.Equal(t, "job-4", jc.JobID)
}
