package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/docworker/internal/blobstore"
	"github.com/bobmcallan/docworker/internal/cancel"
	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/common/metrics"
	"github.com/bobmcallan/docworker/internal/jobmodel"
	"github.com/bobmcallan/docworker/internal/media"
	"github.com/bobmcallan/docworker/internal/model"
	"github.com/bobmcallan/docworker/internal/pipeline/ocr"
	"github.com/bobmcallan/docworker/internal/prompts"
	"github.com/bobmcallan/docworker/internal/queuestore"
	"github.com/bobmcallan/docworker/internal/queuestore/queuestoretest"
	"github.com/bobmcallan/docworker/internal/quality"
	"github.com/bobmcallan/docworker/internal/recovery"
	"github.com/bobmcallan/docworker/internal/statemachine"
	"github.com/bobmcallan/docworker/internal/worker"
)

func newTestWorker(t *testing.T, ocrResponses []string) (*worker.Worker, queuestore.Store) {
	t.Helper()
	store, _ := queuestoretest.New(t)
	sm := statemachine.New(store, common.NewSilentLogger())
	canceller := cancel.New(store)

	blobs, err := blobstore.NewLocalStore(common.NewSilentLogger(), blobstore.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	promptSet, err := prompts.ParseString("### PROMPT: OCR_DEFAULT\nRead page {page}.\n=== END PROMPT ===\n")
	require.NoError(t, err)

	ocrPipeline := &ocr.Pipeline{
		Store:        blobs,
		Model:        &model.FakeClient{OCRResponses: ocrResponses},
		Rasterizer:   &media.FakeRasterizer{Pages: 1},
		Prompts:      promptSet,
		StateMachine: sm,
		Canceller:    canceller,
		Logger:       common.NewSilentLogger(),
		Config: ocr.Config{
			DPI:                    150,
			PageRetries:            0,
			AllowEmptyPageFallback: true,
			PromptName:             "OCR_DEFAULT",
			Weights:                quality.DefaultOCRWeights,
			Guards:                 quality.DefaultOCRGuards,
			LowConfidenceThreshold: 0.65,
		},
	}

	cfg := worker.Config{
		Queues: []worker.QueueSpec{
			{Name: "queue:ocr", Source: "ocr", DLQName: "dlq:ocr"},
		},
		MaxInflightOCR:           1,
		MaxInflightTranscription: 1,
		BRPopTimeout:             100 * time.Millisecond,
		MaxIdleBeforeReconnect:   time.Hour,
		AdmissionRetryDelay:      time.Millisecond,
		HeartbeatSleep:           time.Millisecond,
		RetryBudgets:             recovery.Budgets{Transient: 2, Media: 1, Default: 1},
		WorkerID:                 "test-worker",
	}

	w := worker.New(store, blobs, sm, canceller, ocrPipeline, ocrPipeline, common.NewSilentLogger(), metrics.New(common.NewSilentLogger()), cfg)
	return w, store
}

func pushJob(t *testing.T, store queuestore.Store, queue string, job jobmodel.Job) {
	t.Helper()
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, store.RPush(context.Background(), queue, payload))
}

func TestStep_HappyPathCompletesJob(t *testing.T) {
	w, store := newTestWorker(t, []string{"clean text body"})
	pushJob(t, store, "queue:ocr", jobmodel.Job{JobID: "job-1", Filename: "scan.pdf", InputPath: "scan.pdf", Source: "ocr"})

	handled, err := w.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)

	fields, err := store.HGetAll(context.Background(), queuestore.StatusKey("job-1"))
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", fields["status"])

	card, err := store.SCard(context.Background(), queuestore.InflightKey("ocr"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), card)
}

func TestStep_EmptyQueueHeartbeats(t *testing.T) {
	w, _ := newTestWorker(t, nil)
	handled, err := w.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestStep_UndecodablePayloadGoesToDLQ(t *testing.T) {
	w, store := newTestWorker(t, nil)
	require.NoError(t, store.RPush(context.Background(), "queue:ocr", []byte("not json")))

	handled, err := w.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)

	popped, err := store.BRPop(context.Background(), 10*time.Millisecond, "dlq:ocr")
	require.NoError(t, err)
	require.NotNil(t, popped)
}

func TestStep_AlreadyCancelledJobWrittenCancelled(t *testing.T) {
	w, store := newTestWorker(t, []string{"text"})
	require.NoError(t, store.HSet(context.Background(), queuestore.StatusKey("job-2"), map[string]any{"cancel_requested": "1"}, queuestore.StatusTTL))
	pushJob(t, store, "queue:ocr", jobmodel.Job{JobID: "job-2", Filename: "scan.pdf", Source: "ocr"})

	handled, err := w.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)

	fields, err := store.HGetAll(context.Background(), queuestore.StatusKey("job-2"))
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", fields["status"])
}

func TestStep_AdmissionBlockedWhenInflightAtLimit(t *testing.T) {
	w, store := newTestWorker(t, []string{"text"})
	require.NoError(t, store.SAdd(context.Background(), queuestore.InflightKey("ocr"), "other-job", queuestore.InflightTTL))
	pushJob(t, store, "queue:ocr", jobmodel.Job{JobID: "job-3", Filename: "scan.pdf", Source: "ocr"})

	handled, err := w.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)

	popped, err := store.BRPop(context.Background(), 10*time.Millisecond, "queue:ocr")
	require.NoError(t, err)
	require.NotNil(t, popped, "blocked job should have been requeued onto the same queue")
}

func TestReadiness_OKWhenStoresReachable(t *testing.T) {
	w, _ := newTestWorker(t, nil)
	report := w.Readiness(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "ok", report.Checks["redis"])
	assert.Equal(t, "ok", report.Checks["blobstore"])
}
