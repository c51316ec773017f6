package transcription_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/docworker/internal/blobstore"
	"github.com/bobmcallan/docworker/internal/cancel"
	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/jobmodel"
	"github.com/bobmcallan/docworker/internal/media"
	"github.com/bobmcallan/docworker/internal/model"
	"github.com/bobmcallan/docworker/internal/pipeline/transcription"
	"github.com/bobmcallan/docworker/internal/prompts"
	"github.com/bobmcallan/docworker/internal/queuestore"
	"github.com/bobmcallan/docworker/internal/queuestore/queuestoretest"
	"github.com/bobmcallan/docworker/internal/statemachine"
)

func newTestPipeline(t *testing.T, chunks int, responses []string, finalize bool) (*transcription.Pipeline, queuestore.Store) {
	t.Helper()
	store, _ := queuestoretest.New(t)
	sm := statemachine.New(store, common.NewSilentLogger())

	blobs, err := blobstore.NewLocalStore(common.NewSilentLogger(), blobstore.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, blobs.Put(context.Background(), "inputs/clip.mp3", []byte("audio bytes"), "audio/mpeg"))

	promptSet, err := prompts.ParseString("### PROMPT: TRANSCRIBE_DEFAULT\nTranscribe faithfully.\n=== END PROMPT ===\n")
	require.NoError(t, err)

	p := &transcription.Pipeline{
		Store:        blobs,
		Model:        &model.FakeClient{TranscribeResponses: responses},
		Splitter:     &media.FakeAudioSplitter{Chunks: chunks},
		Prompts:      promptSet,
		StateMachine: sm,
		Canceller:    cancel.New(store),
		Logger:       common.NewSilentLogger(),
		Config: transcription.Config{
			ChunkDurationSec: 300,
			PromptName:       "TRANSCRIBE_DEFAULT",
		},
		Finalize: finalize,
	}
	return p, store
}

func TestRun_HappyPath(t *testing.T) {
	p, store := newTestPipeline(t, 2, []string{"first chunk", "second chunk"}, true)

	job := &jobmodel.Job{JobID: "job-1", Filename: "clip.mp3", InputGCSURI: "file://inputs/clip.mp3"}
	result, err := p.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "clip.txt", result.OutputFilename)

	fields, err := store.HGetAll(context.Background(), queuestore.StatusKey("job-1"))
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", fields["status"])
}

func TestRun_EmptyChunkIsFatal(t *testing.T) {
	p, _ := newTestPipeline(t, 1, []string{""}, true)

	job := &jobmodel.Job{JobID: "job-2", Filename: "clip.mp3", InputGCSURI: "file://inputs/clip.mp3"}
	_, err := p.Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Empty transcription output")
}

func TestRun_RequiresInputGCSURI(t *testing.T) {
	p, _ := newTestPipeline(t, 1, []string{"text"}, true)

	job := &jobmodel.Job{JobID: "job-3", Filename: "clip.mp3"}
	_, err := p.Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_gcs_uri")
}

func TestRun_ScoresSegmentsAndSummarizesQuality(t *testing.T) {
	p, store := newTestPipeline(t, 2, []string{"first chunk of speech", "second chunk of speech"}, true)
	p.Config.LowConfidenceThreshold = 1.1 // every segment scores below 1.1, so both count as low-confidence

	job := &jobmodel.Job{JobID: "job-5", Filename: "clip.mp3", InputGCSURI: "file://inputs/clip.mp3"}
	result, err := p.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Greater(t, result.QualityScore, 0.0)
	assert.Equal(t, []int{1, 2}, result.LowConfidencePages)

	fields, err := store.HGetAll(context.Background(), queuestore.StatusKey("job-5"))
	require.NoError(t, err)
	assert.NotEmpty(t, fields["transcription_quality_score"])
}

func TestRun_NoFinalizeLeavesStatusOpen(t *testing.T) {
	p, store := newTestPipeline(t, 1, []string{"text"}, false)

	job := &jobmodel.Job{JobID: "job-4", Filename: "clip.mp3", InputGCSURI: "file://inputs/clip.mp3"}
	result, err := p.Run(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, result.OutputFilename)

	fields, err := store.HGetAll(context.Background(), queuestore.StatusKey("job-4"))
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", fields["status"])
}
