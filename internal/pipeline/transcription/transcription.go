// Package transcription implements the transcription pipeline variant
// (C8): split an audio/video input into fixed-duration chunks, transcribe
// each chunk via the model client, score each chunk (C6), and assemble
// the final transcript.
package transcription

import (
	"context"
	"fmt"

	"github.com/bobmcallan/docworker/internal/blobstore"
	"github.com/bobmcallan/docworker/internal/cancel"
	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/jobmodel"
	"github.com/bobmcallan/docworker/internal/media"
	"github.com/bobmcallan/docworker/internal/model"
	"github.com/bobmcallan/docworker/internal/pipeline"
	"github.com/bobmcallan/docworker/internal/prompts"
	"github.com/bobmcallan/docworker/internal/quality"
	"github.com/bobmcallan/docworker/internal/statemachine"
)

// Config holds the transcription pipeline's tunable knobs.
type Config struct {
	ChunkDurationSec       int // minimum 30, default 300
	PromptName             string
	LowConfidenceThreshold float64
}

// Pipeline is the transcription variant of C8.
type Pipeline struct {
	Store        blobstore.Store
	Model        model.Client
	Splitter     media.AudioSplitter
	Prompts      *prompts.Set
	StateMachine *statemachine.Machine
	Canceller    *cancel.Checker
	Logger       *common.Logger
	Config       Config

	// Finalize controls whether Run writes the terminal COMPLETED status
	// itself (the default, single-video path) or leaves that to a caller
	// aggregating multiple runs (spec.md section 4.8 step 6).
	Finalize bool
}

var _ pipeline.Runner = (*Pipeline)(nil)

// emptyChunkError is fatal: unlike the OCR pipeline's per-page retry,
// transcription has no fallback for an empty chunk result.
type emptyChunkError struct {
	chunk int
}

func (e *emptyChunkError) Error() string { return "Empty transcription output" }

// Run executes the transcription pipeline for a single job (spec.md
// section 4.8).
func (p *Pipeline) Run(ctx context.Context, job *jobmodel.Job) (pipeline.Result, error) {
	if err := p.Canceller.EnsureNotCancelled(ctx, job.JobID); err != nil {
		return pipeline.Result{}, err
	}
	if job.InputGCSURI == "" {
		return pipeline.Result{}, fmt.Errorf("transcription: job requires input_gcs_uri")
	}
	inputPath, err := p.Store.Download(ctx, job.InputGCSURI)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("transcription: download input: %w", err)
	}

	if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"status":   string(jobmodel.StatusProcessing),
		"stage":    "Preparing audio",
		"progress": 5,
	}, job.RequestID); err != nil {
		return pipeline.Result{}, fmt.Errorf("transcription: write preparing status: %w", err)
	}

	chunkDuration := p.Config.ChunkDurationSec
	if chunkDuration < 30 {
		chunkDuration = 30
	}

	chunks, err := p.Splitter.Split(ctx, inputPath, chunkDuration)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("transcription: split input: %w", err)
	}
	total := len(chunks)
	if total == 0 {
		return pipeline.Result{}, fmt.Errorf("transcription: input produced no chunks")
	}

	prompt, _ := p.Prompts.Resolve(p.Config.PromptName)

	texts := make([]string, 0, total)
	scores := make([]quality.SegmentScore, 0, total)
	for _, chunk := range chunks {
		if err := p.Canceller.EnsureNotCancelled(ctx, job.JobID); err != nil {
			return pipeline.Result{}, err
		}

		idx := chunk.Index
		progress := 10 + (80*idx)/total
		if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
			"stage":    fmt.Sprintf("Transcribing chunk %d/%d", idx, total),
			"progress": progress,
		}, job.RequestID); err != nil {
			return pipeline.Result{}, fmt.Errorf("transcription: write chunk progress: %w", err)
		}

		text, err := p.Model.TranscribeChunk(ctx, chunk.Data, chunk.MimeType, prompt)
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("transcription: chunk %d inference: %w", idx, err)
		}
		if text == "" {
			return pipeline.Result{}, &emptyChunkError{chunk: idx}
		}
		texts = append(texts, text)

		segScore := quality.ScoreSegment(text)
		scores = append(scores, segScore)

		if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
			"transcription_chunk_score": segScore.Score,
		}, job.RequestID); err != nil {
			return pipeline.Result{}, fmt.Errorf("transcription: write chunk score: %w", err)
		}
	}

	if err := p.Canceller.EnsureNotCancelled(ctx, job.JobID); err != nil {
		return pipeline.Result{}, err
	}

	combined := pipeline.Join(texts)
	outputFilename := pipeline.SanitizeOutputFilename(preferredName(job))
	key := pipeline.BlobKey(job.JobID, outputFilename)
	upload, err := p.Store.UploadText(ctx, key, combined)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("transcription: upload output: %w", err)
	}

	qualityScore, lowConfidence, hints := quality.SummarizeSegments(scores, p.Config.LowConfidenceThreshold)

	result := pipeline.Result{
		OutputPath:         upload.URI,
		OutputFilename:     outputFilename,
		SignedURL:          upload.SignedURL,
		QualityScore:       qualityScore,
		LowConfidencePages: lowConfidence,
		QualityHints:       hints,
	}

	if !p.Finalize {
		return result, nil
	}

	if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"status":                      string(jobmodel.StatusCompleted),
		"progress":                    100,
		"output_path":                 result.OutputPath,
		"output_filename":             result.OutputFilename,
		"transcription_quality_score": result.QualityScore,
		"low_confidence_segments":     result.LowConfidencePages,
		"quality_hints":               result.QualityHints,
		"error_code":                  "",
		"error_message":               "",
		"error_detail":                "",
		"error":                       "",
	}, job.RequestID); err != nil {
		return pipeline.Result{}, fmt.Errorf("transcription: write completed status: %w", err)
	}

	return result, nil
}

func preferredName(job *jobmodel.Job) string {
	if job.OutputFilename != "" {
		return job.OutputFilename
	}
	return job.Filename
}
