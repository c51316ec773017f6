// Package ocr implements the OCR pipeline variant (C7): rasterize a PDF
// (or already-image input) page by page, infer text per page via the
// model client, score each page, and assemble the final transcript.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"time"

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

// blankPage stands in for a page image the pipeline could not decode
// (e.g. the rasterizer stub, or a corrupt render); quality scoring still
// runs against it rather than failing the page outright.
var blankPage = image.NewGray(image.Rect(0, 0, 1, 1))

// Config holds the OCR pipeline's tunable knobs (spec.md section 6
// "Pipeline tuning").
type Config struct {
	DPI                    int
	PageBatchSize          int // 0 means "rasterize the whole document at once"
	PageRetries            int
	AllowEmptyPageFallback bool
	PromptName             string
	Weights                quality.OCRWeights
	Guards                 quality.OCRGuards
	LowConfidenceThreshold float64
}

// Pipeline is the OCR variant of C7, depending only on interfaces so
// tests can substitute fakes for every external collaborator.
type Pipeline struct {
	Store       blobstore.Store
	Model       model.Client
	Rasterizer  media.Rasterizer
	Prompts     *prompts.Set
	StateMachine *statemachine.Machine
	Canceller   *cancel.Checker
	Logger      *common.Logger
	Config      Config
}

var _ pipeline.Runner = (*Pipeline)(nil)

// emptyPageError is the distinguished failure C7 step 5 retries on.
type emptyPageError struct {
	page int
}

func (e *emptyPageError) Error() string {
	return fmt.Sprintf("Empty OCR output page %d", e.page)
}

// Run executes the OCR pipeline for a single job (spec.md section 4.7).
func (p *Pipeline) Run(ctx context.Context, job *jobmodel.Job) (pipeline.Result, error) {
	if err := p.Canceller.EnsureNotCancelled(ctx, job.JobID); err != nil {
		return pipeline.Result{}, err
	}

	inputPath, err := p.resolveInput(ctx, job)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("ocr: resolve input: %w", err)
	}

	if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"status":   string(jobmodel.StatusProcessing),
		"stage":    "Loading PDF",
		"progress": 5,
		"eta_sec":  120,
	}, job.RequestID); err != nil {
		return pipeline.Result{}, fmt.Errorf("ocr: write loading status: %w", err)
	}

	total, err := p.Rasterizer.PageCount(ctx, inputPath)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("ocr: page count: %w", err)
	}
	if total <= 0 {
		total = 1
	}

	batchSize := p.Config.PageBatchSize
	if batchSize <= 0 {
		batchSize = total
	}

	texts := make([]string, 0, total)
	pageScores := make([]float64, 0, total)
	var hints []string

	promptName := p.Config.PromptName

	for start := 1; start <= total; start += batchSize {
		count := batchSize
		if start+count-1 > total {
			count = total - start + 1
		}
		pages, err := p.Rasterizer.RenderBatch(ctx, inputPath, start, count, p.Config.DPI)
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("ocr: render batch starting at %d: %w", start, err)
		}

		for _, page := range pages {
			if err := p.Canceller.EnsureNotCancelled(ctx, job.JobID); err != nil {
				return pipeline.Result{}, err
			}

			idx := page.Index
			progress := 10 + (80*idx)/total
			if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
				"stage":    fmt.Sprintf("OCR page %d/%d", idx, total),
				"progress": progress,
			}, job.RequestID); err != nil {
				return pipeline.Result{}, fmt.Errorf("ocr: write page progress: %w", err)
			}

			prompt, _ := p.Prompts.ResolveOCRPage(promptName, idx)

			text, emptyFallback, pageErr := p.ocrPageWithRetry(ctx, page, idx, prompt)
			if pageErr != nil {
				return pipeline.Result{}, pageErr
			}
			if emptyFallback {
				hints = append(hints, fmt.Sprintf("Page %d: OCR response was empty after retries", idx))
			}

			img := decodeImage(page.Data)
			score, metrics, pageHints := quality.ScorePage(text, img, p.Config.Weights, p.Config.Guards)
			pageScores = append(pageScores, score)
			for _, h := range pageHints {
				hints = append(hints, fmt.Sprintf("Page %d: %s", idx, h))
			}
			texts = append(texts, text)

			if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
				"current_page":     idx,
				"total_pages":      total,
				"eta_sec":          etaSeconds(idx, total),
				"ocr_page_score":   score,
				"ocr_page_metrics": metricsToFields(metrics),
			}, job.RequestID); err != nil {
				return pipeline.Result{}, fmt.Errorf("ocr: write page score: %w", err)
			}
		}
	}

	if err := p.Canceller.EnsureNotCancelled(ctx, job.JobID); err != nil {
		return pipeline.Result{}, err
	}
	if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"stage":    "Finalizing OCR",
		"progress": 95,
	}, job.RequestID); err != nil {
		return pipeline.Result{}, fmt.Errorf("ocr: write finalizing status: %w", err)
	}

	combined := pipeline.Join(texts)
	outputFilename := pipeline.SanitizeOutputFilename(preferredName(job))
	key := pipeline.BlobKey(job.JobID, outputFilename)
	upload, err := p.Store.UploadText(ctx, key, combined)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("ocr: upload output: %w", err)
	}

	qualityScore, lowConfidence := quality.SummarizeDocumentQuality(pageScores, p.Config.LowConfidenceThreshold)
	cappedHints := pipeline.CapHints(hints, 10)

	result := pipeline.Result{
		OutputPath:         upload.URI,
		OutputFilename:     outputFilename,
		SignedURL:          upload.SignedURL,
		QualityScore:       qualityScore,
		LowConfidencePages: lowConfidence,
		QualityHints:       cappedHints,
	}

	if _, err := p.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"status":               string(jobmodel.StatusCompleted),
		"progress":             100,
		"output_path":          result.OutputPath,
		"output_filename":      result.OutputFilename,
		"ocr_quality_score":    result.QualityScore,
		"low_confidence_pages": result.LowConfidencePages,
		"quality_hints":        result.QualityHints,
		"error_code":           "",
		"error_message":        "",
		"error_detail":         "",
		"error":                "",
	}, job.RequestID); err != nil {
		return pipeline.Result{}, fmt.Errorf("ocr: write completed status: %w", err)
	}

	return result, nil
}

// resolveInput uses the job's local input_path verbatim if given, else
// downloads input_gcs_uri through the blob store (spec.md section 4.7
// step 2).
func (p *Pipeline) resolveInput(ctx context.Context, job *jobmodel.Job) (string, error) {
	if job.InputPath != "" {
		return job.InputPath, nil
	}
	if job.InputGCSURI == "" {
		return "", fmt.Errorf("ocr: job has neither input_path nor input_gcs_uri")
	}
	return p.Store.Download(ctx, job.InputGCSURI)
}

// ocrPageWithRetry calls the model for a single page, retrying only on
// the empty-output failure up to PageRetries times with backoff
// min(1.5, 0.4*attempt) seconds (spec.md section 4.7 step 5). If still
// empty and AllowEmptyPageFallback is set, it substitutes the empty
// string, reports the fallback so the caller can record the
// "OCR response was empty after retries" hint, and lets the job
// proceed instead of failing it.
func (p *Pipeline) ocrPageWithRetry(ctx context.Context, page media.Page, idx int, prompt string) (string, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= p.Config.PageRetries; attempt++ {
		text, err := p.Model.OCRPage(ctx, page.Data, page.MimeType, prompt)
		if err != nil {
			return "", false, fmt.Errorf("ocr: page %d inference: %w", idx, err)
		}
		if text != "" {
			return text, false, nil
		}
		lastErr = &emptyPageError{page: idx}
		if attempt == p.Config.PageRetries {
			break
		}
		delay := time.Duration(math.Min(1.5, 0.4*float64(attempt+1)) * float64(time.Second))
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(delay):
		}
	}
	if p.Config.AllowEmptyPageFallback {
		return "", true, nil
	}
	return "", false, lastErr
}

func preferredName(job *jobmodel.Job) string {
	if job.OutputFilename != "" {
		return job.OutputFilename
	}
	return job.Filename
}

func decodeImage(data []byte) image.Image {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return blankPage
	}
	return img
}

func metricsToFields(m quality.Metrics) map[string]float64 {
	return map[string]float64{
		"char_conf_proxy":    m.CharConfProxy,
		"contrast_score":     m.ContrastScore,
		"blur_score":         m.BlurScore,
		"text_density_score": m.TextDensityScore,
		"garbage_ratio":      m.GarbageRatio,
	}
}

// etaSeconds estimates remaining wall time assuming uniform per-page
// cost, used for the progress eta_sec field during page iteration.
func etaSeconds(idx, total int) int {
	remaining := total - idx
	if remaining < 0 {
		remaining = 0
	}
	const secondsPerPage = 8
	return remaining * secondsPerPage
}
