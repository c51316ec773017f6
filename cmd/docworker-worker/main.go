// Command docworker-worker runs the durable OCR/transcription job
// worker's main loop (spec.md section 4.11): it polls one or more Redis
// queues, dispatches each job to the OCR or transcription pipeline, and
// retries or dead-letters on failure. Grounded on the teacher's
// cmd/vire-server/main.go (env-driven config path, signal handling,
// context-based graceful shutdown).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bobmcallan/docworker/internal/blobstore"
	"github.com/bobmcallan/docworker/internal/cancel"
	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/common/metrics"
	"github.com/bobmcallan/docworker/internal/media"
	"github.com/bobmcallan/docworker/internal/model"
	"github.com/bobmcallan/docworker/internal/pipeline/ocr"
	"github.com/bobmcallan/docworker/internal/pipeline/transcription"
	"github.com/bobmcallan/docworker/internal/prompts"
	"github.com/bobmcallan/docworker/internal/queuestore"
	"github.com/bobmcallan/docworker/internal/retry"
	"github.com/bobmcallan/docworker/internal/statemachine"
	"github.com/bobmcallan/docworker/internal/worker"
)

func main() {
	cfg, err := common.LoadConfig(os.Getenv("DOCWORKER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Logging.Level)

	if missing := cfg.ValidateRequired(); len(missing) > 0 {
		logger.Fatal().Str("missing", strings.Join(missing, ",")).Msg("missing required configuration")
	}

	// Wire the infrastructure retry primitive's tuning from config (spec.md
	// section 6's "retry primitive" group); both policies are process-wide
	// vars consulted by the calls that are wrapped in retry.Do/DoValue.
	retry.KVPolicy.MaxRetries = cfg.Retry.RedisRetries
	retry.KVPolicy.BaseDelaySec = cfg.Retry.RedisBackoffSec
	retry.KVPolicy.MaxDelaySec = cfg.Retry.RedisMaxBackoffSec
	retry.BlobPolicy.MaxRetries = cfg.Retry.GCSRetries
	retry.BlobPolicy.BaseDelaySec = cfg.Retry.GCSBackoffSec
	retry.BlobPolicy.MaxDelaySec = cfg.Retry.GCSMaxBackoffSec

	store, err := queuestore.NewRedisStore(cfg.RedisURL, queuestore.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer store.Close()

	blobs, err := blobstore.NewGCSStore(logger, blobstore.GCSConfig{
		ProjectID: cfg.GCPProjectID,
		Bucket:    cfg.GCSBucketName,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct blob store")
	}

	promptData, err := os.ReadFile(cfg.PromptFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.PromptFile).Msg("failed to read prompt file")
	}
	promptSet, err := prompts.ParseString(string(promptData))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse prompt file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modelClient, err := model.NewGenaiClient(ctx, cfg.GeminiAPIKey, model.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct gemini client")
	}

	sm := statemachine.New(store, logger)
	canceller := cancel.New(store)
	reg := metrics.New(logger)

	ocrPipeline := &ocr.Pipeline{
		Store:        blobs,
		Model:        modelClient,
		Rasterizer:   media.NewPDFRasterizer(),
		Prompts:      promptSet,
		StateMachine: sm,
		Canceller:    canceller,
		Logger:       logger,
		Config: ocr.Config{
			DPI:                    cfg.OCR.DPI,
			PageBatchSize:          cfg.OCR.PageBatchSize,
			PageRetries:            cfg.OCR.PageRetries,
			AllowEmptyPageFallback: cfg.OCR.AllowEmptyPageFallback,
			PromptName:             cfg.PromptName,
			Weights:                cfg.Quality.OCRWeights,
			Guards:                 cfg.Quality.OCRGuards,
			LowConfidenceThreshold: cfg.OCR.LowConfidenceThreshold,
		},
	}

	transcriptionPipeline := &transcription.Pipeline{
		Store:        blobs,
		Model:        modelClient,
		Splitter:     media.NewNoopAudioSplitter(),
		Prompts:      promptSet,
		StateMachine: sm,
		Canceller:    canceller,
		Logger:       logger,
		Config: transcription.Config{
			ChunkDurationSec:       cfg.Transcription.ChunkDurationSec,
			PromptName:             cfg.PromptName,
			LowConfidenceThreshold: cfg.Transcription.LowConfidenceThreshold,
		},
		Finalize: true,
	}

	queues := make([]worker.QueueSpec, 0, len(cfg.Queue.Entries()))
	for _, entry := range cfg.Queue.Entries() {
		queues = append(queues, worker.QueueSpec{Name: entry.Name, Source: entry.Source, DLQName: entry.DLQName})
	}

	w := worker.New(store, blobs, sm, canceller, ocrPipeline, transcriptionPipeline, logger, reg, worker.Config{
		Queues:                   queues,
		MaxInflightOCR:           cfg.Worker.MaxInflightOCR,
		MaxInflightTranscription: cfg.Worker.MaxInflightTranscription,
		BRPopTimeout:             cfg.Worker.BRPopTimeout(),
		MaxIdleBeforeReconnect:   cfg.Worker.MaxIdleBeforeReconnect(),
		RetryBudgets:             cfg.Retry.Budgets(),
		WorkerID:                 cfg.Worker.WorkerID,
	})

	common.PrintBanner(cfg, logger)

	readyMux := http.NewServeMux()
	readyMux.HandleFunc("/readyz", readinessHandler(w))
	readySrv := &http.Server{Addr: readinessAddr(), Handler: readyMux}
	go func() {
		if err := readySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("readiness server failed")
		}
	}()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("worker loop exited with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = readySrv.Shutdown(shutdownCtx)

	common.PrintShutdownBanner(logger)
}

func readinessAddr() string {
	if addr := os.Getenv("READINESS_ADDR"); addr != "" {
		return addr
	}
	return ":8081"
}

// readinessHandler responds to GET/HEAD /readyz with the worker's
// ReadinessReport, supplementing spec.md section 1's "readiness probe
// endpoints" bootstrap requirement. Grounded on the teacher's
// cmd/vire-server/main.go healthHandler shape and
// original_source/worker/readiness.py's status/checks payload.
func readinessHandler(w *worker.Worker) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		report := w.Readiness(r.Context())
		rw.Header().Set("Content-Type", "application/json")
		if report.Status != "ok" {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(rw).Encode(report)
	}
}
