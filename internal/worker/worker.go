// Package worker implements the main dispatch loop (C11): blocking
// multi-queue pop, per-type admission control, pipeline dispatch, and the
// retry-or-dead-letter decision on failure.
//
// Grounded on internal/services/jobmanager's manager.go/queue.go/
// executor.go/watcher.go loop shape (a semaphore-style admission gate,
// dequeue-execute-complete cycle; the loop has no panic recovery and no
// Start/Stop pair),
// generalized from the teacher's single-queue ticker-priority model to
// spec.md's multi-queue/queue-mode/per-type-inflight model. The
// teacher's manual backoff in watchLoop is replaced by internal/retry's
// policies for infrastructure calls and internal/recovery's policy for
// job-level retry/dead-letter decisions.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/docworker/internal/blobstore"
	"github.com/bobmcallan/docworker/internal/cancel"
	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/common/metrics"
	"github.com/bobmcallan/docworker/internal/deadletter"
	"github.com/bobmcallan/docworker/internal/jobmodel"
	"github.com/bobmcallan/docworker/internal/pipeline"
	"github.com/bobmcallan/docworker/internal/queuestore"
	"github.com/bobmcallan/docworker/internal/recovery"
	"github.com/bobmcallan/docworker/internal/router"
	"github.com/bobmcallan/docworker/internal/statemachine"
	"github.com/bobmcallan/docworker/internal/taxonomy"
)

// QueueSpec names one queue this worker polls, the logical source tag it
// carries (used for per-source DLQ routing and metrics tags), and the
// DLQ it dead-letters to.
type QueueSpec struct {
	Name    string
	Source  string
	DLQName string
}

// Config holds the worker loop's environment-driven tuning (spec.md
// section 4.11).
type Config struct {
	// Queues lists the polled queues in priority order (spec.md section
	// 9's "Multi-queue priority" design note: a single blocking pop over
	// an ordered list, not round-robin).
	Queues []QueueSpec

	MaxInflightOCR           int
	MaxInflightTranscription int

	BRPopTimeout           time.Duration
	MaxIdleBeforeReconnect time.Duration

	RetryBudgets recovery.Budgets

	WorkerID string

	// AdmissionRetryDelay is the sleep between a blocked admission
	// attempt and the next pop (spec.md section 4.11: "requeue and
	// sleep 0.25s").
	AdmissionRetryDelay time.Duration

	// HeartbeatSleep is the short sleep after an empty blocking pop.
	HeartbeatSleep time.Duration
}

// Worker runs the main loop against a queuestore.Store, dispatching to
// one of two pipeline.Runner implementations selected by the router.
type Worker struct {
	Store        queuestore.Store
	BlobStore    blobstore.Store
	StateMachine *statemachine.Machine
	Canceller    *cancel.Checker

	OCRPipeline           pipeline.Runner
	TranscriptionPipeline pipeline.Runner

	Logger  *common.Logger
	Metrics *metrics.Registry

	Config Config

	lastActivity time.Time
}

// New constructs a Worker, filling in documented defaults for any zero
// duration/ID fields.
func New(
	store queuestore.Store,
	blobs blobstore.Store,
	sm *statemachine.Machine,
	canceller *cancel.Checker,
	ocrPipeline pipeline.Runner,
	transcriptionPipeline pipeline.Runner,
	logger *common.Logger,
	reg *metrics.Registry,
	cfg Config,
) *Worker {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if reg == nil {
		reg = metrics.New(logger)
	}
	if cfg.BRPopTimeout <= 0 {
		cfg.BRPopTimeout = 10 * time.Second
	}
	if cfg.MaxIdleBeforeReconnect <= 0 {
		cfg.MaxIdleBeforeReconnect = 60 * time.Second
	}
	if cfg.AdmissionRetryDelay <= 0 {
		cfg.AdmissionRetryDelay = 250 * time.Millisecond
	}
	if cfg.HeartbeatSleep <= 0 {
		cfg.HeartbeatSleep = 250 * time.Millisecond
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if cfg.MaxInflightOCR == 0 {
		cfg.MaxInflightOCR = 1
	}
	if cfg.MaxInflightTranscription == 0 {
		cfg.MaxInflightTranscription = 1
	}

	return &Worker{
		Store:                 store,
		BlobStore:             blobs,
		StateMachine:          sm,
		Canceller:             canceller,
		OCRPipeline:           ocrPipeline,
		TranscriptionPipeline: transcriptionPipeline,
		Logger:                logger,
		Metrics:               reg,
		Config:                cfg,
		lastActivity:          time.Now(),
	}
}

// Run drives the main loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := w.Step(ctx); err != nil {
			w.Logger.Warn().Err(err).Msg("worker step error")
		}
	}
}

// Step executes one iteration of the main loop (spec.md section 4.11
// "Main step"). It returns true if a payload was popped, whether it was
// then dispatched, requeued by admission control, or dead-lettered as
// undecodable.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	w.maybeReconnect(ctx)

	queueNames := make([]string, len(w.Config.Queues))
	for i, q := range w.Config.Queues {
		queueNames[i] = q.Name
	}

	popped, err := w.Store.BRPop(ctx, w.Config.BRPopTimeout, queueNames...)
	if err != nil {
		w.Logger.Warn().Err(err).Msg("brpop failed, will retry next iteration")
		w.maybeReconnect(ctx)
		return false, nil
	}
	w.lastActivity = time.Now()

	if popped == nil {
		w.Logger.Debug().Msg("queue empty heartbeat")
		sleepCtx(ctx, w.Config.HeartbeatSleep)
		return false, nil
	}

	spec := w.specForQueue(popped.Queue)
	w.handlePayload(ctx, spec, popped.Payload)
	return true, nil
}

func (w *Worker) maybeReconnect(ctx context.Context) {
	if time.Since(w.lastActivity) <= w.Config.MaxIdleBeforeReconnect {
		return
	}
	if rc, ok := w.Store.(queuestore.Reconnecter); ok {
		if err := rc.Reconnect(); err != nil {
			w.Logger.Warn().Err(err).Msg("idle reconnect failed")
		} else {
			w.Logger.Info().Msg("reconnected idle kv connection after idle threshold")
		}
	}
	w.lastActivity = time.Now()
}

func (w *Worker) specForQueue(name string) QueueSpec {
	for _, q := range w.Config.Queues {
		if q.Name == name {
			return q
		}
	}
	return QueueSpec{Name: name}
}

func (w *Worker) limitFor(jt jobmodel.JobType) int {
	if jt == jobmodel.JobTypeOCR {
		return w.Config.MaxInflightOCR
	}
	return w.Config.MaxInflightTranscription
}

func (w *Worker) pipelineFor(jt jobmodel.JobType) pipeline.Runner {
	if jt == jobmodel.JobTypeOCR {
		return w.OCRPipeline
	}
	return w.TranscriptionPipeline
}

// handlePayload parses, admits, dispatches, and resolves one queue
// message (spec.md section 4.11 step 4).
func (w *Worker) handlePayload(ctx context.Context, spec QueueSpec, raw []byte) {
	var job jobmodel.Job
	if err := json.Unmarshal(raw, &job); err != nil || job.JobID == "" {
		// Undecodable payload: dead-letter it directly rather than retry
		// forever (spec.md section 9 design note).
		w.Logger.Warn().Err(err).Str("queue", spec.Name).Msg("undecodable job payload, dead-lettering")
		entry := deadletter.Build(deadletter.Params{
			Job:         &job,
			QueueName:   spec.Name,
			DLQName:     spec.DLQName,
			QueueSource: spec.Source,
			FailedStage: "parse",
			ErrorCode:   string(taxonomy.CodeProcessingFailed),
			Error:       taxonomy.Message(taxonomy.CodeProcessingFailed),
			ErrorDetail: fmt.Sprintf("undecodable payload: %v", err),
			Attempts:    1,
			MaxAttempts: 1,
			WorkerID:    w.Config.WorkerID,
		})
		w.pushDLQ(ctx, spec.DLQName, entry)
		return
	}

	jt := router.Route(&job)
	tags := map[string]string{"queue": spec.Name, "source": spec.Source, "job_type": string(jt)}
	w.Metrics.Incr("worker_jobs_received_total", 1, tags)

	inflightKey := queuestore.InflightKey(string(jt))
	limit := w.limitFor(jt)
	if limit <= 0 {
		w.requeue(ctx, spec.Name, raw)
		sleepCtx(ctx, w.Config.AdmissionRetryDelay)
		return
	}
	card, err := w.Store.SCard(ctx, inflightKey)
	if err != nil {
		w.Logger.Warn().Err(err).Msg("admission cardinality read failed, requeueing")
		w.requeue(ctx, spec.Name, raw)
		sleepCtx(ctx, w.Config.AdmissionRetryDelay)
		return
	}
	if card >= int64(limit) {
		w.requeue(ctx, spec.Name, raw)
		sleepCtx(ctx, w.Config.AdmissionRetryDelay)
		return
	}
	if err := w.Store.SAdd(ctx, inflightKey, job.JobID, queuestore.InflightTTL); err != nil {
		w.Logger.Warn().Err(err).Msg("admission SAdd failed, requeueing")
		w.requeue(ctx, spec.Name, raw)
		sleepCtx(ctx, w.Config.AdmissionRetryDelay)
		return
	}
	admitted := true
	releaseAdmission := func() {
		if admitted {
			admitted = false
			if err := w.Store.SRem(ctx, inflightKey, job.JobID); err != nil {
				w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to release in-flight slot")
			}
		}
	}
	defer releaseAdmission()

	if w.Canceller.IsCancelled(ctx, job.JobID) {
		w.writeCancelled(ctx, &job)
		w.Metrics.Incr("worker_jobs_cancelled_total", 1, tags)
		return
	}

	result, err := w.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"status":   string(jobmodel.StatusProcessing),
		"progress": 1,
	}, job.RequestID)
	if err != nil {
		w.handleFailure(ctx, spec, &job, fmt.Errorf("writing PROCESSING status: %w", err), tags)
		return
	}
	if !result.OK {
		w.handleFailure(ctx, spec, &job, fmt.Errorf("blocked transition to PROCESSING from %s", result.From), tags)
		return
	}

	start := time.Now()
	runner := w.pipelineFor(jt)
	_, runErr := runner.Run(ctx, &job)
	w.Metrics.ObserveMS("worker_dispatch_latency_ms", float64(time.Since(start).Milliseconds()), tags)

	if runErr == nil {
		w.handleSuccess(ctx, &job, tags)
		return
	}

	var cancelled *cancel.JobCancelled
	if errors.As(runErr, &cancelled) {
		w.writeCancelled(ctx, &job)
		w.Metrics.Incr("worker_jobs_cancelled_total", 1, tags)
		return
	}

	releaseAdmission()
	w.handleFailure(ctx, spec, &job, runErr, tags)
}

func (w *Worker) handleSuccess(ctx context.Context, job *jobmodel.Job, tags map[string]string) {
	fields, err := w.Store.HGetAll(ctx, queuestore.StatusKey(job.JobID))
	if err != nil {
		w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to read status after success")
	}
	status := fields["status"]
	if status != string(jobmodel.StatusWaitingApproval) &&
		status != string(jobmodel.StatusApproved) &&
		status != string(jobmodel.StatusCancelled) {
		if _, err := w.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
			"status":        string(jobmodel.StatusCompleted),
			"progress":      100,
			"error_code":    "",
			"error_message": "",
			"error_detail":  "",
			"error":         "",
		}, job.RequestID); err != nil {
			w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to write completion status")
		}
	}
	w.Metrics.Incr("worker_jobs_completed_total", 1, tags)
}

func (w *Worker) writeCancelled(ctx context.Context, job *jobmodel.Job) {
	if _, err := w.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"status": string(jobmodel.StatusCancelled),
	}, job.RequestID); err != nil {
		w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to write cancelled status")
	}
}

// handleFailure applies the recovery policy (C2) to a dispatch failure:
// retry-with-requeue or fail-fast-to-DLQ (spec.md section 4.11 step 6).
func (w *Worker) handleFailure(ctx context.Context, spec QueueSpec, job *jobmodel.Job, cause error, tags map[string]string) {
	if w.Canceller.IsCancelled(ctx, job.JobID) {
		w.writeCancelled(ctx, job)
		w.Metrics.Incr("worker_jobs_cancelled_total", 1, tags)
		return
	}

	code, message := taxonomy.Classify(cause.Error(), taxonomy.VariantNone)
	decision := recovery.Decide(code, job.Attempts, w.Config.RetryBudgets)

	if decision.RetryAllowed {
		if _, err := w.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
			"status": string(jobmodel.StatusQueued),
			"stage":  fmt.Sprintf("Retry scheduled (%d/%d)", decision.NextAttempt, decision.MaxAttempts),
		}, job.RequestID); err != nil {
			w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to write retry-scheduled status")
		}

		requeued := *job
		requeued.Attempts = decision.NextAttempt
		requeued.MaxAttempts = decision.MaxAttempts

		delay := time.Duration(recovery.BackoffDelaySeconds(decision.NextAttempt) * float64(time.Second))
		sleepCtx(ctx, delay)

		payload, err := json.Marshal(&requeued)
		if err != nil {
			w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to marshal requeued job")
			return
		}
		if err := w.Store.RPush(ctx, spec.Name, payload); err != nil {
			w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to requeue job")
		}
		return
	}

	errorDetail := taxonomy.ErrorDetail(taxonomy.VariantNone, cause)
	if _, err := w.StateMachine.GuardedWrite(ctx, job.JobID, map[string]any{
		"status":        string(jobmodel.StatusFailed),
		"error_code":    string(code),
		"error_message": message,
		"error_detail":  errorDetail,
		"error":         cause.Error(),
	}, job.RequestID); err != nil {
		w.Logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to write failed status")
	}

	entry := deadletter.Build(deadletter.Params{
		Job:         job,
		QueueName:   spec.Name,
		DLQName:     spec.DLQName,
		QueueSource: spec.Source,
		FailedStage: "dispatch",
		ErrorCode:   string(code),
		Error:       message,
		ErrorDetail: errorDetail,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		WorkerID:    w.Config.WorkerID,
	})
	w.pushDLQ(ctx, spec.DLQName, entry)
	w.Metrics.Incr("worker_jobs_failed_total", 1, tags)
}

func (w *Worker) requeue(ctx context.Context, queue string, raw []byte) {
	if err := w.Store.RPush(ctx, queue, raw); err != nil {
		w.Logger.Warn().Err(err).Str("queue", queue).Msg("failed to requeue blocked-admission payload")
	}
}

func (w *Worker) pushDLQ(ctx context.Context, dlqName string, entry *jobmodel.DeadLetterEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		w.Logger.Error().Err(err).Msg("failed to marshal dead-letter entry")
		return
	}
	if err := w.Store.LPush(ctx, dlqName, payload); err != nil {
		w.Logger.Error().Err(err).Str("dlq", dlqName).Msg("failed to push dead-letter entry")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// ReadinessReport is the process bootstrap's readiness probe result
// (spec.md section 1, "readiness probe endpoints"), grounded on
// original_source/worker/readiness.py's redis/gcs check shape.
type ReadinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Readiness pings the KV store and probes blob-store reachability,
// returning "ok" only if both succeed.
func (w *Worker) Readiness(ctx context.Context) ReadinessReport {
	checks := map[string]string{"redis": "unknown", "blobstore": "unknown"}

	if err := w.Store.Ping(ctx); err != nil {
		checks["redis"] = "error:" + err.Error()
	} else {
		checks["redis"] = "ok"
	}

	if _, err := w.BlobStore.Exists(ctx, "readiness-probe"); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		checks["blobstore"] = "error:" + err.Error()
	} else {
		checks["blobstore"] = "ok"
	}

	status := "ok"
	if checks["redis"] != "ok" || checks["blobstore"] != "ok" {
		status = "degraded"
	}
	return ReadinessReport{Status: status, Checks: checks}
}
