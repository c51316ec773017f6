// Package common provides shared utilities for the docworker service:
// configuration, structured logging, startup banner, and version info.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/docworker/internal/quality"
	"github.com/bobmcallan/docworker/internal/recovery"
)

// Config holds all configuration for the docworker service (spec.md
// section 6's environment variable surface, loadable from TOML with
// environment overrides layered on top).
type Config struct {
	Environment string `toml:"environment"`

	GCPProjectID  string `toml:"gcp_project_id"`
	GCSBucketName string `toml:"gcs_bucket_name"`
	RedisURL      string `toml:"redis_url"`
	GeminiAPIKey  string `toml:"gemini_api_key"`

	PromptFile string `toml:"prompt_file"`
	PromptName string `toml:"prompt_name"`

	Queue         QueueConfig         `toml:"queue"`
	Worker        WorkerConfig        `toml:"worker"`
	OCR           OCRConfig           `toml:"ocr"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Retry         RetryConfig         `toml:"retry"`
	Quality       QualityConfig       `toml:"quality"`
	Logging       LoggingConfig       `toml:"logging"`
}

// QueueEntry names one queue to poll, in priority order, and the DLQ it
// dead-letters to. Kept here rather than as internal/worker.QueueSpec to
// avoid common importing worker; cmd/docworker-worker converts.
type QueueEntry struct {
	Name    string
	Source  string
	DLQName string
}

// QueueConfig selects and names the queue(s) this worker polls (spec.md
// section 6's "queue mode group").
type QueueConfig struct {
	// Mode is one of "single", "both", or "partitioned".
	Mode string `toml:"mode"`

	QueueName string `toml:"queue_name"`
	DLQName   string `toml:"dlq_name"`

	LocalQueueName string `toml:"local_queue_name"`
	LocalDLQName   string `toml:"local_dlq_name"`
	CloudQueueName string `toml:"cloud_queue_name"`
	CloudDLQName   string `toml:"cloud_dlq_name"`

	OCRQueueName           string `toml:"ocr_queue_name"`
	OCRDLQName             string `toml:"ocr_dlq_name"`
	TranscriptionQueueName string `toml:"transcription_queue_name"`
	TranscriptionDLQName   string `toml:"transcription_dlq_name"`
}

// Entries builds the ordered queue list for the configured mode (spec.md
// section 9's "Multi-queue priority" design note: a single blocking pop
// over an ordered list, not round-robin). An unrecognized mode falls back
// to "single".
func (q QueueConfig) Entries() []QueueEntry {
	switch q.Mode {
	case "both":
		return []QueueEntry{
			{Name: q.LocalQueueName, Source: "local", DLQName: q.LocalDLQName},
			{Name: q.CloudQueueName, Source: "cloud", DLQName: q.CloudDLQName},
		}
	case "partitioned":
		return []QueueEntry{
			{Name: q.OCRQueueName, Source: "ocr", DLQName: q.OCRDLQName},
			{Name: q.TranscriptionQueueName, Source: "transcription", DLQName: q.TranscriptionDLQName},
		}
	default:
		return []QueueEntry{
			{Name: q.QueueName, Source: "primary", DLQName: q.DLQName},
		}
	}
}

// WorkerConfig holds the main loop's tuning knobs (spec.md section 4.11).
type WorkerConfig struct {
	MaxInflightOCR            int    `toml:"max_inflight_ocr"`
	MaxInflightTranscription  int    `toml:"max_inflight_transcription"`
	BRPopTimeoutSec           int    `toml:"brpop_timeout_sec"`
	MaxIdleBeforeReconnectSec int    `toml:"max_idle_before_reconnect_sec"`
	WorkerID                  string `toml:"worker_id"`
}

// BRPopTimeout returns the blocking pop timeout as a duration.
func (c WorkerConfig) BRPopTimeout() time.Duration {
	return time.Duration(c.BRPopTimeoutSec) * time.Second
}

// MaxIdleBeforeReconnect returns the idle-before-reconnect threshold.
func (c WorkerConfig) MaxIdleBeforeReconnect() time.Duration {
	return time.Duration(c.MaxIdleBeforeReconnectSec) * time.Second
}

// OCRConfig holds the OCR pipeline's tuning knobs (spec.md section 4.7).
type OCRConfig struct {
	DPI                    int     `toml:"dpi"`
	PageBatchSize          int     `toml:"page_batch_size"`
	PageRetries            int     `toml:"page_retries"`
	AllowEmptyPageFallback bool    `toml:"allow_empty_page_fallback"`
	LowConfidenceThreshold float64 `toml:"low_confidence_threshold"`
}

// TranscriptionConfig holds the transcription pipeline's tuning knobs
// (spec.md section 4.8).
type TranscriptionConfig struct {
	ChunkDurationSec       int     `toml:"chunk_duration_sec"`
	LowConfidenceThreshold float64 `toml:"low_confidence_threshold"`
}

// RetryConfig holds the recovery-policy retry budgets (spec.md section
// 4.2) and the infrastructure retry primitive's tuning (section 4.4).
type RetryConfig struct {
	TransientBudget int `toml:"transient_budget"`
	MediaBudget     int `toml:"media_budget"`
	DefaultBudget   int `toml:"default_budget"`

	RedisRetries       int     `toml:"redis_retries"`
	RedisBackoffSec    float64 `toml:"redis_backoff_sec"`
	RedisMaxBackoffSec float64 `toml:"redis_max_backoff_sec"`

	GCSRetries       int     `toml:"gcs_retries"`
	GCSBackoffSec    float64 `toml:"gcs_backoff_sec"`
	GCSMaxBackoffSec float64 `toml:"gcs_max_backoff_sec"`
}

// Budgets returns the recovery-policy budgets this config describes.
func (c RetryConfig) Budgets() recovery.Budgets {
	return recovery.Budgets{
		Transient: c.TransientBudget,
		Media:     c.MediaBudget,
		Default:   c.DefaultBudget,
	}
}

// QualityConfig holds the deterministic quality scorer's weights and
// guard thresholds (spec.md section 4.6), overridable per deployment.
type QualityConfig struct {
	OCRWeights quality.OCRWeights `toml:"ocr_weights"`
	OCRGuards  quality.OCRGuards  `toml:"ocr_guards"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults, matching
// spec.md's documented defaults for every tunable knob.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",

		Queue: QueueConfig{
			Mode:      "single",
			QueueName: "queue:docworker",
			DLQName:   "dlq:docworker",
		},
		Worker: WorkerConfig{
			MaxInflightOCR:            1,
			MaxInflightTranscription:  1,
			BRPopTimeoutSec:           10,
			MaxIdleBeforeReconnectSec: 60,
		},
		OCR: OCRConfig{
			DPI:                    200,
			PageBatchSize:          0,
			PageRetries:            2,
			AllowEmptyPageFallback: true,
			LowConfidenceThreshold: 0.65,
		},
		Transcription: TranscriptionConfig{
			ChunkDurationSec:       300,
			LowConfidenceThreshold: 0.60,
		},
		Retry: RetryConfig{
			TransientBudget: 3,
			MediaBudget:     0,
			DefaultBudget:   0,

			RedisRetries:       2,
			RedisBackoffSec:    0.15,
			RedisMaxBackoffSec: 2.0,

			GCSRetries:       3,
			GCSBackoffSec:    0.5,
			GCSMaxBackoffSec: 5.0,
		},
		Quality: QualityConfig{
			OCRWeights: quality.DefaultOCRWeights,
			OCRGuards:  quality.DefaultOCRGuards,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from TOML files (later files override
// earlier ones), then layers environment variable overrides on top.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies the environment variables named in spec.md
// section 6 on top of whatever TOML files were loaded.
func applyEnvOverrides(config *Config) {
	envString("ENVIRONMENT", &config.Environment)

	envString("GCP_PROJECT_ID", &config.GCPProjectID)
	envString("GCS_BUCKET_NAME", &config.GCSBucketName)
	envString("REDIS_URL", &config.RedisURL)
	envString("GEMINI_API_KEY", &config.GeminiAPIKey)
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" && config.GeminiAPIKey == "" {
		config.GeminiAPIKey = v
	}

	envString("PROMPT_FILE", &config.PromptFile)
	envString("PROMPT_NAME", &config.PromptName)

	envString("QUEUE_MODE", &config.Queue.Mode)
	envString("QUEUE_NAME", &config.Queue.QueueName)
	envString("DLQ_NAME", &config.Queue.DLQName)
	envString("LOCAL_QUEUE_NAME", &config.Queue.LocalQueueName)
	envString("LOCAL_DLQ_NAME", &config.Queue.LocalDLQName)
	envString("CLOUD_QUEUE_NAME", &config.Queue.CloudQueueName)
	envString("CLOUD_DLQ_NAME", &config.Queue.CloudDLQName)
	envString("OCR_QUEUE_NAME", &config.Queue.OCRQueueName)
	envString("OCR_DLQ_NAME", &config.Queue.OCRDLQName)
	envString("TRANSCRIPTION_QUEUE_NAME", &config.Queue.TranscriptionQueueName)
	envString("TRANSCRIPTION_DLQ_NAME", &config.Queue.TranscriptionDLQName)

	envInt("WORKER_MAX_INFLIGHT_OCR", &config.Worker.MaxInflightOCR)
	envInt("WORKER_MAX_INFLIGHT_TRANSCRIPTION", &config.Worker.MaxInflightTranscription)
	envString("WORKER_ID", &config.Worker.WorkerID)

	envInt("RETRY_BUDGET_TRANSIENT", &config.Retry.TransientBudget)
	envInt("RETRY_BUDGET_MEDIA", &config.Retry.MediaBudget)
	envInt("RETRY_BUDGET_DEFAULT", &config.Retry.DefaultBudget)

	envInt("OCR_DPI", &config.OCR.DPI)
	envInt("OCR_PAGE_BATCH_SIZE", &config.OCR.PageBatchSize)
	envInt("OCR_PAGE_RETRIES", &config.OCR.PageRetries)
	envBool("OCR_ALLOW_EMPTY_PAGE_FALLBACK", &config.OCR.AllowEmptyPageFallback)
	envFloat("OCR_LOW_CONFIDENCE_THRESHOLD", &config.OCR.LowConfidenceThreshold)

	envInt("TRANSCRIBE_CHUNK_DURATION_SEC", &config.Transcription.ChunkDurationSec)
	envFloat("TRANSCRIBE_LOW_CONFIDENCE_THRESHOLD", &config.Transcription.LowConfidenceThreshold)

	envString("LOG_LEVEL", &config.Logging.Level)

	envInt("WORKER_REDIS_RETRIES", &config.Retry.RedisRetries)
	envFloat("WORKER_REDIS_BACKOFF_SEC", &config.Retry.RedisBackoffSec)
	envFloat("WORKER_REDIS_MAX_BACKOFF_SEC", &config.Retry.RedisMaxBackoffSec)
	envInt("GCS_RETRIES", &config.Retry.GCSRetries)
	envFloat("GCS_BACKOFF_SEC", &config.Retry.GCSBackoffSec)
	envFloat("GCS_MAX_BACKOFF_SEC", &config.Retry.GCSMaxBackoffSec)

	applyQualityOverrides(config)
}

// applyQualityOverrides reads the quality-scorer weight env vars
// (spec.md section 4.6, section 6 "weights JSON and named guard
// thresholds"). Each of the five weights, the four clean-text guard
// thresholds and LowThreshold has its own env var rather than a single
// JSON blob, matching the rest of this function's per-field override
// style; the other guard thresholds have no env override.
func applyQualityOverrides(config *Config) {
	w := &config.Quality.OCRWeights
	envFloat("QUALITY_WEIGHT_CHAR_CONF", &w.CharConf)
	envFloat("QUALITY_WEIGHT_DENSITY", &w.Density)
	envFloat("QUALITY_WEIGHT_CONTRAST", &w.Contrast)
	envFloat("QUALITY_WEIGHT_BLUR", &w.BlurQuality)
	envFloat("QUALITY_WEIGHT_NOISE", &w.NoiseQuality)

	g := &config.Quality.OCRGuards
	envInt("QUALITY_GUARD_CLEAN_TEXT_MIN_CHARS", &g.CleanTextMinChars)
	envFloat("QUALITY_GUARD_CLEAN_TEXT_GARBAGE_MAX", &g.CleanTextGarbageMax)
	envFloat("QUALITY_GUARD_CLEAN_TEXT_CHAR_CONF_MIN", &g.CleanTextCharConfMin)
	envFloat("QUALITY_GUARD_CLEAN_TEXT_FLOOR", &g.CleanTextFloor)
	envFloat("QUALITY_GUARD_LOW_THRESHOLD", &g.LowThreshold)
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the names of every required setting that is
// still empty after loading files and environment overrides (spec.md
// section 6's required set: GCP_PROJECT_ID, GCS_BUCKET_NAME, REDIS_URL,
// PROMPT_FILE, PROMPT_NAME).
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.GCPProjectID == "" {
		missing = append(missing, "GCP_PROJECT_ID")
	}
	if c.GCSBucketName == "" {
		missing = append(missing, "GCS_BUCKET_NAME")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.PromptFile == "" {
		missing = append(missing, "PROMPT_FILE")
	}
	if c.PromptName == "" {
		missing = append(missing, "PROMPT_NAME")
	}
	return missing
}
