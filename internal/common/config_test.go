package common

import "testing"

func TestConfig_NewDefault_CoreDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Queue.Mode != "single" {
		t.Errorf("Queue.Mode default = %q, want %q", cfg.Queue.Mode, "single")
	}
	if cfg.Worker.MaxInflightOCR != 1 || cfg.Worker.MaxInflightTranscription != 1 {
		t.Errorf("MaxInflight defaults = %d/%d, want 1/1", cfg.Worker.MaxInflightOCR, cfg.Worker.MaxInflightTranscription)
	}
	if cfg.OCR.DPI != 200 {
		t.Errorf("OCR.DPI default = %d, want 200", cfg.OCR.DPI)
	}
	if cfg.Transcription.ChunkDurationSec != 300 {
		t.Errorf("Transcription.ChunkDurationSec default = %d, want 300", cfg.Transcription.ChunkDurationSec)
	}
}

func TestConfig_RequiredEnvOverrides(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "proj-1")
	t.Setenv("GCS_BUCKET_NAME", "bucket-1")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PROMPT_FILE", "/prompts/default.txt")
	t.Setenv("PROMPT_NAME", "OCR_DEFAULT")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.GCPProjectID != "proj-1" {
		t.Errorf("GCPProjectID = %q, want %q", cfg.GCPProjectID, "proj-1")
	}
	if cfg.GCSBucketName != "bucket-1" {
		t.Errorf("GCSBucketName = %q, want %q", cfg.GCSBucketName, "bucket-1")
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.PromptFile != "/prompts/default.txt" {
		t.Errorf("PromptFile = %q", cfg.PromptFile)
	}
	if cfg.PromptName != "OCR_DEFAULT" {
		t.Errorf("PromptName = %q", cfg.PromptName)
	}

	if missing := cfg.ValidateRequired(); len(missing) != 0 {
		t.Errorf("expected 0 missing required fields, got %v", missing)
	}
}

func TestConfig_ValidateRequired_AllMissing(t *testing.T) {
	cfg := &Config{}
	missing := cfg.ValidateRequired()
	want := []string{"GCP_PROJECT_ID", "GCS_BUCKET_NAME", "REDIS_URL", "PROMPT_FILE", "PROMPT_NAME"}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing fields, got %d: %v", len(want), len(missing), missing)
	}
	for i, name := range want {
		if missing[i] != name {
			t.Errorf("missing[%d] = %q, want %q", i, missing[i], name)
		}
	}
}

func TestConfig_GeminiKeyEnvOverride(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-from-env")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.GeminiAPIKey != "gem-from-env" {
		t.Errorf("GeminiAPIKey = %q, want %q", cfg.GeminiAPIKey, "gem-from-env")
	}
}

func TestConfig_GeminiKeyGoogleEnvFallback(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "google-fallback")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.GeminiAPIKey != "google-fallback" {
		t.Errorf("GeminiAPIKey = %q, want %q", cfg.GeminiAPIKey, "google-fallback")
	}
}

func TestConfig_GeminiKeyExplicitTakesPrecedenceOverGoogleFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "explicit")
	t.Setenv("GOOGLE_API_KEY", "fallback")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.GeminiAPIKey != "explicit" {
		t.Errorf("GeminiAPIKey = %q, want %q", cfg.GeminiAPIKey, "explicit")
	}
}

func TestConfig_RetryBudgetEnvOverrides(t *testing.T) {
	t.Setenv("RETRY_BUDGET_TRANSIENT", "5")
	t.Setenv("RETRY_BUDGET_MEDIA", "1")
	t.Setenv("RETRY_BUDGET_DEFAULT", "2")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	budgets := cfg.Retry.Budgets()
	if budgets.Transient != 5 || budgets.Media != 1 || budgets.Default != 2 {
		t.Errorf("Budgets() = %+v, want {5 1 2}", budgets)
	}
}

func TestConfig_QueueMode_Both(t *testing.T) {
	t.Setenv("QUEUE_MODE", "both")
	t.Setenv("LOCAL_QUEUE_NAME", "queue:local")
	t.Setenv("LOCAL_DLQ_NAME", "dlq:local")
	t.Setenv("CLOUD_QUEUE_NAME", "queue:cloud")
	t.Setenv("CLOUD_DLQ_NAME", "dlq:cloud")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	entries := cfg.Queue.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 queue entries, got %d", len(entries))
	}
	if entries[0].Name != "queue:local" || entries[0].Source != "local" {
		t.Errorf("entries[0] = %+v, want local queue first", entries[0])
	}
	if entries[1].Name != "queue:cloud" || entries[1].Source != "cloud" {
		t.Errorf("entries[1] = %+v, want cloud queue second", entries[1])
	}
}

func TestConfig_QueueMode_Partitioned(t *testing.T) {
	t.Setenv("QUEUE_MODE", "partitioned")
	t.Setenv("OCR_QUEUE_NAME", "queue:ocr")
	t.Setenv("OCR_DLQ_NAME", "dlq:ocr")
	t.Setenv("TRANSCRIPTION_QUEUE_NAME", "queue:transcription")
	t.Setenv("TRANSCRIPTION_DLQ_NAME", "dlq:transcription")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	entries := cfg.Queue.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 queue entries, got %d", len(entries))
	}
	if entries[0].Source != "ocr" || entries[1].Source != "transcription" {
		t.Errorf("entries = %+v, want ocr before transcription", entries)
	}
}

func TestConfig_QueueMode_SingleIsDefault(t *testing.T) {
	cfg := NewDefaultConfig()
	entries := cfg.Queue.Entries()
	if len(entries) != 1 || entries[0].Source != "primary" {
		t.Errorf("entries = %+v, want one primary entry", entries)
	}
}

func TestConfig_OCRPipelineTuningEnvOverrides(t *testing.T) {
	t.Setenv("OCR_DPI", "300")
	t.Setenv("OCR_PAGE_BATCH_SIZE", "10")
	t.Setenv("OCR_PAGE_RETRIES", "4")
	t.Setenv("OCR_ALLOW_EMPTY_PAGE_FALLBACK", "false")
	t.Setenv("OCR_LOW_CONFIDENCE_THRESHOLD", "0.80")
	t.Setenv("TRANSCRIBE_CHUNK_DURATION_SEC", "120")
	t.Setenv("TRANSCRIBE_LOW_CONFIDENCE_THRESHOLD", "0.75")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.OCR.DPI != 300 {
		t.Errorf("OCR.DPI = %d, want 300", cfg.OCR.DPI)
	}
	if cfg.OCR.PageBatchSize != 10 {
		t.Errorf("OCR.PageBatchSize = %d, want 10", cfg.OCR.PageBatchSize)
	}
	if cfg.OCR.PageRetries != 4 {
		t.Errorf("OCR.PageRetries = %d, want 4", cfg.OCR.PageRetries)
	}
	if cfg.OCR.AllowEmptyPageFallback {
		t.Errorf("OCR.AllowEmptyPageFallback = true, want false")
	}
	if cfg.OCR.LowConfidenceThreshold != 0.80 {
		t.Errorf("OCR.LowConfidenceThreshold = %v, want 0.80", cfg.OCR.LowConfidenceThreshold)
	}
	if cfg.Transcription.ChunkDurationSec != 120 {
		t.Errorf("Transcription.ChunkDurationSec = %d, want 120", cfg.Transcription.ChunkDurationSec)
	}
	if cfg.Transcription.LowConfidenceThreshold != 0.75 {
		t.Errorf("Transcription.LowConfidenceThreshold = %v, want 0.75", cfg.Transcription.LowConfidenceThreshold)
	}
}

func TestConfig_RetryPrimitiveTuningEnvOverrides(t *testing.T) {
	t.Setenv("WORKER_REDIS_RETRIES", "5")
	t.Setenv("WORKER_REDIS_BACKOFF_SEC", "0.25")
	t.Setenv("WORKER_REDIS_MAX_BACKOFF_SEC", "3.5")
	t.Setenv("GCS_RETRIES", "6")
	t.Setenv("GCS_BACKOFF_SEC", "1.0")
	t.Setenv("GCS_MAX_BACKOFF_SEC", "10.0")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Retry.RedisRetries != 5 || cfg.Retry.RedisBackoffSec != 0.25 || cfg.Retry.RedisMaxBackoffSec != 3.5 {
		t.Errorf("redis retry tuning = %+v", cfg.Retry)
	}
	if cfg.Retry.GCSRetries != 6 || cfg.Retry.GCSBackoffSec != 1.0 || cfg.Retry.GCSMaxBackoffSec != 10.0 {
		t.Errorf("gcs retry tuning = %+v", cfg.Retry)
	}
}

func TestConfig_QualityWeightEnvOverride(t *testing.T) {
	t.Setenv("QUALITY_WEIGHT_CHAR_CONF", "0.5")
	t.Setenv("QUALITY_GUARD_LOW_THRESHOLD", "0.7")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Quality.OCRWeights.CharConf != 0.5 {
		t.Errorf("OCRWeights.CharConf = %v, want 0.5", cfg.Quality.OCRWeights.CharConf)
	}
	if cfg.Quality.OCRGuards.LowThreshold != 0.7 {
		t.Errorf("OCRGuards.LowThreshold = %v, want 0.7", cfg.Quality.OCRGuards.LowThreshold)
	}
	// Untouched weights keep their defaults.
	if cfg.Quality.OCRWeights.Density != 0.12 {
		t.Errorf("OCRWeights.Density = %v, want unchanged default 0.12", cfg.Quality.OCRWeights.Density)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.IsProduction() {
		t.Errorf("default environment %q should not be production", cfg.Environment)
	}
	cfg.Environment = "production"
	if !cfg.IsProduction() {
		t.Errorf("environment 'production' should report IsProduction() = true")
	}
}

func TestConfig_LoadConfig_MissingFileSkipped(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil (missing file skipped)", err)
	}
	if cfg.Queue.Mode != "single" {
		t.Errorf("expected defaults to survive a missing config path, got Mode=%q", cfg.Queue.Mode)
	}
}
