// Package deadletter builds the schema-stable dead-letter record (C10)
// pushed onto the DLQ list when a job exhausts its retry budget.
package deadletter

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/docworker/internal/jobmodel"
)

const SchemaVersion = "v1"

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".tif": true, ".tiff": true,
}
var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true, ".ogg": true,
}
var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true,
}

// inputType derives the dead-letter input category from the filename
// extension, then falls back to the source hint (spec.md section 4.10).
func inputType(job *jobmodel.Job) jobmodel.InputType {
	ext := strings.ToLower(filepath.Ext(job.Filename))
	switch {
	case ext == ".pdf":
		return jobmodel.InputTypePDF
	case imageExtensions[ext]:
		return jobmodel.InputTypeImage
	case audioExtensions[ext]:
		return jobmodel.InputTypeAudio
	case videoExtensions[ext]:
		return jobmodel.InputTypeVideo
	}
	switch strings.ToLower(job.Source) {
	case "ocr":
		return jobmodel.InputTypePDF
	case "transcription":
		return jobmodel.InputTypeAudio
	}
	return jobmodel.InputTypeUnknown
}

// errorTypeFor folds an error_code prefix into the coarse error_type
// (spec.md section 4.10).
func errorTypeFor(errorCode string) jobmodel.ErrorType {
	switch {
	case strings.HasPrefix(errorCode, "INPUT_"), strings.HasPrefix(errorCode, "VALIDATION_"):
		return jobmodel.ErrorTypeValidation
	case strings.HasPrefix(errorCode, "MEDIA_"), strings.HasPrefix(errorCode, "MODEL_"):
		return jobmodel.ErrorTypeModel
	case strings.HasPrefix(errorCode, "INFRA_"), strings.HasPrefix(errorCode, "PROCESSING_"), strings.HasPrefix(errorCode, "RATE_"):
		return jobmodel.ErrorTypeSystem
	case strings.HasPrefix(errorCode, "IO_"):
		return jobmodel.ErrorTypeIO
	default:
		return jobmodel.ErrorTypeSystem
	}
}

// Params carries the inputs needed to build a DeadLetterEntry.
type Params struct {
	Job         *jobmodel.Job
	QueueName   string
	DLQName     string
	QueueSource string
	FailedStage string
	ErrorCode   string
	Error       string
	ErrorDetail string
	Attempts    int
	MaxAttempts int
	WorkerID    string
}

// Build produces the schema-v1 dead-letter record.
func Build(p Params) *jobmodel.DeadLetterEntry {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &jobmodel.DeadLetterEntry{
		SchemaVersion: SchemaVersion,
		FailedAt:      time.Now().UTC(),
		Status:        string(jobmodel.StatusFailed),
		JobID:         p.Job.JobID,
		RequestID:     p.Job.RequestID,
		JobType:       p.Job.EffectiveJobType(),
		InputType:     inputType(p.Job),
		QueueName:     p.QueueName,
		DLQName:       p.DLQName,
		QueueSource:   p.QueueSource,
		FailedStage:   p.FailedStage,
		ErrorCode:     p.ErrorCode,
		ErrorType:     errorTypeFor(p.ErrorCode),
		Error:         p.Error,
		ErrorDetail:   p.ErrorDetail,
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
		WorkerID:      p.WorkerID,
		Payload:       p.Job,
	}
}
