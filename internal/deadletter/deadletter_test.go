package deadletter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/docworker/internal/deadletter"
	"github.com/bobmcallan/docworker/internal/jobmodel"
)

func TestBuild_SchemaAndInputType(t *testing.T) {
	job := &jobmodel.Job{JobID: "j1", Filename: "report.pdf", Attempts: 2}
	entry := deadletter.Build(deadletter.Params{
		Job:         job,
		QueueName:   "ocr-queue",
		DLQName:     "ocr-dlq",
		QueueSource: "local",
		ErrorCode:   "PROCESSING_FAILED",
		Error:       "boom",
		ErrorDetail: "RuntimeError: boom",
		Attempts:    2,
		MaxAttempts: 0,
	})

	assert.Equal(t, "v1", entry.SchemaVersion)
	assert.Equal(t, jobmodel.StatusFailed, jobmodel.Status(entry.Status))
	assert.Equal(t, jobmodel.InputTypePDF, entry.InputType)
	assert.Equal(t, jobmodel.ErrorTypeSystem, entry.ErrorType)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, 1, entry.MaxAttempts, "max_attempts must be clamped to >= 1")
	assert.Same(t, job, entry.Payload)
}

func TestBuild_ErrorTypeFolding(t *testing.T) {
	cases := map[string]jobmodel.ErrorType{
		"INPUT_NOT_FOUND":      jobmodel.ErrorTypeValidation,
		"VALIDATION_SCHEMA":    jobmodel.ErrorTypeValidation,
		"MEDIA_DECODE_FAILED":  jobmodel.ErrorTypeModel,
		"MODEL_TIMEOUT":        jobmodel.ErrorTypeModel,
		"INFRA_REDIS":          jobmodel.ErrorTypeSystem,
		"PROCESSING_FAILED":    jobmodel.ErrorTypeSystem,
		"RATE_LIMIT_EXCEEDED":  jobmodel.ErrorTypeSystem,
		"IO_WRITE_FAILED":      jobmodel.ErrorTypeIO,
		"SOMETHING_UNEXPECTED": jobmodel.ErrorTypeSystem,
	}
	for code, want := range cases {
		entry := deadletter.Build(deadletter.Params{
			Job:       &jobmodel.Job{JobID: "j"},
			ErrorCode: code,
		})
		assert.Equal(t, want, entry.ErrorType, code)
	}
}

func TestBuild_InputTypeFallsBackToSource(t *testing.T) {
	entry := deadletter.Build(deadletter.Params{
		Job: &jobmodel.Job{JobID: "j", Source: "transcription", Filename: "noext"},
	})
	assert.Equal(t, jobmodel.InputTypeAudio, entry.InputType)
}

func TestBuild_UnknownInputType(t *testing.T) {
	entry := deadletter.Build(deadletter.Params{
		Job: &jobmodel.Job{JobID: "j"},
	})
	assert.Equal(t, jobmodel.InputTypeUnknown, entry.InputType)
}
