// Package jobmodel defines the job descriptor, status record, and
// dead-letter entry types shared by every other package in this module.
package jobmodel

import "time"

// Status is one of the job lifecycle states.
type Status string

const (
	StatusQueued           Status = "QUEUED"
	StatusProcessing       Status = "PROCESSING"
	StatusCompleted        Status = "COMPLETED"
	StatusFailed           Status = "FAILED"
	StatusCancelled        Status = "CANCELLED"
	StatusWaitingApproval  Status = "WAITING_APPROVAL"
	StatusApproved         Status = "APPROVED"
)

// Terminal reports whether s is a terminal (absorbing) state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobType distinguishes the two pipeline variants.
type JobType string

const (
	JobTypeOCR           JobType = "ocr"
	JobTypeTranscription JobType = "transcription"
)

// QueueMode selects which queue names the worker loop polls.
type QueueMode string

const (
	QueueModeSingle      QueueMode = "single"
	QueueModeBoth        QueueMode = "both"
	QueueModePartitioned QueueMode = "partitioned"
)

// ContractVersion is stamped on every status write that also writes status.
const ContractVersion = "v1"

// Job is the job descriptor delivered on the queue (spec.md section 3).
// All fields except JobID are optional; zero values carry their documented
// default meaning.
type Job struct {
	JobID          string `json:"job_id"`
	RequestID      string `json:"request_id,omitempty"`
	Source         string `json:"source,omitempty"`
	JobType        string `json:"job_type,omitempty"`
	Type           string `json:"type,omitempty"`
	Filename       string `json:"filename,omitempty"`
	ContentSubtype string `json:"content_subtype,omitempty"`
	InputPath      string `json:"input_path,omitempty"`
	InputGCSURI    string `json:"input_gcs_uri,omitempty"`
	OutputFilename string `json:"output_filename,omitempty"`
	Attempts       int    `json:"attempts"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
}

// EffectiveJobType returns JobType if set, else Type. Both are accepted on
// the wire per spec.md section 3 ("job_type / type").
func (j *Job) EffectiveJobType() string {
	if j.JobType != "" {
		return j.JobType
	}
	return j.Type
}

// StatusRecord is the job-status KV hash keyed by "job_status:<job_id>".
// Field names mirror spec.md section 3 exactly so callers can round-trip
// it through a map[string]string KV representation without translation.
type StatusRecord struct {
	Status           Status    `json:"status,omitempty"`
	Stage            string    `json:"stage,omitempty"`
	Progress         int       `json:"progress"`
	EtaSec           int       `json:"eta_sec,omitempty"`
	CurrentPage      int       `json:"current_page,omitempty"`
	TotalPages       int       `json:"total_pages,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
	ContractVersion  string    `json:"contract_version,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	ErrorDetail      string    `json:"error_detail,omitempty"`
	Error            string    `json:"error,omitempty"`
	OutputPath       string    `json:"output_path,omitempty"`
	OutputFilename   string    `json:"output_filename,omitempty"`
	OCRQualityScore  float64   `json:"ocr_quality_score,omitempty"`
	LowConfidencePages []int   `json:"low_confidence_pages,omitempty"`
	QualityHints     []string  `json:"quality_hints,omitempty"`
	CancelRequested  bool      `json:"cancel_requested,omitempty"`

	// OCRPageScore/OCRPageMetrics are per-page progress fields written
	// during C7 step 5, not part of the terminal record.
	OCRPageScore   float64           `json:"ocr_page_score,omitempty"`
	OCRPageMetrics map[string]float64 `json:"ocr_page_metrics,omitempty"`
}

// ToFields flattens the record into the string-keyed mapping the guarded
// writer and the KV store exchange. Only non-zero fields relevant to the
// write are included; callers build a fresh StatusRecord per write rather
// than mutating a shared one, so omission here means "leave unset".
func (r *StatusRecord) ToFields() map[string]any {
	f := map[string]any{}
	if r.Status != "" {
		f["status"] = string(r.Status)
	}
	if r.Stage != "" {
		f["stage"] = r.Stage
	}
	f["progress"] = r.Progress
	if r.EtaSec != 0 {
		f["eta_sec"] = r.EtaSec
	}
	if r.CurrentPage != 0 {
		f["current_page"] = r.CurrentPage
	}
	if r.TotalPages != 0 {
		f["total_pages"] = r.TotalPages
	}
	if !r.UpdatedAt.IsZero() {
		f["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if r.ContractVersion != "" {
		f["contract_version"] = r.ContractVersion
	}
	if r.ErrorCode != "" {
		f["error_code"] = r.ErrorCode
	}
	if r.ErrorMessage != "" {
		f["error_message"] = r.ErrorMessage
	}
	if r.ErrorDetail != "" {
		f["error_detail"] = r.ErrorDetail
	}
	if r.Error != "" {
		f["error"] = r.Error
	}
	if r.OutputPath != "" {
		f["output_path"] = r.OutputPath
	}
	if r.OutputFilename != "" {
		f["output_filename"] = r.OutputFilename
	}
	if r.OCRQualityScore != 0 {
		f["ocr_quality_score"] = r.OCRQualityScore
	}
	if r.LowConfidencePages != nil {
		f["low_confidence_pages"] = r.LowConfidencePages
	}
	if r.QualityHints != nil {
		f["quality_hints"] = r.QualityHints
	}
	if r.CancelRequested {
		f["cancel_requested"] = "1"
	}
	if r.OCRPageScore != 0 {
		f["ocr_page_score"] = r.OCRPageScore
	}
	if r.OCRPageMetrics != nil {
		f["ocr_page_metrics"] = r.OCRPageMetrics
	}
	return f
}

// InputType classifies a filename/source into the dead-letter input
// category (spec.md section 4.10).
type InputType string

const (
	InputTypePDF     InputType = "PDF"
	InputTypeImage   InputType = "IMAGE"
	InputTypeAudio   InputType = "AUDIO"
	InputTypeVideo   InputType = "VIDEO"
	InputTypeUnknown InputType = "UNKNOWN"
)

// ErrorType is the coarse DLQ failure category (spec.md section 4.10).
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeModel      ErrorType = "MODEL"
	ErrorTypeSystem     ErrorType = "SYSTEM"
	ErrorTypeIO         ErrorType = "IO"
)

// DeadLetterEntry is the schema-v1 record pushed onto the DLQ list
// (spec.md section 4.10).
type DeadLetterEntry struct {
	SchemaVersion string    `json:"schema_version"`
	FailedAt      time.Time `json:"failed_at"`
	Status        string    `json:"status"`
	JobID         string    `json:"job_id"`
	RequestID     string    `json:"request_id,omitempty"`
	JobType       string    `json:"job_type,omitempty"`
	InputType     InputType `json:"input_type"`
	QueueName     string    `json:"queue_name"`
	DLQName       string    `json:"dlq_name"`
	QueueSource   string    `json:"queue_source"`
	FailedStage   string    `json:"failed_stage,omitempty"`
	ErrorCode     string    `json:"error_code"`
	ErrorType     ErrorType `json:"error_type"`
	Error         string    `json:"error"`
	ErrorDetail   string    `json:"error_detail"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"max_attempts"`
	WorkerID      string    `json:"worker_id,omitempty"`
	Payload       *Job      `json:"payload"`
}
