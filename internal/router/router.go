// Package router classifies a job as OCR or transcription (C9) from
// payload hints and the filename extension.
package router

import (
	"path/filepath"
	"strings"

	"github.com/bobmcallan/docworker/internal/jobmodel"
)

var ocrExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// Route classifies a job, depending only on source, job_type/type, and
// the file extension of filename (spec.md section 8 invariant).
func Route(job *jobmodel.Job) jobmodel.JobType {
	if strings.EqualFold(job.Source, "ocr") {
		return jobmodel.JobTypeOCR
	}
	if strings.EqualFold(job.EffectiveJobType(), "OCR") {
		return jobmodel.JobTypeOCR
	}
	ext := strings.ToLower(filepath.Ext(job.Filename))
	if ocrExtensions[ext] {
		return jobmodel.JobTypeOCR
	}
	return jobmodel.JobTypeTranscription
}
