// Package pipeline defines the shared shape the two processing variants
// (OCR, transcription) implement, per spec.md section 9's design note
// "Polymorphism between pipelines": a single Run method the worker loop
// dispatches to after the router (C9) has picked a variant.
package pipeline

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/bobmcallan/docworker/internal/jobmodel"
)

// Result is what a pipeline run produces for the worker loop to fold into
// the terminal status write.
type Result struct {
	OutputPath         string
	OutputFilename     string
	SignedURL          string
	QualityScore       float64
	LowConfidencePages []int
	QualityHints       []string
}

// Runner is implemented by both ocr.Pipeline and transcription.Pipeline.
type Runner interface {
	Run(ctx context.Context, job *jobmodel.Job) (Result, error)
}

var nonAlnumRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)

const maxOutputStemLen = 180

// SanitizeOutputFilename derives the ".txt" output filename from a
// preferred name (output_filename or the job's input filename), per
// spec.md section 4.7 step 7: NFKC-normalize, collapse non-alphanumeric
// runs to a single underscore, clamp to 180 characters, default stem
// "transcript" if nothing usable remains.
func SanitizeOutputFilename(preferred string) string {
	stem := Stem(preferred)
	normalized := norm.NFKC.String(stem)
	sanitized := nonAlnumRun.ReplaceAllString(normalized, "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "transcript"
	}
	if len(sanitized) > maxOutputStemLen {
		sanitized = sanitized[:maxOutputStemLen]
		sanitized = strings.TrimRight(sanitized, "_")
		if sanitized == "" {
			sanitized = "transcript"
		}
	}
	return sanitized + ".txt"
}

// Stem strips a trailing file extension, if any, from name.
func Stem(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}

// BlobKey is the jobs/<job_id>/<filename> output key spec.md section 4.7/
// 4.8/6 names for both pipelines.
func BlobKey(jobID, filename string) string {
	return "jobs/" + jobID + "/" + filename
}

// Join concatenates page/chunk texts with the blank-line separator spec.md
// section 6 specifies for the output blob.
func Join(parts []string) string {
	return strings.Join(parts, "\n\n")
}

// CapHints caps a quality-hint list at n entries (spec.md section 4.7
// step 8: "quality_hints (JSON, capped at 10)").
func CapHints(hints []string, n int) []string {
	if len(hints) <= n {
		return hints
	}
	return hints[:n]
}
