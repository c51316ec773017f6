// Package taxonomy classifies a raised failure into a stable error code
// and a user-facing message (C1 in the job-processing engine).
package taxonomy

import "strings"

// Code is one of the closed set of error classifications.
type Code string

const (
	CodeInfraGCS             Code = "INFRA_GCS"
	CodeInfraRedis           Code = "INFRA_REDIS"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeMediaDecodeFailed    Code = "MEDIA_DECODE_FAILED"
	CodeInputNotFound        Code = "INPUT_NOT_FOUND"
	CodeProcessingFailed     Code = "PROCESSING_FAILED"
)

// messages holds the one human sentence per code (spec.md section 7).
var messages = map[Code]string{
	CodeInfraGCS:          "Storage service is temporarily unavailable. Please retry shortly.",
	CodeInfraRedis:        "Queue/storage connection was interrupted. Please retry shortly.",
	CodeRateLimitExceeded: "The service is currently rate-limited. Please retry shortly.",
	CodeMediaDecodeFailed: "The input file could not be decoded.",
	CodeInputNotFound:     "The input file was not found.",
	CodeProcessingFailed:  "An internal processing error occurred.",
}

// Message returns the stable user-facing message for a code.
func Message(c Code) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[CodeProcessingFailed]
}

// Variant names a structured failure kind a caller can attach to a raw
// error, standing in for a typed exception hierarchy the original system
// used. Pipelines and collaborators that want to hint the classifier at a
// specific signal (rather than relying purely on substring matching) set
// this alongside the error text.
type Variant string

const (
	VariantNone          Variant = ""
	VariantKVConnection  Variant = "kv_connection"
	VariantFileMissing   Variant = "file_missing"
)

var (
	gcsConnMarkers = []string{
		"remote end closed", "connection aborted", "connection reset", "httpsconnectionpool", "sslerror",
	}
	gcsStorageMarkers = []string{
		"storage.googleapis.com", "gcs", "blob", "signed_url", "upload", "download",
	}
	redisTokens   = []string{"redis", "connection closed", "closed by server", "timeout"}
	rateTokens    = []string{"resource exhausted", "429", "quota"}
	mediaTokens   = []string{"ffmpeg", "decoding failed", "could not decode"}
	missingTokens = []string{"no such file"}
)

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Classify maps a failure's textual representation and optional variant
// tag to a (code, message) pair. Matching order is fixed: GCS, then rate
// limit, then media, then missing-file, then Redis/KV, then the fallback.
// The first match wins and matching is total (fallback always matches).
func Classify(text string, variant Variant) (Code, string) {
	lower := strings.ToLower(text)

	if containsAny(lower, gcsConnMarkers) && containsAny(lower, gcsStorageMarkers) {
		return CodeInfraGCS, Message(CodeInfraGCS)
	}
	if containsAny(lower, rateTokens) {
		return CodeRateLimitExceeded, Message(CodeRateLimitExceeded)
	}
	if containsAny(lower, mediaTokens) {
		return CodeMediaDecodeFailed, Message(CodeMediaDecodeFailed)
	}
	if variant == VariantFileMissing || containsAny(lower, missingTokens) {
		return CodeInputNotFound, Message(CodeInputNotFound)
	}
	if variant == VariantKVConnection || containsAny(lower, redisTokens) {
		return CodeInfraRedis, Message(CodeInfraRedis)
	}
	return CodeProcessingFailed, Message(CodeProcessingFailed)
}

// ErrorDetail builds the variant-name-plus-message diagnostic string
// stored on the status record's error_detail field.
func ErrorDetail(variant Variant, err error) string {
	name := string(variant)
	if name == "" {
		name = "error"
	}
	if err == nil {
		return name
	}
	return name + ": " + err.Error()
}
