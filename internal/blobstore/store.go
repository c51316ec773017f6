// Package blobstore adapts the opaque blob-storage collaborator spec.md
// treats as external (upload/download of text and binary blobs, signed
// URL generation) behind a small provider-agnostic interface, following
// the teacher's internal/storage blob-store shape.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a key has no blob.
	ErrNotFound = errors.New("blobstore: blob not found")
	// ErrNotImplemented marks a backend stub not wired to a live provider.
	ErrNotImplemented = errors.New("blobstore: backend not implemented")
)

// Metadata describes a stored blob.
type Metadata struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// ListOptions configures a List call.
type ListOptions struct {
	Prefix  string
	MaxKeys int
}

// ListResult is the result of a List call.
type ListResult struct {
	Blobs     []Metadata
	Truncated bool
}

// UploadResult is returned by UploadText: the canonical URI,
// a downloadable signed URL, and the bucket/key pair, mirroring the
// reference implementation's upload_text/upload_file return shape.
type UploadResult struct {
	URI       string
	SignedURL string
	Bucket    string
	Key       string
}

// Store is the provider-agnostic blob storage interface. jobs/<job_id>/
// output blobs (spec.md section 4.9/4.10) and input downloads
// (input_gcs_uri / input_path resolution, spec.md section 4.7/4.8) both
// go through this interface.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutReader(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// UploadText prefixes content with a UTF-8 BOM if not already present
	// (mobile-viewer Devanagari-rendering compatibility, spec.md section
	// 6) and returns the canonical URI plus a signed download URL.
	UploadText(ctx context.Context, key, content string) (UploadResult, error)

	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Metadata(ctx context.Context, key string) (*Metadata, error)
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// SignedURL returns a time-limited downloadable URL for key.
	SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// Download resolves an input_gcs_uri (or an opaque URI in the local
	// backend's own scheme) to a local filesystem path, for pipelines
	// that need to hand the input to a rasterizer/splitter.
	Download(ctx context.Context, uri string) (string, error)

	Close() error
}

const bom = "﻿"

func withBOM(content string) string {
	if len(content) >= len(bom) && content[:len(bom)] == bom {
		return content
	}
	return bom + content
}
