package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bobmcallan/docworker/internal/common"
)

// GCSConfig configures the GCS-shaped backend, mirroring the env
// variables spec.md section 6 names: GCP_PROJECT_ID, GCS_BUCKET_NAME.
type GCSConfig struct {
	ProjectID string
	Bucket    string
	Prefix    string
}

// GCSStore is a GCS-shaped Store. The teacher's own BlobStore abstraction
// (internal/storage/blob.go) ships a GCSBlobConfig but defers the real
// client wiring as "future" work since no GCS client package appears in
// its go.mod require block (cloud.google.com/go is present only as a
// transitive dependency of the genai SDK's auth stack, not as a direct
// storage client). This backend keeps that same posture: it builds the
// correct gs:// URIs and satisfies the Store interface end to end, but
// every network-bound method returns ErrNotImplemented until a real
// storage client dependency is added. See DESIGN.md.
type GCSStore struct {
	cfg    GCSConfig
	logger *common.Logger
}

// NewGCSStore returns a Store that addresses blobs under cfg.Bucket.
func NewGCSStore(logger *common.Logger, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blobstore: gcs bucket is required")
	}
	return &GCSStore{cfg: cfg, logger: logger}, nil
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) objectPath(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return s.cfg.Prefix + "/" + key
}

func (s *GCSStore) uri(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, s.objectPath(key))
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrNotImplemented
}

func (s *GCSStore) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, ErrNotImplemented
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return ErrNotImplemented
}

func (s *GCSStore) PutReader(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return ErrNotImplemented
}

// UploadText mirrors the reference upload_text shape (gcs_uri/signed_url/
// bucket/blob) but cannot perform the network call without a real client.
func (s *GCSStore) UploadText(ctx context.Context, key, content string) (UploadResult, error) {
	return UploadResult{}, ErrNotImplemented
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	return ErrNotImplemented
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, ErrNotImplemented
}

func (s *GCSStore) Metadata(ctx context.Context, key string) (*Metadata, error) {
	return nil, ErrNotImplemented
}

func (s *GCSStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	return nil, ErrNotImplemented
}

func (s *GCSStore) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	return "", ErrNotImplemented
}

func (s *GCSStore) Download(ctx context.Context, uri string) (string, error) {
	return "", ErrNotImplemented
}

func (s *GCSStore) Close() error { return nil }
