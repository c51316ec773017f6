package blobstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/retry"
)

// LocalConfig configures the local-disk backend.
type LocalConfig struct {
	BasePath string
}

// LocalStore implements Store on the local filesystem. Keys map to paths
// under BasePath. Grounded on the teacher's internal/storage/file_blob.go
// (sanitizeKey, atomic temp-file+rename writes, MD5 ETag, filepath.Walk
// listing) with retry wrapping added per spec.md's blob retry policy.
type LocalStore struct {
	basePath string
	logger   *common.Logger
}

// NewLocalStore creates a local-disk blob store, creating BasePath if
// needed.
func NewLocalStore(logger *common.Logger, cfg LocalConfig) (*LocalStore, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("blobstore: local base_path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create base directory %s: %w", cfg.BasePath, err)
	}
	return &LocalStore{basePath: cfg.BasePath, logger: logger}, nil
}

var _ Store = (*LocalStore)(nil)

func (s *LocalStore) sanitizeKey(key string) string {
	clean := filepath.Clean(key)
	clean = strings.TrimPrefix(clean, "/")
	if strings.Contains(clean, "..") {
		clean = strings.ReplaceAll(clean, "..", "__")
	}
	return clean
}

func (s *LocalStore) keyToPath(key string) string {
	return filepath.Join(s.basePath, s.sanitizeKey(key))
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	return retry.DoValue(ctx, retry.BlobPolicy, func(ctx context.Context) ([]byte, error) {
		data, err := os.ReadFile(s.keyToPath(key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, retry.Wrap(fmt.Errorf("blobstore: read %s: %w", key, err))
		}
		return data, nil
	})
}

func (s *LocalStore) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: open %s: %w", key, err)
	}
	return f, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.PutReader(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (s *LocalStore) PutReader(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := retry.DoValue(ctx, retry.BlobPolicy, func(ctx context.Context) (struct{}, error) {
		path := s.keyToPath(key)
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return struct{}{}, fmt.Errorf("blobstore: create directory %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			return struct{}{}, retry.Wrap(fmt.Errorf("blobstore: create temp file: %w", err))
		}
		tmpPath := tmp.Name()
		if _, err := io.Copy(tmp, r); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return struct{}{}, retry.Wrap(fmt.Errorf("blobstore: write temp file: %w", err))
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			return struct{}{}, retry.Wrap(fmt.Errorf("blobstore: close temp file: %w", err))
		}
		if err := os.Rename(tmpPath, path); err != nil {
			os.Remove(tmpPath)
			return struct{}{}, retry.Wrap(fmt.Errorf("blobstore: rename temp file: %w", err))
		}
		return struct{}{}, nil
	})
	return err
}

func (s *LocalStore) UploadText(ctx context.Context, key, content string) (UploadResult, error) {
	payload := withBOM(content)
	if err := s.Put(ctx, key, []byte(payload), "text/plain; charset=utf-8"); err != nil {
		return UploadResult{}, err
	}
	signedURL, err := s.SignedURL(ctx, key, 7*24*time.Hour)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{
		URI:       "file://" + filepath.ToSlash(filepath.Join(s.basePath, s.sanitizeKey(key))),
		SignedURL: signedURL,
		Bucket:    s.basePath,
		Key:       key,
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.keyToPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.keyToPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("blobstore: stat %s: %w", key, err)
}

func (s *LocalStore) Metadata(ctx context.Context, key string) (*Metadata, error) {
	path := s.keyToPath(key)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: stat %s: %w", key, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read for etag %s: %w", key, err)
	}
	hash := md5.Sum(data)
	return &Metadata{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		ETag:         hex.EncodeToString(hash[:]),
	}, nil
}

func (s *LocalStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	var blobs []Metadata
	err := filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		if len(blobs) >= maxKeys {
			return filepath.SkipAll
		}
		blobs = append(blobs, Metadata{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("blobstore: list: %w", err)
	}
	return &ListResult{Blobs: blobs, Truncated: len(blobs) >= maxKeys}, nil
}

// SignedURL for the local backend returns a stable file:// URI rather than
// a time-limited HTTPS link — there is no real signing authority for a
// disk path. This keeps the interface uniform for tests and the worker
// loop, which only needs "some downloadable reference" to log/report.
func (s *LocalStore) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}
	return "file://" + filepath.ToSlash(s.keyToPath(key)), nil
}

// Download resolves a file:// URI (or a bare key) to a local path. Since
// this backend already stores on disk, no copy is performed.
func (s *LocalStore) Download(ctx context.Context, uri string) (string, error) {
	path := strings.TrimPrefix(uri, "file://")
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", ErrNotFound
			}
			return "", fmt.Errorf("blobstore: stat %s: %w", path, err)
		}
		return path, nil
	}
	resolved := s.keyToPath(path)
	if _, err := os.Stat(resolved); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("blobstore: stat %s: %w", resolved, err)
	}
	return resolved, nil
}

func (s *LocalStore) Close() error { return nil }
