package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/docintake/internal/metrics"
)

// GCSStore keeps objects in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	log    *slog.Logger
}

func NewGCSStore(ctx context.Context, bucket string, logger *slog.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), log: logger.With("bucket", bucket)}, nil
}

// Put writes only if the object does not exist yet.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("gcs_put", time.Since(start)) }()

	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			s.log.Debug("storage.put.exists", "key", key)
			return nil
		}
		return fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			s.log.Debug("storage.put.exists", "key", key)
			return nil
		}
		return fmt.Errorf("finalize gcs object: %w", err)
	}
	s.log.Debug("storage.put.ok", "key", key, "bytes", len(data))
	return nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("gcs_get", time.Since(start)) }()

	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open gcs object: %w", err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
