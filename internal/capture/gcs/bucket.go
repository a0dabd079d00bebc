// Package gcs provides a capture store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"pipestream/internal/capture"

	"cloud.google.com/go/storage"
)

// Bucket adapts a GCS bucket to remote.Bucket.
type Bucket struct {
	handle *storage.BucketHandle
}

func NewBucket(handle *storage.BucketHandle) *Bucket {
	return &Bucket{handle: handle}
}

func (b *Bucket) Upload(ctx context.Context, key string, f *os.File, size int64) error {
	w := b.handle.Object(key).NewWriter(ctx)
	if size > 0 && size < int64(w.ChunkSize) {
		// Small captures go up in a single request.
		w.ChunkSize = 0
	}
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *Bucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if err != nil {
		return nil, notFound(err, key)
	}
	return r, nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	if err := b.handle.Object(key).Delete(ctx); err != nil {
		return notFound(err, key)
	}
	return nil
}

func notFound(err error, key string) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", capture.ErrNotFound, key)
	}
	return err
}
