// Package remote provides a capture store over an object storage bucket.
//
// Captures are spooled to a local temp file while the payload streams and
// uploaded in one request when the sink commits. The bucket client is
// supplied by a backend package (s3, gcs, azure).
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"pipestream/internal/capture"
	"pipestream/internal/logging"
)

// Bucket is the minimal object storage surface a remote store needs.
type Bucket interface {
	// Upload stores size bytes read from f under key.
	Upload(ctx context.Context, key string, f *os.File, size int64) error

	// Download returns the object stored under key. Implementations
	// return an error wrapping capture.ErrNotFound for missing objects.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object under key, wrapping capture.ErrNotFound
	// when it does not exist.
	Delete(ctx context.Context, key string) error
}

// Config configures a remote Store.
//
// Logging:
//   - Logger may be nil (logging disabled)
//   - Uploads and deletes are logged at Debug level
type Config struct {
	Bucket Bucket

	// Prefix is prepended to every locator to form the object key.
	Prefix string

	// SpoolDir holds in-flight captures. Defaults to os.TempDir.
	SpoolDir string

	// Type names the backend in log output.
	Type string

	Logger *slog.Logger
}

// Store is a capture.Store that publishes captures to a Bucket.
type Store struct {
	cfg    Config
	logger *slog.Logger
}

var _ capture.Store = (*Store)(nil)

var ErrMissingBucket = errors.New("remote store: missing bucket client")

func NewStore(cfg Config) (*Store, error) {
	if cfg.Bucket == nil {
		return nil, ErrMissingBucket
	}
	return &Store{
		cfg:    cfg,
		logger: logging.Component(cfg.Logger, "capture-store", "type", cfg.Type),
	}, nil
}

// Key returns the object key for locator.
func (s *Store) Key(locator string) string {
	if s.cfg.Prefix == "" {
		return locator
	}
	return path.Join(s.cfg.Prefix, locator)
}

// Create returns a spooling sink. ctx governs the upload performed by Commit.
func (s *Store) Create(ctx context.Context, locator string) (capture.Sink, error) {
	if locator == "" {
		return nil, capture.ErrMissingLocator
	}
	key := s.Key(locator)
	return capture.NewSpoolSink(s.cfg.SpoolDir, func(f *os.File, size int64) error {
		if err := s.cfg.Bucket.Upload(ctx, key, f, size); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		s.logger.Debug("capture uploaded", "key", key, "size", size)
		return nil
	})
}

func (s *Store) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if locator == "" {
		return nil, capture.ErrMissingLocator
	}
	return s.cfg.Bucket.Download(ctx, s.Key(locator))
}

func (s *Store) Delete(ctx context.Context, locator string) error {
	if locator == "" {
		return capture.ErrMissingLocator
	}
	key := s.Key(locator)
	if err := s.cfg.Bucket.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Debug("capture deleted", "key", key)
	return nil
}
