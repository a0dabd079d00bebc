// Package memory provides an in-memory capture store. It is used by tests
// and by one-shot CLI runs that do not need captures to outlive the process.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"pipestream/internal/capture"
	"pipestream/internal/logging"
)

// Store is a capture.Store that keeps committed payloads in a map.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	payloads map[string][]byte
	maxBytes int64
	logger   *slog.Logger
}

var _ capture.Store = (*Store)(nil)

// NewStore returns an empty store. A positive maxBytes bounds the size of
// each payload.
func NewStore(maxBytes int64, logger *slog.Logger) *Store {
	return &Store{
		payloads: make(map[string][]byte),
		maxBytes: maxBytes,
		logger:   logging.Component(logger, "capture-store", "type", "memory"),
	}
}

// Create returns a sink that publishes its buffer under locator on Commit.
func (s *Store) Create(_ context.Context, locator string) (capture.Sink, error) {
	if locator == "" {
		return nil, capture.ErrMissingLocator
	}
	return &sink{store: s, locator: locator}, nil
}

// Open returns a seekable reader over a committed payload.
func (s *Store) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	s.mu.RLock()
	b, ok := s.payloads[locator]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrNotFound, locator)
	}
	return &reader{Reader: bytes.NewReader(b)}, nil
}

func (s *Store) Delete(_ context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payloads[locator]; !ok {
		return fmt.Errorf("%w: %s", capture.ErrNotFound, locator)
	}
	delete(s.payloads, locator)
	return nil
}

// Locators returns the committed locators in sorted order.
func (s *Store) Locators() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.payloads))
	for l := range s.payloads {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (s *Store) publish(locator string, b []byte) {
	s.mu.Lock()
	s.payloads[locator] = b
	s.mu.Unlock()
	s.logger.Debug("capture committed", "locator", locator, "size", len(b))
}

type sink struct {
	store   *Store
	locator string
	buf     bytes.Buffer

	committed bool
	closed    bool
}

func (s *sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.committed {
		return 0, capture.ErrAlreadyCommitted
	}
	if s.store.maxBytes > 0 && int64(s.buf.Len()+len(p)) > s.store.maxBytes {
		return 0, fmt.Errorf("%w: payload exceeds %d bytes", ErrTooLarge, s.store.maxBytes)
	}
	return s.buf.Write(p)
}

func (s *sink) Commit() error {
	if s.committed {
		return capture.ErrAlreadyCommitted
	}
	s.committed = true
	s.store.publish(s.locator, bytes.Clone(s.buf.Bytes()))
	return nil
}

func (s *sink) Close() error {
	s.closed = true
	s.buf.Reset()
	return nil
}

type reader struct {
	*bytes.Reader
}

func (reader) Close() error { return nil }
