package file

import (
	"errors"
	"os"

	"pipestream/internal/capture"
	"pipestream/internal/format"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
)

// sink spools one capture into a temp file in the store directory.
// Compressed sinks buffer writes into frames of FrameSize bytes so frame
// boundaries do not depend on how the caller chunks its writes.
type sink struct {
	store   *Store
	locator string
	tmp     *os.File

	sw     seekable.Writer
	frame  []byte
	frames int

	size      int64
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
	if s.sw == nil {
		n, err := s.tmp.Write(p)
		s.size += int64(n)
		return n, err
	}
	written := 0
	for len(p) > 0 {
		room := cap(s.frame) - len(s.frame)
		take := min(room, len(p))
		s.frame = append(s.frame, p[:take]...)
		p = p[take:]
		written += take
		s.size += int64(take)
		if len(s.frame) == cap(s.frame) {
			if err := s.flushFrame(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (s *sink) flushFrame() error {
	if len(s.frame) == 0 {
		return nil
	}
	if _, err := s.sw.Write(s.frame); err != nil {
		return err
	}
	s.frames++
	s.frame = s.frame[:0]
	return nil
}

// Commit finalizes the payload, renames it into place and writes the
// metadata sidecar.
func (s *sink) Commit() error {
	if s.closed {
		return os.ErrClosed
	}
	if s.committed {
		return capture.ErrAlreadyCommitted
	}
	if s.sw != nil {
		if err := s.flushFrame(); err != nil {
			return err
		}
		if s.frames == 0 {
			// Empty payloads are stored raw; clear FlagCompressed.
			if _, err := s.tmp.WriteAt([]byte{0}, format.HeaderSize-1); err != nil {
				return err
			}
			s.sw = nil
		} else if err := s.sw.Close(); err != nil {
			return err
		}
	}
	if err := s.tmp.Chmod(s.store.cfg.FileMode); err != nil {
		return err
	}
	if err := s.tmp.Close(); err != nil {
		return err
	}
	s.closed = true
	tmpPath := s.tmp.Name()
	if err := os.Rename(tmpPath, s.store.payloadPath(s.locator)); err != nil { //nolint:gosec // G703: both paths are internal
		_ = os.Remove(tmpPath)
		return err
	}
	s.committed = true

	md := Metadata{
		Locator:    s.locator,
		Size:       s.size,
		Frames:     s.frames,
		Compressed: s.sw != nil,
		Created:    s.store.cfg.Now().UTC(),
	}
	if err := s.store.writeMetadata(md); err != nil {
		return err
	}
	s.store.logger.Debug("capture committed", "locator", s.locator, "size", s.size, "frames", s.frames)
	return nil
}

// Close discards an uncommitted capture.
func (s *sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	name := s.tmp.Name()
	return errors.Join(s.tmp.Close(), os.Remove(name))
}
