package capture

import (
	"errors"
	"io"
	"os"
)

// UploadFunc publishes a fully spooled capture. f is positioned at the
// start and holds size bytes.
type UploadFunc func(f *os.File, size int64) error

// SpoolSink is a Sink that spools a capture to a temporary file and
// publishes it with an UploadFunc on Commit. Closing an uncommitted sink
// discards the spool without publishing anything. Remote stores use it so
// the upload happens exactly once, at commit time, on the caller's goroutine.
type SpoolSink struct {
	f      *os.File
	upload UploadFunc
	size   int64

	committed bool
	closed    bool
}

// NewSpoolSink creates the spool file in dir (os.TempDir when empty).
func NewSpoolSink(dir string, upload UploadFunc) (*SpoolSink, error) {
	f, err := os.CreateTemp(dir, ".capture-spool-*")
	if err != nil {
		return nil, err
	}
	return &SpoolSink{f: f, upload: upload}, nil
}

func (s *SpoolSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.committed {
		return 0, ErrAlreadyCommitted
	}
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

// Commit uploads the spooled capture. It can succeed only once.
func (s *SpoolSink) Commit() error {
	if s.closed {
		return os.ErrClosed
	}
	if s.committed {
		return ErrAlreadyCommitted
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := s.upload(s.f, s.size); err != nil {
		return err
	}
	s.committed = true
	return nil
}

// Size returns the number of bytes spooled so far.
func (s *SpoolSink) Size() int64 {
	return s.size
}

// Close removes the spool file.
func (s *SpoolSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	name := s.f.Name()
	return errors.Join(s.f.Close(), os.Remove(name))
}
