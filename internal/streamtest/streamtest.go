// Package streamtest provides shared test doubles for byte sources and sinks:
// sources that count Close calls or under-deliver on every read, and sinks
// that record what was written and how often they were committed.
package streamtest

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

var ErrInjected = errors.New("injected failure")

// Source is an in-memory io.ReadCloser that counts Close calls.
// Short, when positive, makes every read deliver up to Short fewer bytes
// than requested (but at least one) until the data runs out.
type Source struct {
	r      *bytes.Reader
	Short  int
	Closes int
	Reads  int
}

// NewSource returns a Source over data.
func NewSource(data []byte) *Source {
	return &Source{r: bytes.NewReader(data)}
}

// NewStringSource returns a Source over s.
func NewStringSource(s string) *Source {
	return NewSource([]byte(s))
}

func (s *Source) Read(p []byte) (int, error) {
	s.Reads++
	if s.Short > 0 && len(p) > 1 {
		n := len(p) - s.Short
		if n < 1 {
			n = 1
		}
		p = p[:n]
	}
	return s.r.Read(p)
}

func (s *Source) Close() error {
	s.Closes++
	return nil
}

// SeekableSource is a Source that also implements io.Seeker.
type SeekableSource struct {
	*Source
}

// NewSeekableSource returns a SeekableSource over data.
func NewSeekableSource(data []byte) *SeekableSource {
	return &SeekableSource{Source: NewSource(data)}
}

func (s *SeekableSource) Seek(offset int64, whence int) (int64, error) {
	return s.r.Seek(offset, whence)
}

// EOFWithDataSource returns its whole payload together with io.EOF on the
// first read, as some readers legitimately do.
type EOFWithDataSource struct {
	data   []byte
	done   bool
	Closes int
}

// NewEOFWithDataSource returns an EOFWithDataSource over data.
func NewEOFWithDataSource(data []byte) *EOFWithDataSource {
	return &EOFWithDataSource{data: data}
}

func (s *EOFWithDataSource) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	if len(s.data) == 0 {
		s.done = true
		return n, io.EOF
	}
	return n, nil
}

func (s *EOFWithDataSource) Close() error {
	s.Closes++
	return nil
}

// FailingSource delivers its data normally and then reports ErrInjected
// where the wrapped Source would report io.EOF.
type FailingSource struct {
	*Source
}

func (s *FailingSource) Read(p []byte) (int, error) {
	n, err := s.Source.Read(p)
	if err == io.EOF {
		return n, ErrInjected
	}
	return n, err
}

// Sink records writes, Commit calls, and Close calls.
type Sink struct {
	bytes.Buffer
	Commits int
	Closes  int
}

func (s *Sink) Close() error {
	s.Closes++
	return nil
}

// CommitSink is a Sink that implements the optional commit capability.
type CommitSink struct {
	Sink
	CommitErr error
}

func (s *CommitSink) Commit() error {
	s.Commits++
	return s.CommitErr
}

// ReadAll reads r to io.EOF using a small buffer so that chunking is
// exercised, failing the test on error.
func ReadAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 13)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			return out.Bytes()
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}
