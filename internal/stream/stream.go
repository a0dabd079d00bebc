// Package stream provides forward-only byte-source decorators.
//
// Every decorator wraps an io.ReadCloser (or several) and owns what it wraps:
// closing the decorator closes the wrapped sources and sinks exactly once.
// Callers read and close only the outermost decorator of a chain.
//
// End-of-data is io.EOF and nothing else. A short read is never treated as
// end-of-data. When a wrapped source returns its final bytes together with
// io.EOF, decorators deliver the bytes first and report io.EOF on the next
// call, so end-of-stream side effects (hooks, commits) always happen after
// the caller has received the last chunk.
//
// Decorators are not safe for concurrent use.
package stream

import (
	"errors"
	"io"
)

var (
	ErrClosed              = errors.New("stream closed")
	ErrLengthUnavailable   = errors.New("length unavailable before end of stream")
	ErrNotSeekable         = errors.New("source is not seekable")
	ErrSeekBeforeExhausted = errors.New("seek before end of stream would desynchronize the replica")
	ErrMarkingStopped      = errors.New("marking stopped, cannot rewind")
	ErrMarkLimitExceeded   = errors.New("mark buffer limit exceeded, cannot rewind")
)

// Committer is an optional capability of a sink. A ReplicatingReader calls
// Commit once, when its source first reaches end-of-data.
type Committer interface {
	Commit() error
}

// maxConsecutiveEmptyReads bounds how often a (0, nil) read is retried
// before giving up with io.ErrNoProgress.
const maxConsecutiveEmptyReads = 100

// readSome reads into p, retrying reads that return neither data nor an error.
func readSome(r io.Reader, p []byte) (int, error) {
	for range maxConsecutiveEmptyReads {
		n, err := r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, io.ErrNoProgress
}

// SeekLength reports the total length of s, restoring its position.
func SeekLength(s io.Seeker) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}
