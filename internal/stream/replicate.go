package stream

import (
	"errors"
	"io"
)

// ReplicatingReader mirrors every byte it delivers into a sink.
//
// The reader refuses to seek until its source is exhausted, since skipping
// bytes would leave the replica incomplete. If the sink implements
// Committer, Commit runs exactly once, when the source first reports
// end-of-data. A reader closed before that point neither commits nor rolls
// back; what happens to a partial replica is up to the sink's Close.
type ReplicatingReader struct {
	src  io.ReadCloser
	sink io.WriteCloser

	pendingEOF bool
	exhausted  bool
	closed     bool
}

// NewReplicatingReader takes ownership of src and sink.
func NewReplicatingReader(src io.ReadCloser, sink io.WriteCloser) *ReplicatingReader {
	return &ReplicatingReader{src: src, sink: sink}
}

func (r *ReplicatingReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.pendingEOF {
		r.pendingEOF = false
		return 0, r.finish()
	}

	n, err := r.src.Read(p)
	if n > 0 {
		if !r.exhausted {
			if werr := r.mirror(p[:n]); werr != nil {
				return 0, werr
			}
		}
		if err == io.EOF {
			r.pendingEOF = true
			err = nil
		}
		return n, err
	}
	if err == io.EOF {
		return 0, r.finish()
	}
	return 0, err
}

func (r *ReplicatingReader) mirror(b []byte) error {
	n, err := r.sink.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

func (r *ReplicatingReader) finish() error {
	if r.exhausted {
		return io.EOF
	}
	r.exhausted = true
	if c, ok := r.sink.(Committer); ok {
		if err := c.Commit(); err != nil {
			return err
		}
	}
	return io.EOF
}

// Exhausted reports whether the source has been fully replicated.
func (r *ReplicatingReader) Exhausted() bool {
	return r.exhausted
}

// Seek repositions the source once it has been fully replicated. Later
// passes are not mirrored again and do not commit again.
func (r *ReplicatingReader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if !r.exhausted {
		return 0, ErrSeekBeforeExhausted
	}
	s, ok := r.src.(io.Seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	r.pendingEOF = false
	return s.Seek(offset, whence)
}

// Close closes the source and the sink.
func (r *ReplicatingReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.src.Close(), r.sink.Close())
}
