package stream

import (
	"errors"
	"io"
)

// ConcatReader exposes an ordered list of sources as one logical stream.
// Each source is closed as soon as it is exhausted; Close releases the rest,
// including sources that were never read.
type ConcatReader struct {
	srcs   []io.ReadCloser
	done   []bool
	cur    int
	closed bool
}

// NewConcatReader takes ownership of srcs.
func NewConcatReader(srcs ...io.ReadCloser) *ConcatReader {
	return &ConcatReader{
		srcs: srcs,
		done: make([]bool, len(srcs)),
	}
}

func (r *ConcatReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for r.cur < len(r.srcs) {
		n, err := readSome(r.srcs[r.cur], p)
		if err == io.EOF {
			if cerr := r.release(r.cur); cerr != nil {
				return n, cerr
			}
			r.cur++
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, err
	}
	return 0, io.EOF
}

func (r *ConcatReader) release(i int) error {
	if r.done[i] {
		return nil
	}
	r.done[i] = true
	return r.srcs[i].Close()
}

// Close closes every source that has not been closed yet, exactly once.
func (r *ConcatReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for i := range r.srcs {
		if err := r.release(i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
