package stream

import "io"

// MarkableReader buffers what it delivers so the stream can be rewound to
// the start once, e.g. after sniffing the head of a payload. StopMarking
// releases the buffer and turns the reader into a pass-through for good.
type MarkableReader struct {
	src   io.ReadCloser
	limit int

	buf       []byte
	pos       int
	replaying bool
	marking   bool
	overflow  bool
	closed    bool
}

// MarkOption configures a MarkableReader.
type MarkOption func(*MarkableReader)

// WithMarkLimit bounds the rewind buffer to n bytes. Once more than n bytes
// were delivered while marking, the buffer is dropped and Rewind fails with
// ErrMarkLimitExceeded. Zero means unbounded.
func WithMarkLimit(n int) MarkOption {
	return func(r *MarkableReader) { r.limit = n }
}

// NewMarkableReader wraps src with marking active. The reader takes
// ownership of src.
func NewMarkableReader(src io.ReadCloser, opts ...MarkOption) *MarkableReader {
	r := &MarkableReader{src: src, marking: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MarkableReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.replaying {
		n := copy(p, r.buf[r.pos:])
		r.pos += n
		if r.pos == len(r.buf) {
			r.replaying = false
			if !r.marking {
				r.buf = nil
				r.pos = 0
			}
		}
		return n, nil
	}

	n, err := r.src.Read(p)
	if n > 0 && r.marking && !r.overflow {
		if r.limit > 0 && len(r.buf)+n > r.limit {
			r.overflow = true
			r.buf = nil
		} else {
			r.buf = append(r.buf, p[:n]...)
		}
	}
	return n, err
}

// Rewind moves the logical position back to the start. Buffered bytes are
// replayed before reading continues from the live source.
func (r *MarkableReader) Rewind() error {
	if r.closed {
		return ErrClosed
	}
	if !r.marking {
		return ErrMarkingStopped
	}
	if r.overflow {
		return ErrMarkLimitExceeded
	}
	r.pos = 0
	r.replaying = len(r.buf) > 0
	return nil
}

// StopMarking releases the rewind buffer. Bytes still pending from an
// earlier Rewind are delivered before the reader passes through to the
// live source. Marking cannot be re-armed.
func (r *MarkableReader) StopMarking() {
	if !r.marking {
		return
	}
	r.marking = false
	if r.replaying {
		r.buf = r.buf[r.pos:]
		r.pos = 0
		return
	}
	r.buf = nil
	r.pos = 0
}

// Marking reports whether the reader still records what it delivers.
func (r *MarkableReader) Marking() bool {
	return r.marking
}

// Buffered returns the number of bytes held for replay.
func (r *MarkableReader) Buffered() int {
	return len(r.buf)
}

// Close releases the buffer and closes the wrapped source.
func (r *MarkableReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	return r.src.Close()
}
