package stream

import "io"

// Hooks are lifecycle callbacks fired by an EventingReader. Nil fields are
// ignored. Hooks run synchronously on the reading goroutine.
type Hooks struct {
	// BeforeFirstRead fires once, before the first non-empty read request
	// reaches the wrapped source.
	BeforeFirstRead func()

	// Read fires after every call that delivered n > 0 bytes.
	Read func(n int)

	// AfterLastRead fires at most once, on the first call that reports
	// io.EOF, with the total number of bytes delivered.
	AfterLastRead func(total int64)
}

// EventingReader wraps a forward-only source and reports its lifecycle.
//
// The total length is only known once the source is exhausted, unless the
// wrapped source is itself an io.Seeker.
type EventingReader struct {
	src   io.ReadCloser
	hooks []Hooks

	started    bool
	pendingEOF bool
	exhausted  bool
	fired      bool
	closed     bool

	pos   int64
	total int64
}

// NewEventingReader wraps src. The reader takes ownership of src.
func NewEventingReader(src io.ReadCloser) *EventingReader {
	return &EventingReader{src: src}
}

// Observe registers hooks. Hooks registered after an event fired do not
// see that event retroactively.
func (r *EventingReader) Observe(h Hooks) {
	r.hooks = append(r.hooks, h)
}

func (r *EventingReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.exhausted {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !r.started {
		r.started = true
		for _, h := range r.hooks {
			if h.BeforeFirstRead != nil {
				h.BeforeFirstRead()
			}
		}
	}

	var n int
	var err error
	if r.pendingEOF {
		err = io.EOF
	} else {
		n, err = readSome(r.src, p)
	}

	if n > 0 {
		r.pos += int64(n)
		for _, h := range r.hooks {
			if h.Read != nil {
				h.Read(n)
			}
		}
		if err == io.EOF {
			r.pendingEOF = true
			err = nil
		}
		return n, err
	}
	if err == io.EOF {
		r.pendingEOF = false
		r.exhausted = true
		if !r.fired {
			r.fired = true
			r.total = r.pos
			for _, h := range r.hooks {
				if h.AfterLastRead != nil {
					h.AfterLastRead(r.total)
				}
			}
		}
	}
	return 0, err
}

// Exhausted reports whether end-of-data has been observed.
func (r *EventingReader) Exhausted() bool {
	return r.fired
}

// Position returns the number of bytes delivered since the start (or since
// the last Seek).
func (r *EventingReader) Position() int64 {
	return r.pos
}

// Length returns the total length of the stream. It fails with
// ErrLengthUnavailable until end-of-data was observed, unless the wrapped
// source is seekable.
func (r *EventingReader) Length() (int64, error) {
	if r.fired {
		return r.total, nil
	}
	if s, ok := r.src.(io.Seeker); ok {
		return SeekLength(s)
	}
	return 0, ErrLengthUnavailable
}

// Seek repositions a seekable wrapped source. AfterLastRead does not fire
// again on a later pass.
func (r *EventingReader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	s, ok := r.src.(io.Seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	r.pos = pos
	r.pendingEOF = false
	r.exhausted = false
	return pos, nil
}

// Close closes the wrapped source. Subsequent calls return nil.
func (r *EventingReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}
