package stream

import (
	"errors"
	"io"
	"testing"

	"pipestream/internal/streamtest"
)

func TestConcatReaderConcatenates(t *testing.T) {
	a := streamtest.NewStringSource("alpha-")
	b := streamtest.NewStringSource("bravo-")
	c := streamtest.NewStringSource("charlie")
	b.Short = 5

	r := NewConcatReader(a, b, c)
	got := streamtest.ReadAll(t, r)
	if string(got) != "alpha-bravo-charlie" {
		t.Fatalf("got %q", got)
	}
	for name, s := range map[string]*streamtest.Source{"a": a, "b": b, "c": c} {
		if s.Closes != 1 {
			t.Errorf("%s closed %d times after exhaustion, want 1", name, s.Closes)
		}
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for name, s := range map[string]*streamtest.Source{"a": a, "b": b, "c": c} {
		if s.Closes != 1 {
			t.Errorf("%s closed %d times after Close, want 1", name, s.Closes)
		}
	}
}

func TestConcatReaderEarlyClose(t *testing.T) {
	a := streamtest.NewStringSource("alpha")
	b := streamtest.NewStringSource("bravo")
	c := streamtest.NewStringSource("charlie")

	r := NewConcatReader(a, b, c)
	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	for name, s := range map[string]*streamtest.Source{"a": a, "b": b, "c": c} {
		if s.Closes != 1 {
			t.Errorf("%s closed %d times, want 1", name, s.Closes)
		}
	}
	if _, err := r.Read(buf); !errors.Is(err, ErrClosed) {
		t.Errorf("read after close = %v, want ErrClosed", err)
	}
}

func TestConcatReaderNeverRead(t *testing.T) {
	srcs := []*streamtest.Source{
		streamtest.NewStringSource("x"),
		streamtest.NewStringSource("y"),
	}
	r := NewConcatReader(srcs[0], srcs[1])
	_ = r.Close()
	for i, s := range srcs {
		if s.Closes != 1 {
			t.Errorf("source %d closed %d times, want 1", i, s.Closes)
		}
	}
}

func TestConcatReaderEmptySources(t *testing.T) {
	r := NewConcatReader(
		streamtest.NewSource(nil),
		streamtest.NewStringSource("mid"),
		streamtest.NewSource(nil),
	)
	if got := streamtest.ReadAll(t, r); string(got) != "mid" {
		t.Errorf("got %q, want %q", got, "mid")
	}

	empty := NewConcatReader()
	if n, err := empty.Read(make([]byte, 4)); n != 0 || err != io.EOF {
		t.Errorf("empty concat read = (%d, %v), want (0, EOF)", n, err)
	}
}

func TestConcatReaderFinalChunkWithEOF(t *testing.T) {
	a := streamtest.NewEOFWithDataSource([]byte("one"))
	b := streamtest.NewEOFWithDataSource([]byte("two"))
	r := NewConcatReader(a, b)
	if got := streamtest.ReadAll(t, r); string(got) != "onetwo" {
		t.Errorf("got %q, want %q", got, "onetwo")
	}
	if a.Closes != 1 || b.Closes != 1 {
		t.Errorf("closes = (%d, %d), want (1, 1)", a.Closes, b.Closes)
	}
}

type closeErrSource struct {
	*streamtest.Source
	err error
}

func (s *closeErrSource) Close() error {
	_ = s.Source.Close()
	return s.err
}

func TestConcatReaderCloseErrorsJoined(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	a := &closeErrSource{Source: streamtest.NewStringSource("a"), err: errA}
	b := streamtest.NewStringSource("b")
	c := &closeErrSource{Source: streamtest.NewStringSource("c"), err: errC}

	r := NewConcatReader(a, b, c)
	err := r.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Fatalf("close error = %v, want both failures", err)
	}
	if b.Closes != 1 {
		t.Errorf("b closed %d times, want 1 despite neighbour failures", b.Closes)
	}
}
