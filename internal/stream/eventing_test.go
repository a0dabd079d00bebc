package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"pipestream/internal/streamtest"
)

type recorder struct {
	before int
	reads  []int
	after  int
	total  int64
	events []string
}

func (rec *recorder) hooks() Hooks {
	return Hooks{
		BeforeFirstRead: func() {
			rec.before++
			rec.events = append(rec.events, "before")
		},
		Read: func(n int) {
			rec.reads = append(rec.reads, n)
			rec.events = append(rec.events, "read")
		},
		AfterLastRead: func(total int64) {
			rec.after++
			rec.total = total
			rec.events = append(rec.events, "after")
		},
	}
}

func TestEventingReaderShortReads(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 100)
	src := streamtest.NewSource(data)
	src.Short = 7

	r := NewEventingReader(src)
	var rec recorder
	r.Observe(rec.hooks())

	got := streamtest.ReadAll(t, r)
	if !bytes.Equal(got, data) {
		t.Fatalf("data mismatch: want %d bytes, got %d", len(data), len(got))
	}
	if rec.before != 1 {
		t.Errorf("BeforeFirstRead fired %d times, want 1", rec.before)
	}
	if rec.after != 1 {
		t.Errorf("AfterLastRead fired %d times, want 1", rec.after)
	}
	if rec.total != int64(len(data)) {
		t.Errorf("total = %d, want %d", rec.total, len(data))
	}
	length, err := r.Length()
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if length != int64(len(data)) {
		t.Errorf("Length = %d, want %d", length, len(data))
	}

	// Reading past the end does not fire again.
	if n, err := r.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Fatalf("read after end = (%d, %v), want (0, EOF)", n, err)
	}
	if rec.after != 1 {
		t.Errorf("AfterLastRead fired %d times after extra read, want 1", rec.after)
	}
}

func TestEventingReaderAfterLastReadFollowsFinalChunk(t *testing.T) {
	src := streamtest.NewEOFWithDataSource([]byte("payload"))
	r := NewEventingReader(src)
	var rec recorder
	r.Observe(rec.hooks())

	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if n != 7 || err != nil {
		t.Fatalf("first read = (%d, %v), want (7, nil)", n, err)
	}
	if rec.after != 0 {
		t.Fatal("AfterLastRead fired before the caller saw end-of-data")
	}
	if r.Exhausted() {
		t.Fatal("Exhausted before end-of-data was reported")
	}

	n, err = r.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("second read = (%d, %v), want (0, EOF)", n, err)
	}
	want := []string{"before", "read", "after"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", rec.events, want)
		}
	}
}

func TestEventingReaderLengthUnavailable(t *testing.T) {
	r := NewEventingReader(streamtest.NewStringSource("abc"))
	if _, err := r.Length(); !errors.Is(err, ErrLengthUnavailable) {
		t.Fatalf("Length before end = %v, want ErrLengthUnavailable", err)
	}
	_ = streamtest.ReadAll(t, r)
	if n, err := r.Length(); err != nil || n != 3 {
		t.Fatalf("Length after end = (%d, %v), want (3, nil)", n, err)
	}
}

func TestEventingReaderSeekableLength(t *testing.T) {
	src := streamtest.NewSeekableSource([]byte("hello world"))
	r := NewEventingReader(src)

	buf := make([]byte, 5)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	n, err := r.Length()
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if n != 11 {
		t.Errorf("Length = %d, want 11", n)
	}
	rest := streamtest.ReadAll(t, r)
	if string(rest) != " world" {
		t.Errorf("position not restored: rest = %q", rest)
	}
}

func TestEventingReaderSeekDoesNotRefire(t *testing.T) {
	src := streamtest.NewSeekableSource([]byte("abc"))
	r := NewEventingReader(src)
	var rec recorder
	r.Observe(rec.hooks())

	_ = streamtest.ReadAll(t, r)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	got := streamtest.ReadAll(t, r)
	if string(got) != "abc" {
		t.Errorf("second pass = %q, want %q", got, "abc")
	}
	if rec.after != 1 {
		t.Errorf("AfterLastRead fired %d times across two passes, want 1", rec.after)
	}
}

func TestEventingReaderNotSeekable(t *testing.T) {
	r := NewEventingReader(streamtest.NewStringSource("abc"))
	if _, err := r.Seek(0, io.SeekStart); !errors.Is(err, ErrNotSeekable) {
		t.Fatalf("Seek = %v, want ErrNotSeekable", err)
	}
}

func TestEventingReaderEmptySource(t *testing.T) {
	r := NewEventingReader(streamtest.NewSource(nil))
	var rec recorder
	r.Observe(rec.hooks())

	if n, err := r.Read(make([]byte, 4)); n != 0 || err != io.EOF {
		t.Fatalf("read = (%d, %v), want (0, EOF)", n, err)
	}
	if rec.before != 1 || rec.after != 1 || len(rec.reads) != 0 {
		t.Errorf("events = %v", rec.events)
	}
	if rec.total != 0 {
		t.Errorf("total = %d, want 0", rec.total)
	}
}

func TestEventingReaderZeroLengthRead(t *testing.T) {
	r := NewEventingReader(streamtest.NewStringSource("abc"))
	var rec recorder
	r.Observe(rec.hooks())

	if n, err := r.Read(nil); n != 0 || err != nil {
		t.Fatalf("read(nil) = (%d, %v), want (0, nil)", n, err)
	}
	if rec.before != 0 {
		t.Error("empty read request fired BeforeFirstRead")
	}
}

func TestEventingReaderErrorPropagates(t *testing.T) {
	src := &streamtest.FailingSource{Source: streamtest.NewStringSource("ab")}
	r := NewEventingReader(src)
	var rec recorder
	r.Observe(rec.hooks())

	_, err := io.ReadAll(r)
	if !errors.Is(err, streamtest.ErrInjected) {
		t.Fatalf("err = %v, want ErrInjected", err)
	}
	if rec.after != 0 {
		t.Error("AfterLastRead fired on a failed stream")
	}
}

func TestEventingReaderCloseOnce(t *testing.T) {
	src := streamtest.NewStringSource("abc")
	r := NewEventingReader(src)
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if src.Closes != 1 {
		t.Errorf("source closed %d times, want 1", src.Closes)
	}
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("read after close = %v, want ErrClosed", err)
	}
}
