package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"pipestream/internal/streamtest"
)

func TestReplicatingReaderMirrorsAndCommitsOnce(t *testing.T) {
	data := bytes.Repeat([]byte("replica "), 64)
	src := streamtest.NewSeekableSource(data)
	sink := &streamtest.CommitSink{}

	r := NewReplicatingReader(src, sink)
	got := streamtest.ReadAll(t, r)
	if !bytes.Equal(got, data) {
		t.Fatal("delivered bytes differ from source")
	}
	if !bytes.Equal(sink.Bytes(), data) {
		t.Fatal("replica differs from source")
	}
	if sink.Commits != 1 {
		t.Fatalf("commits = %d, want 1", sink.Commits)
	}

	// A second full pass after rewinding neither re-mirrors nor re-commits.
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek after exhaustion: %v", err)
	}
	again := streamtest.ReadAll(t, r)
	if !bytes.Equal(again, data) {
		t.Fatal("second pass differs from source")
	}
	if sink.Commits != 1 {
		t.Errorf("commits after second pass = %d, want 1", sink.Commits)
	}
	if sink.Len() != len(data) {
		t.Errorf("replica grew on second pass: %d bytes, want %d", sink.Len(), len(data))
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if src.Closes != 1 || sink.Closes != 1 {
		t.Errorf("closes = (src %d, sink %d), want (1, 1)", src.Closes, sink.Closes)
	}
}

func TestReplicatingReaderSeekBeforeExhausted(t *testing.T) {
	r := NewReplicatingReader(streamtest.NewSeekableSource([]byte("abcdef")), &streamtest.Sink{})
	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := r.Seek(0, io.SeekStart); !errors.Is(err, ErrSeekBeforeExhausted) {
		t.Fatalf("seek = %v, want ErrSeekBeforeExhausted", err)
	}
}

func TestReplicatingReaderSeekUnseekableSource(t *testing.T) {
	r := NewReplicatingReader(streamtest.NewStringSource("abc"), &streamtest.Sink{})
	_ = streamtest.ReadAll(t, r)
	if _, err := r.Seek(0, io.SeekStart); !errors.Is(err, ErrNotSeekable) {
		t.Fatalf("seek = %v, want ErrNotSeekable", err)
	}
}

func TestReplicatingReaderAbandonedDoesNotCommit(t *testing.T) {
	src := streamtest.NewStringSource("partial payload")
	sink := &streamtest.CommitSink{}
	r := NewReplicatingReader(src, sink)

	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.Commits != 0 {
		t.Errorf("commits = %d, want 0 for abandoned stream", sink.Commits)
	}
	if sink.Closes != 1 || src.Closes != 1 {
		t.Errorf("closes = (src %d, sink %d), want (1, 1)", src.Closes, sink.Closes)
	}
}

func TestReplicatingReaderPlainSink(t *testing.T) {
	sink := &streamtest.Sink{}
	r := NewReplicatingReader(streamtest.NewStringSource("abc"), sink)
	if got := streamtest.ReadAll(t, r); string(got) != "abc" {
		t.Fatalf("got %q", got)
	}
	if sink.String() != "abc" {
		t.Errorf("replica = %q", sink.String())
	}
}

func TestReplicatingReaderCommitAfterFinalChunk(t *testing.T) {
	sink := &streamtest.CommitSink{}
	r := NewReplicatingReader(streamtest.NewEOFWithDataSource([]byte("xyz")), sink)

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	if n != 3 || err != nil {
		t.Fatalf("first read = (%d, %v), want (3, nil)", n, err)
	}
	if sink.Commits != 0 {
		t.Fatal("committed before the caller saw end-of-data")
	}
	if _, err := r.Read(buf); err != io.EOF {
		t.Fatalf("second read err = %v, want EOF", err)
	}
	if sink.Commits != 1 {
		t.Errorf("commits = %d, want 1", sink.Commits)
	}
}

func TestReplicatingReaderCommitError(t *testing.T) {
	sink := &streamtest.CommitSink{CommitErr: streamtest.ErrInjected}
	r := NewReplicatingReader(streamtest.NewStringSource("abc"), sink)
	_, err := io.ReadAll(r)
	if !errors.Is(err, streamtest.ErrInjected) {
		t.Fatalf("err = %v, want ErrInjected", err)
	}
	// The failed commit is not retried.
	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read after failed commit = %v, want EOF", err)
	}
	if sink.Commits != 1 {
		t.Errorf("commits = %d, want 1", sink.Commits)
	}
}

type shortWriteSink struct{ streamtest.Sink }

func (s *shortWriteSink) Write(p []byte) (int, error) {
	return len(p) / 2, nil
}

func TestReplicatingReaderShortWrite(t *testing.T) {
	r := NewReplicatingReader(streamtest.NewStringSource("abcdef"), &shortWriteSink{})
	if _, err := r.Read(make([]byte, 6)); !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("err = %v, want io.ErrShortWrite", err)
	}
}
