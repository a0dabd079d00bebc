package codec

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pipestream/internal/streamtest"

	"github.com/klauspost/compress/zip"
)

func payload() []byte {
	return []byte(strings.Repeat("<rec id='42'>some repetitive payload text</rec>\n", 500))
}

func compressAll(t *testing.T, data []byte, opts Options) []byte {
	t.Helper()
	src := streamtest.NewSource(data)
	c, err := NewCompressor(src, opts)
	if err != nil {
		t.Fatalf("new compressor: %v", err)
	}
	out := streamtest.ReadAll(t, c)
	if err := c.Close(); err != nil {
		t.Fatalf("close compressor: %v", err)
	}
	if src.Closes != 1 {
		t.Errorf("expected source closed once, got %d", src.Closes)
	}
	return out
}

// =============================================================================
// Round trips
// =============================================================================

func TestRoundTrip(t *testing.T) {
	data := payload()
	for _, f := range []Format{Zip, Gzip, Zstd, Brotli} {
		t.Run(f.String(), func(t *testing.T) {
			compressed := compressAll(t, data, Options{Format: f, EntryName: "order.xml", BufferSize: 1000})
			if len(compressed) >= len(data) {
				t.Errorf("expected compression, got %d >= %d bytes", len(compressed), len(data))
			}

			src := streamtest.NewSource(compressed)
			d, err := NewDecompressor(src, Options{Format: f})
			if err != nil {
				t.Fatalf("new decompressor: %v", err)
			}
			got := streamtest.ReadAll(t, d)
			if !bytes.Equal(got, data) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
			}
			switch f {
			case Zip, Gzip:
				if d.EntryName() != "order.xml" {
					t.Errorf("expected entry order.xml, got %q", d.EntryName())
				}
			default:
				if d.EntryName() != "" {
					t.Errorf("expected no entry name, got %q", d.EntryName())
				}
			}
			if err := d.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if src.Closes != 1 {
				t.Errorf("expected source closed once, got %d", src.Closes)
			}
		})
	}
}

// requestRecorder remembers the largest read its caller asked for.
type requestRecorder struct {
	*streamtest.Source
	largest int
}

func (r *requestRecorder) Read(p []byte) (int, error) {
	r.largest = max(r.largest, len(p))
	return r.Source.Read(p)
}

func TestRoundTripSmallBuffers(t *testing.T) {
	var data []byte
	for i := range 300 << 10 {
		data = append(data, byte(i*7+i/251))
	}
	for _, f := range []Format{Zip, Gzip, Zstd, Brotli} {
		t.Run(f.String(), func(t *testing.T) {
			compressed := compressAll(t, data, Options{Format: f, BufferSize: 3})
			d, err := NewDecompressor(streamtest.NewSource(compressed), Options{Format: f, BufferSize: 3})
			if err != nil {
				t.Fatalf("new decompressor: %v", err)
			}
			defer d.Close()
			if got := streamtest.ReadAll(t, d); !bytes.Equal(got, data) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
			}
		})
	}
}

func TestDecompressorReadsThroughBuffer(t *testing.T) {
	compressed := compressAll(t, payload(), Options{Format: Gzip})
	src := &requestRecorder{Source: streamtest.NewSource(compressed)}
	d, err := NewDecompressor(src, Options{Format: Gzip, BufferSize: 64})
	if err != nil {
		t.Fatalf("new decompressor: %v", err)
	}
	defer d.Close()
	if got := streamtest.ReadAll(t, d); !bytes.Equal(got, payload()) {
		t.Fatalf("payload mismatch: got %d bytes", len(got))
	}
	if src.largest > 64 {
		t.Errorf("expected source reads of at most 64 bytes, got %d", src.largest)
	}
}

func TestRoundTripEmpty(t *testing.T) {
	for _, f := range []Format{Zip, Gzip, Zstd, Brotli} {
		compressed := compressAll(t, nil, Options{Format: f})
		d, err := NewDecompressor(streamtest.NewSource(compressed), Options{Format: f})
		if err != nil {
			t.Fatalf("%s: new decompressor: %v", f, err)
		}
		if got := streamtest.ReadAll(t, d); len(got) != 0 {
			t.Errorf("%s: expected empty payload, got %d bytes", f, len(got))
		}
		_ = d.Close()
	}
}

func TestCompressorLevels(t *testing.T) {
	data := payload()
	for _, opts := range []Options{
		{Format: Zip, Level: 9},
		{Format: Gzip, Level: 1},
		{Format: Zstd, Level: 19},
		{Format: Brotli, Level: 11},
	} {
		compressed := compressAll(t, data, opts)
		d, err := NewDecompressor(streamtest.NewSource(compressed), opts)
		if err != nil {
			t.Fatalf("%s: new decompressor: %v", opts.Format, err)
		}
		if got := streamtest.ReadAll(t, d); !bytes.Equal(got, data) {
			t.Errorf("%s level %d: round trip mismatch", opts.Format, opts.Level)
		}
		_ = d.Close()
	}
}

func TestCompressorPullsBoundedChunks(t *testing.T) {
	src := streamtest.NewSource(payload())
	c, err := NewCompressor(src, Options{Format: Gzip, BufferSize: 64})
	if err != nil {
		t.Fatalf("new compressor: %v", err)
	}
	defer c.Close()
	buf := make([]byte, 1)
	if _, err := c.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	// One output byte needs only a few source chunks, not the whole payload.
	if src.Reads > 10 {
		t.Errorf("expected a few source reads for the first byte, got %d", src.Reads)
	}
}

func TestCompressorSourceError(t *testing.T) {
	c, err := NewCompressor(&streamtest.FailingSource{Source: streamtest.NewStringSource("abc")}, Options{Format: Zstd})
	if err != nil {
		t.Fatalf("new compressor: %v", err)
	}
	defer c.Close()
	if _, err := io.ReadAll(c); !errors.Is(err, streamtest.ErrInjected) {
		t.Errorf("expected injected error, got %v", err)
	}
}

type stuckReader struct{}

func (stuckReader) Read([]byte) (int, error) { return 0, nil }
func (stuckReader) Close() error             { return nil }

func TestCompressorNoProgress(t *testing.T) {
	c, err := NewCompressor(stuckReader{}, Options{Format: Brotli})
	if err != nil {
		t.Fatalf("new compressor: %v", err)
	}
	defer c.Close()
	if _, err := c.Read(make([]byte, 8)); err != io.ErrNoProgress {
		t.Errorf("expected io.ErrNoProgress, got %v", err)
	}
}

func TestReadAfterClose(t *testing.T) {
	c, _ := NewCompressor(streamtest.NewSource(payload()), Options{Format: Gzip})
	_ = c.Close()
	if _, err := c.Read(make([]byte, 8)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

// =============================================================================
// Zip specifics
// =============================================================================

func TestZipFromFileUsesRandomAccess(t *testing.T) {
	data := payload()
	path := filepath.Join(t.TempDir(), "in.zip")
	if err := os.WriteFile(path, compressAll(t, data, Options{Format: Zip}), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDecompressor(f, Options{Format: Zip})
	if err != nil {
		t.Fatalf("new decompressor: %v", err)
	}
	defer d.Close()
	if got := streamtest.ReadAll(t, d); !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}
	if d.EntryName() != DefaultEntryName {
		t.Errorf("expected default entry name, got %q", d.EntryName())
	}
}

func TestZipRequiresSingleEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"a.xml", "b.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte("<x/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	src := streamtest.NewSource(buf.Bytes())
	if _, err := NewDecompressor(src, Options{Format: Zip}); !errors.Is(err, ErrNotSingleEntry) {
		t.Errorf("expected ErrNotSingleEntry, got %v", err)
	}
	if src.Closes != 0 {
		t.Error("source must stay open when construction fails")
	}
}

func TestGzipSingleStream(t *testing.T) {
	first := compressAll(t, []byte("first"), Options{Format: Gzip})
	second := compressAll(t, []byte("second"), Options{Format: Gzip})

	d, err := NewDecompressor(streamtest.NewSource(append(first, second...)), Options{Format: Gzip})
	if err != nil {
		t.Fatalf("new decompressor: %v", err)
	}
	defer d.Close()
	if got := string(streamtest.ReadAll(t, d)); got != "first" {
		t.Errorf("expected only the first member, got %q", got)
	}
}

func TestCorruptInput(t *testing.T) {
	if _, err := NewDecompressor(streamtest.NewStringSource("not gzip"), Options{Format: Gzip}); err == nil {
		t.Error("expected gzip header error")
	}
	if _, err := NewDecompressor(streamtest.NewStringSource("not zip"), Options{Format: Zip}); err == nil {
		t.Error("expected zip error")
	}
}

// =============================================================================
// Names
// =============================================================================

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"zip", Zip}, {".gz", Gzip}, {"GZIP", Gzip}, {"zstd", Zstd},
		{"zst", Zstd}, {"br", Brotli}, {"brotli", Brotli},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
	for _, bad := range []string{"identity", "", "lz4"} {
		if _, err := ParseFormat(bad); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("ParseFormat(%q): expected ErrUnknownFormat, got %v", bad, err)
		}
	}
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		location, ext, want string
	}{
		{"/data/in/order.xml", ".zip", "order.zip"},
		{"order.xml", "gz", "order.gz"},
		{"https://host/path/report.csv?x=1", ".xml", "report.xml"},
		{"file:///tmp/batch.dat", "", "batch"},
		{"", ".xml", "payload.xml"},
		{"noext", ".xml", "noext.xml"},
	}
	for _, tt := range tests {
		if got := EntryName(tt.location, tt.ext); got != tt.want {
			t.Errorf("EntryName(%q, %q) = %q, want %q", tt.location, tt.ext, got, tt.want)
		}
	}
}
