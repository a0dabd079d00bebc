package codec

import (
	"bytes"
	"io"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const maxConsecutiveEmptyReads = 100

// Compressor is an io.ReadCloser yielding the compressed form of its source.
type Compressor struct {
	src   io.ReadCloser
	enc   io.WriteCloser
	out   bytes.Buffer
	chunk []byte

	finished bool
	err      error
	closed   bool
}

// NewCompressor wraps src. The encoder writes into an internal buffer that
// each Read drains.
func NewCompressor(src io.ReadCloser, opts Options) (*Compressor, error) {
	opts = opts.withDefaults()
	c := &Compressor{src: src, chunk: make([]byte, opts.BufferSize)}
	enc, err := newEncoder(&c.out, opts)
	if err != nil {
		return nil, err
	}
	c.enc = enc
	return c, nil
}

func newEncoder(w io.Writer, opts Options) (io.WriteCloser, error) {
	switch opts.Format {
	case Zip:
		zw := zip.NewWriter(w)
		if opts.Level != 0 {
			level := opts.Level
			zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
				return flate.NewWriter(out, level)
			})
		}
		ew, err := zw.CreateHeader(&zip.FileHeader{
			Name:     opts.EntryName,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return nil, err
		}
		return &zipEntry{Writer: ew, zw: zw}, nil
	case Gzip:
		level := gzip.DefaultCompression
		if opts.Level != 0 {
			level = opts.Level
		}
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, err
		}
		gw.Name = opts.EntryName
		gw.ModTime = time.Now()
		return gw, nil
	case Zstd:
		zopts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if opts.Level != 0 {
			zopts = append(zopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)))
		}
		return zstd.NewWriter(w, zopts...)
	case Brotli:
		level := brotli.DefaultCompression
		if opts.Level != 0 {
			level = opts.Level
		}
		return brotli.NewWriterLevel(w, level), nil
	default:
		return nil, ErrUnknownFormat
	}
}

// zipEntry closes the archive together with its only entry.
type zipEntry struct {
	io.Writer
	zw *zip.Writer
}

func (z *zipEntry) Close() error {
	return z.zw.Close()
}

func (c *Compressor) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	for c.out.Len() == 0 {
		if c.finished {
			return 0, io.EOF
		}
		if c.err != nil {
			return 0, c.err
		}
		c.pull()
	}
	return c.out.Read(p)
}

// pull feeds one source chunk to the encoder, finishing the stream at EOF.
func (c *Compressor) pull() {
	for range maxConsecutiveEmptyReads {
		n, err := c.src.Read(c.chunk)
		if n > 0 {
			if _, werr := c.enc.Write(c.chunk[:n]); werr != nil {
				c.err = werr
				return
			}
		}
		switch {
		case err == io.EOF:
			if cerr := c.enc.Close(); cerr != nil {
				c.err = cerr
				return
			}
			c.finished = true
			return
		case err != nil:
			c.err = err
			return
		case n > 0:
			return
		}
	}
	c.err = io.ErrNoProgress
}

// Close closes the source. An unfinished encoder is released without
// flushing its output.
func (c *Compressor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.finished {
		_ = c.enc.Close()
	}
	c.out.Reset()
	return c.src.Close()
}
