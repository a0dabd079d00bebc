package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Decompressor is an io.ReadCloser yielding the decompressed content of
// the single entry in its source.
type Decompressor struct {
	src    io.ReadCloser
	r      io.Reader
	entry  string
	closer func() error
	closed bool
}

type readerAtSeeker interface {
	io.ReaderAt
	io.Seeker
}

// NewDecompressor wraps src and reads far enough to locate the entry.
// Stream formats read src through a buffer of opts.BufferSize bytes.
// Zip input without random access is spooled to a temporary file first.
// On error src is left open.
func NewDecompressor(src io.ReadCloser, opts Options) (*Decompressor, error) {
	opts = opts.withDefaults()
	d := &Decompressor{src: src}
	switch opts.Format {
	case Gzip:
		gz, err := gzip.NewReader(bufio.NewReaderSize(src, opts.BufferSize))
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		gz.Multistream(false)
		d.r, d.entry, d.closer = gz, gz.Name, gz.Close
	case Zstd:
		zr, err := zstd.NewReader(bufio.NewReaderSize(src, opts.BufferSize), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		d.r = zr
		d.closer = func() error { zr.Close(); return nil }
	case Brotli:
		d.r = brotli.NewReader(bufio.NewReaderSize(src, opts.BufferSize))
	case Zip:
		if err := d.openZip(opts); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownFormat
	}
	return d, nil
}

func (d *Decompressor) openZip(opts Options) error {
	var (
		ra      io.ReaderAt
		size    int64
		cleanup func() error
	)
	if rs, ok := d.src.(readerAtSeeker); ok {
		n, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		ra, size = rs, n
	} else {
		f, n, err := spool(d.src)
		if err != nil {
			return err
		}
		name := f.Name()
		ra, size = f, n
		cleanup = func() error { return errors.Join(f.Close(), os.Remove(name)) }
	}

	fail := func(err error) error {
		if cleanup != nil {
			_ = cleanup()
		}
		return err
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return fail(fmt.Errorf("open zip archive: %w", err))
	}
	if len(zr.File) != 1 {
		return fail(fmt.Errorf("%w: found %d", ErrNotSingleEntry, len(zr.File)))
	}
	entry := zr.File[0]
	rc, err := entry.Open()
	if err != nil {
		return fail(fmt.Errorf("open zip entry %s: %w", entry.Name, err))
	}
	d.r, d.entry = rc, entry.Name
	d.closer = func() error {
		err := rc.Close()
		if cleanup != nil {
			err = errors.Join(err, cleanup())
		}
		return err
	}
	return nil
}

// spool copies r to a temporary file so it can be read at random offsets.
func spool(r io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp("", ".pipestream-zip-*")
	if err != nil {
		return nil, 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, 0, fmt.Errorf("spool zip archive: %w", err)
	}
	return f, n, nil
}

// EntryName returns the name stored in the archive header, if the format
// carries one.
func (d *Decompressor) EntryName() string {
	return d.entry
}

func (d *Decompressor) Read(p []byte) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	return d.r.Read(p)
}

// Close releases the decoder and closes the source.
func (d *Decompressor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if d.closer != nil {
		err = d.closer()
	}
	return errors.Join(err, d.src.Close())
}
