// Package codec compresses and decompresses payload streams.
//
// Compressor is pull-based: each Read moves at most BufferSize bytes from
// the source through the encoder, so memory use is bounded regardless of
// payload size. Zip and gzip output carry a single named entry; zstd and
// brotli are unnamed. Decompressor positions itself at the only entry of
// its input before the first Read.
package codec

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrUnknownFormat  = errors.New("unknown compression format")
	ErrNotSingleEntry = errors.New("zip archive must contain exactly one entry")
	ErrClosed         = errors.New("codec stream closed")
)

// Format selects a compression format.
type Format int

const (
	Zip Format = iota
	Gzip
	Zstd
	Brotli
)

const (
	DefaultBufferSize = 32 << 10 // 32 KiB
	DefaultEntryName  = "payload"
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Brotli:
		return "brotli"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Ext returns the conventional file extension, including the dot.
func (f Format) Ext() string {
	switch f {
	case Zip:
		return ".zip"
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case Brotli:
		return ".br"
	default:
		return ""
	}
}

// ParseFormat accepts format names, file extensions and Content-Encoding
// tokens ("br", "gz", "zst"). Identity is not a format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "zip":
		return Zip, nil
	case "gzip", "gz", "x-gzip":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	case "brotli", "br":
		return Brotli, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Options configures a Compressor or Decompressor.
type Options struct {
	Format Format

	// EntryName names the single entry in zip and gzip output.
	// Defaults to DefaultEntryName.
	EntryName string

	// BufferSize bounds how many source bytes one compressor Read pulls,
	// and sizes the decompressor's read buffer (bufio enforces a 16 byte
	// minimum). Defaults to DefaultBufferSize.
	BufferSize int

	// Level is the encoder level; 0 selects each format's default.
	Level int
}

func (o Options) withDefaults() Options {
	if o.EntryName == "" {
		o.EntryName = DefaultEntryName
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

// EntryName derives an entry name from a location (URL or file path):
// its base name with the extension replaced by ext.
func EntryName(location, ext string) string {
	p := location
	if u, err := url.Parse(location); err == nil && len(u.Scheme) > 1 {
		p = u.Path
	}
	base := path.Base(filepath.ToSlash(p))
	if base == "." || base == "/" || base == "" {
		base = DefaultEntryName
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + ext
}
