// Package file provides a capture store that keeps payloads on the local
// filesystem.
//
// Each capture is stored as two files in the store directory:
//
//	<locator>.capture   format header ('p') followed by the payload, either raw
//	                    or as seekable zstd frames (FlagCompressed)
//	<locator>.meta      format header ('m') followed by msgpack Metadata
//
// A sink spools into a hidden temp file and renames it into place on Commit,
// so a capture is either fully present or absent.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pipestream/internal/capture"
	"pipestream/internal/format"
	"pipestream/internal/logging"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	payloadVersion  = 1
	metadataVersion = 1

	payloadExt  = ".capture"
	metadataExt = ".meta"
)

var ErrInvalidLocator = errors.New("invalid capture locator")

// zstdDec is a package-level decoder, concurrent-safe, always available for reads.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// Compression selects how payload bytes are laid out on disk.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// Config configures a file Store.
//
// Logging:
//   - Logger may be nil (logging disabled)
//   - Commits and deletes are logged at Debug level
type Config struct {
	Dir         string
	FileMode    os.FileMode
	Compression Compression

	// FrameSize is the uncompressed size of each seekable zstd frame.
	FrameSize int

	Logger *slog.Logger

	// Now is used for Metadata.Created. Defaults to time.Now.
	Now func() time.Time
}

// Metadata describes a committed capture.
type Metadata struct {
	Locator    string    `msgpack:"locator" json:"locator"`
	Size       int64     `msgpack:"size" json:"size"`
	Frames     int       `msgpack:"frames" json:"frames"`
	Compressed bool      `msgpack:"compressed" json:"compressed"`
	Created    time.Time `msgpack:"created" json:"created"`
}

// Store is a capture.Store backed by a directory.
type Store struct {
	cfg    Config
	enc    *zstd.Encoder
	logger *slog.Logger
}

var _ capture.Store = (*Store)(nil)

// NewStore creates the store directory if needed.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, ErrMissingDirParam
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = DefaultFileMode
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create capture directory %s: %w", cfg.Dir, err)
	}
	s := &Store{
		cfg:    cfg,
		logger: logging.Component(cfg.Logger, "capture-store", "type", "file", "dir", cfg.Dir),
	}
	if cfg.Compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		s.enc = enc
	}
	return s, nil
}

// Create returns a sink for a new capture. Nothing is visible under
// locator until the sink is committed.
func (s *Store) Create(_ context.Context, locator string) (capture.Sink, error) {
	if err := validateLocator(locator); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.cfg.Dir, ".capture-*")
	if err != nil {
		return nil, err
	}
	hdr := format.Header{Type: format.TypePayload, Version: payloadVersion}
	if s.enc != nil {
		hdr.Flags |= format.FlagCompressed
	}
	if _, err := hdr.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	sk := &sink{store: s, locator: locator, tmp: tmp}
	if s.enc != nil {
		sw, err := seekable.NewWriter(tmp, s.enc)
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return nil, err
		}
		sk.sw = sw
		sk.frame = make([]byte, 0, s.cfg.FrameSize)
	}
	return sk, nil
}

// Open returns the payload stored under locator. The returned reader also
// implements io.Seeker over the uncompressed payload.
func (s *Store) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	if err := validateLocator(locator); err != nil {
		return nil, err
	}
	f, err := os.Open(s.payloadPath(locator))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", capture.ErrNotFound, locator)
	}
	if err != nil {
		return nil, err
	}
	hdr, err := format.ReadHeader(f, format.TypePayload, payloadVersion)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read capture %s: %w", locator, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	// The section hides the header so offset 0 is the first payload byte.
	section := io.NewSectionReader(f, int64(format.HeaderSize), info.Size()-int64(format.HeaderSize))
	if hdr.Flags&format.FlagCompressed == 0 {
		return &payloadReader{ReadSeeker: section, f: f}, nil
	}
	r, err := seekable.NewReader(section, zstdDec)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read capture %s: %w", locator, err)
	}
	return &payloadReader{ReadSeeker: r, dec: r, f: f}, nil
}

// Delete removes the payload and its metadata.
func (s *Store) Delete(_ context.Context, locator string) error {
	if err := validateLocator(locator); err != nil {
		return err
	}
	err := os.Remove(s.payloadPath(locator))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", capture.ErrNotFound, locator)
	}
	if err != nil {
		return err
	}
	if err := os.Remove(s.metadataPath(locator)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.logger.Debug("capture deleted", "locator", locator)
	return nil
}

// Stat returns the metadata of a committed capture.
func (s *Store) Stat(_ context.Context, locator string) (Metadata, error) {
	if err := validateLocator(locator); err != nil {
		return Metadata{}, err
	}
	return s.readMetadata(locator)
}

// List returns the metadata of every committed capture, oldest first.
func (s *Store) List(_ context.Context) ([]Metadata, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var out []Metadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metadataExt) || strings.HasPrefix(name, ".") {
			continue
		}
		md, err := s.readMetadata(strings.TrimSuffix(name, metadataExt))
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].Locator < out[j].Locator
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// Close releases the encoder.
func (s *Store) Close() error {
	if s.enc != nil {
		return s.enc.Close()
	}
	return nil
}

func (s *Store) payloadPath(locator string) string {
	return filepath.Join(s.cfg.Dir, locator+payloadExt)
}

func (s *Store) metadataPath(locator string) string {
	return filepath.Join(s.cfg.Dir, locator+metadataExt)
}

func (s *Store) readMetadata(locator string) (Metadata, error) {
	f, err := os.Open(s.metadataPath(locator))
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, fmt.Errorf("%w: %s", capture.ErrNotFound, locator)
	}
	if err != nil {
		return Metadata{}, err
	}
	defer func() { _ = f.Close() }()

	if _, err := format.ReadHeader(f, format.TypeMetadata, metadataVersion); err != nil {
		return Metadata{}, fmt.Errorf("read metadata %s: %w", locator, err)
	}
	var md Metadata
	if err := msgpack.NewDecoder(f).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata %s: %w", locator, err)
	}
	return md, nil
}

// writeMetadata writes the sidecar via temp-file-then-rename.
func (s *Store) writeMetadata(md Metadata) error {
	body, err := msgpack.Marshal(&md)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.cfg.Dir, ".meta-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	hdr := format.Header{Type: format.TypeMetadata, Version: metadataVersion}
	if _, err := hdr.WriteTo(tmp); err != nil {
		cleanup()
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(s.cfg.FileMode); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.metadataPath(md.Locator))
}

// validateLocator rejects locators that could escape the store directory
// or collide with temp files.
func validateLocator(locator string) error {
	switch {
	case locator == "":
		return capture.ErrMissingLocator
	case strings.HasPrefix(locator, "."),
		strings.ContainsAny(locator, `/\`),
		filepath.Base(locator) != locator:
		return fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return nil
}

// payloadReader closes the decoder (if any) together with the file.
type payloadReader struct {
	io.ReadSeeker
	dec seekable.Reader
	f   *os.File
}

func (r *payloadReader) Close() error {
	var err error
	if r.dec != nil {
		err = r.dec.Close()
	}
	return errors.Join(err, r.f.Close())
}
