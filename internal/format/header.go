// Package format provides the binary header shared by on-disk capture files.
package format

import (
	"errors"
	"io"
)

// Header layout (4 bytes):
//
//	signature (1 byte, 'c' = 0x63)
//	type (1 byte, identifies format)
//	version (1 byte)
//	flags (1 byte)
//
// Type codes:
//
//	'p' = captured payload (data section follows the header)
//	'm' = capture metadata sidecar (msgpack body follows the header)
const (
	Signature  = 'c'
	HeaderSize = 4

	TypePayload  = 'p'
	TypeMetadata = 'm'

	// Flag bits for payload headers.
	FlagCompressed = 0x01 // Data section is seekable zstd
)

var (
	ErrHeaderTooSmall    = errors.New("header too small")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrVersionMismatch   = errors.New("version mismatch")
)

// Header represents the common 4-byte header.
type Header struct {
	Type    byte
	Version byte
	Flags   byte
}

// Encode writes the header to a 4-byte array.
func (h Header) Encode() [HeaderSize]byte {
	return [HeaderSize]byte{Signature, h.Type, h.Version, h.Flags}
}

// WriteTo writes the encoded header to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	buf := h.Encode()
	n, err := w.Write(buf[:])
	return int64(n), err
}

// Decode reads a header from the given buffer.
// Returns ErrHeaderTooSmall if buf is less than HeaderSize bytes.
// Returns ErrSignatureMismatch if the signature byte is not 'c'.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrHeaderTooSmall
	}
	if buf[0] != Signature {
		return Header{}, ErrSignatureMismatch
	}
	return Header{
		Type:    buf[1],
		Version: buf[2],
		Flags:   buf[3],
	}, nil
}

// DecodeAndValidate reads a header and validates the type and version.
// Returns ErrTypeMismatch if the type doesn't match expectedType.
// Returns ErrVersionMismatch if the version doesn't match expectedVersion.
func DecodeAndValidate(buf []byte, expectedType, expectedVersion byte) (Header, error) {
	h, err := Decode(buf)
	if err != nil {
		return Header{}, err
	}
	if h.Type != expectedType {
		return Header{}, ErrTypeMismatch
	}
	if h.Version != expectedVersion {
		return Header{}, ErrVersionMismatch
	}
	return h, nil
}

// ReadHeader reads and validates a header from the start of r.
func ReadHeader(r io.Reader, expectedType, expectedVersion byte) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, ErrHeaderTooSmall
	}
	return DecodeAndValidate(buf[:], expectedType, expectedVersion)
}
