package stream

import (
	"io"
	"strings"

	"github.com/google/uuid"
)

// MultipartReader frames a payload as a single-part multipart/form-data body:
//
//	--<boundary>\r\n
//	Content-Disposition: form-data\r\n
//	\r\n
//	<payload>\r\n
//	--<boundary>--\r\n
//
// The layout is byte-exact; generic multipart parsers consume it.
type MultipartReader struct {
	*ConcatReader
	boundary string
}

// NewMultipartReader takes ownership of payload. The boundary is a fresh
// random UUID.
func NewMultipartReader(payload io.ReadCloser) *MultipartReader {
	return newMultipartReader(payload, uuid.NewString())
}

func newMultipartReader(payload io.ReadCloser, boundary string) *MultipartReader {
	head := "--" + boundary + "\r\nContent-Disposition: form-data\r\n\r\n"
	tail := "\r\n--" + boundary + "--\r\n"
	return &MultipartReader{
		ConcatReader: NewConcatReader(
			io.NopCloser(strings.NewReader(head)),
			payload,
			io.NopCloser(strings.NewReader(tail)),
		),
		boundary: boundary,
	}
}

// Boundary returns the multipart boundary token.
func (r *MultipartReader) Boundary() string {
	return r.boundary
}

// ContentType returns the Content-Type header value matching the framing.
func (r *MultipartReader) ContentType() string {
	return "multipart/form-data; boundary=" + r.boundary
}
