package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// AggregateNamespace is the namespace of the synthetic root element that
// wraps aggregated message parts.
const AggregateNamespace = "http://schemas.microsoft.com/BizTalk/2003/aggschema"

// NewAggregateReader concatenates independently produced XML documents into
// one document:
//
//	<agg:Root xmlns:agg="http://schemas.microsoft.com/BizTalk/2003/aggschema">
//	  <InputMessagePart_0>...part 0...</InputMessagePart_0>
//	  <InputMessagePart_1>...part 1...</InputMessagePart_1>
//	</agg:Root>
//
// Part indices are zero-based. Each part's leading byte-order mark and XML
// declaration are dropped. Parts must be UTF-8.
func NewAggregateReader(parts ...io.ReadCloser) *ConcatReader {
	srcs := make([]io.ReadCloser, 0, 3*len(parts)+2)
	srcs = append(srcs, literal(`<agg:Root xmlns:agg="`+AggregateNamespace+`">`))
	for i, part := range parts {
		srcs = append(srcs,
			literal(fmt.Sprintf("<InputMessagePart_%d>", i)),
			NewDeclarationStripper(part),
			literal(fmt.Sprintf("</InputMessagePart_%d>", i)),
		)
	}
	srcs = append(srcs, literal("</agg:Root>"))
	return NewConcatReader(srcs...)
}

func literal(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	declPrefix = []byte("<?xml")
)

// maxDeclarationSize bounds how far the stripper looks for the end of a
// declaration.
const maxDeclarationSize = 1024

// DeclarationStripper drops a leading UTF-8 byte-order mark and XML
// declaration from a source, passing everything else through unchanged.
type DeclarationStripper struct {
	src     io.ReadCloser
	br      *bufio.Reader
	checked bool
	closed  bool
}

// NewDeclarationStripper takes ownership of src.
func NewDeclarationStripper(src io.ReadCloser) *DeclarationStripper {
	return &DeclarationStripper{src: src, br: bufio.NewReaderSize(src, maxDeclarationSize)}
}

func (d *DeclarationStripper) Read(p []byte) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if !d.checked {
		d.checked = true
		if err := d.skipHead(); err != nil {
			return 0, err
		}
	}
	return d.br.Read(p)
}

func (d *DeclarationStripper) skipHead() error {
	head, err := d.br.Peek(len(utf8BOM))
	if err != nil && err != io.EOF {
		return err
	}
	if bytes.Equal(head, utf8BOM) {
		_, _ = d.br.Discard(len(utf8BOM))
	}

	head, err = d.br.Peek(len(declPrefix) + 1)
	if err != nil && err != io.EOF {
		return err
	}
	if len(head) <= len(declPrefix) || !bytes.HasPrefix(head, declPrefix) || !isXMLSpace(head[len(declPrefix)]) {
		return nil
	}

	// The declaration ends at the first "?>"; the bufio buffer holds it.
	window, err := d.br.Peek(maxDeclarationSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return err
	}
	end := bytes.Index(window, []byte("?>"))
	if end < 0 {
		return fmt.Errorf("xml declaration longer than %d bytes", maxDeclarationSize)
	}
	_, _ = d.br.Discard(end + 2)
	return nil
}

func isXMLSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// Close closes the wrapped source.
func (d *DeclarationStripper) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.src.Close()
}
