package xmlns

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"pipestream/internal/logging"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

var (
	ErrUnboundPrefix       = errors.New("unbound namespace prefix")
	ErrDuplicateAttribute  = errors.New("duplicate attribute after namespace translation")
	ErrUnbalanced          = errors.New("unbalanced element tags")
	ErrUnsupportedEncoding = errors.New("unsupported output encoding")
	ErrClosed              = errors.New("rewriter closed")
)

const defaultEncoding = "UTF-8"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type options struct {
	attributes bool
	absorb     bool
	force      bool
	encoding   string
	logger     *slog.Logger
}

// Option configures a Rewriter.
type Option func(*options)

// WithAttributes translates attribute namespaces as well as element ones.
func WithAttributes() Option {
	return func(o *options) { o.attributes = true }
}

// WithAbsorbDeclaration drops the XML declaration found on input.
func WithAbsorbDeclaration() Option {
	return func(o *options) { o.absorb = true }
}

// WithForceDeclaration emits an XML declaration even when the input has none
// (or it was absorbed).
func WithForceDeclaration() Option {
	return func(o *options) { o.force = true }
}

// WithEncoding sets the output encoding by IANA charset name or alias
// ("utf-8", "us-ascii", "latin1", "windows-1252", ...). The declaration
// carries the preferred MIME name of that charset. Characters the encoding
// cannot represent are written as numeric character references.
func WithEncoding(name string) Option {
	return func(o *options) { o.encoding = name }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// frame is an open element: its input name and the name it was written as.
type frame struct {
	in  xml.Name
	out string
}

// Rewriter is an io.ReadCloser that re-serializes the XML read from its
// source with namespaces translated by a TranslationSet.
type Rewriter struct {
	src    io.ReadCloser
	dec    *xml.Decoder
	set    *TranslationSet
	opts   options
	enc    *encoding.Encoder
	encTag string
	logger *slog.Logger

	in     nsStack
	out    nsStack
	frames []frame
	next   int

	tok     bytes.Buffer // current token, UTF-8
	buf     bytes.Buffer // encoded output not yet read
	started bool
	open    bool // start tag written without its closing '>'
	err     error
	closed  bool

	elements   int
	translated int
}

// NewRewriter wraps src. A nil set copies namespaces through unchanged.
func NewRewriter(src io.ReadCloser, set *TranslationSet, opts ...Option) (*Rewriter, error) {
	o := options{encoding: defaultEncoding}
	for _, fn := range opts {
		fn(&o)
	}
	e, err := ianaindex.MIME.Encoding(o.encoding)
	if err != nil || e == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, o.encoding)
	}
	name, err := ianaindex.MIME.Name(e)
	// Character references cannot be expressed in a multi-byte unit stream.
	if err != nil || strings.HasPrefix(name, "UTF-16") || strings.HasPrefix(name, "UTF-32") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, o.encoding)
	}

	br := bufio.NewReader(src)
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	dec := xml.NewDecoder(br)
	dec.CharsetReader = charset.NewReaderLabel

	r := &Rewriter{
		src:    src,
		dec:    dec,
		set:    set,
		opts:   o,
		encTag: name,
		logger: logging.Component(o.logger, "xmlns"),
	}
	if name != defaultEncoding {
		r.enc = encoding.HTMLEscapeUnsupported(e.NewEncoder())
	}
	return r, nil
}

func (r *Rewriter) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	for r.buf.Len() == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.err = r.step()
		if err := r.flush(); err != nil && r.err == nil {
			r.err = err
		}
	}
	return r.buf.Read(p)
}

// Close closes the source.
func (r *Rewriter) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}

// flush moves the current token into the output buffer, encoding it.
func (r *Rewriter) flush() error {
	if r.tok.Len() == 0 {
		return nil
	}
	defer r.tok.Reset()
	if r.enc == nil {
		_, err := r.buf.Write(r.tok.Bytes())
		return err
	}
	b, err := r.enc.Bytes(r.tok.Bytes())
	if err != nil {
		return fmt.Errorf("encode output as %s: %w", r.encTag, err)
	}
	_, err = r.buf.Write(b)
	return err
}

// step rewrites one input token into r.tok.
func (r *Rewriter) step() error {
	t, err := r.dec.RawToken()
	if err == io.EOF {
		if len(r.frames) > 0 {
			return fmt.Errorf("%w: <%s> not closed: %w", ErrUnbalanced, r.frames[len(r.frames)-1].out, io.ErrUnexpectedEOF)
		}
		if !r.started && r.opts.force {
			r.started = true
			r.writeDeclaration("")
			return nil
		}
		r.logger.Debug("namespaces rewritten", "elements", r.elements, "translated", r.translated)
		return io.EOF
	}
	if err != nil {
		return err
	}

	first := !r.started
	r.started = true
	if pi, ok := t.(xml.ProcInst); ok && pi.Target == "xml" && first {
		if !r.opts.absorb || r.opts.force {
			version := ""
			if !r.opts.absorb {
				version = string(pi.Inst)
			}
			r.writeDeclaration(version)
		}
		return nil
	}
	if first && r.opts.force {
		r.writeDeclaration("")
	}

	switch t := t.(type) {
	case xml.StartElement:
		r.closeOpenTag()
		return r.startElement(t)
	case xml.EndElement:
		return r.endElement(t)
	case xml.CharData:
		r.closeOpenTag()
		escapeText(&r.tok, t)
	case xml.Comment:
		r.closeOpenTag()
		r.tok.WriteString("<!--")
		r.tok.Write(t)
		r.tok.WriteString("-->")
	case xml.ProcInst:
		r.closeOpenTag()
		r.tok.WriteString("<?")
		r.tok.WriteString(t.Target)
		if len(t.Inst) > 0 {
			r.tok.WriteByte(' ')
			r.tok.Write(t.Inst)
		}
		r.tok.WriteString("?>")
	case xml.Directive:
		r.closeOpenTag()
		r.tok.WriteString("<!")
		r.tok.Write(t)
		r.tok.WriteByte('>')
	}
	return nil
}

// writeDeclaration emits an XML declaration carrying the output encoding.
// inst is the input declaration's content, if any, from which version and
// standalone are kept.
func (r *Rewriter) writeDeclaration(inst string) {
	version := pseudoAttr(inst, "version")
	if version == "" {
		version = "1.0"
	}
	r.tok.WriteString(`<?xml version="`)
	r.tok.WriteString(version)
	r.tok.WriteString(`" encoding="`)
	r.tok.WriteString(r.encTag)
	r.tok.WriteByte('"')
	if sa := pseudoAttr(inst, "standalone"); sa != "" {
		r.tok.WriteString(` standalone="`)
		r.tok.WriteString(sa)
		r.tok.WriteByte('"')
	}
	r.tok.WriteString("?>")
}

func (r *Rewriter) closeOpenTag() {
	if r.open {
		r.tok.WriteByte('>')
		r.open = false
	}
}

func (r *Rewriter) startElement(se xml.StartElement) error {
	var in nsScope
	attrs := make([]xml.Attr, 0, len(se.Attr))
	for _, a := range se.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			in.set("", a.Value)
		case a.Name.Space == "xmlns":
			if a.Name.Local != "xml" && a.Name.Local != "xmlns" {
				in.set(a.Name.Local, a.Value)
			}
		default:
			attrs = append(attrs, a)
		}
	}
	r.in.push(in)
	r.elements++

	uri, ok := r.in.lookup(se.Name.Space)
	if !ok {
		return fmt.Errorf("%w: %q on <%s:%s>", ErrUnboundPrefix, se.Name.Space, se.Name.Space, se.Name.Local)
	}
	target := uri
	if se.Name.Space != "xml" {
		if t, ok := r.set.Translate(uri); ok {
			target = t
			r.translated++
		}
	}

	// Carry the input declarations forward, translated, unless they are
	// already in effect. Prefixes cannot be undeclared in XML 1.0.
	r.out.push(nsScope{})
	cur := r.out.top()
	for _, d := range in.decls {
		v := d.uri
		if t, ok := r.set.Translate(v); ok {
			v = t
		}
		if d.prefix != "" && v == "" {
			continue
		}
		if got, _ := r.out.lookup(d.prefix); got == v {
			continue
		}
		cur.set(d.prefix, v)
	}

	used := make(map[string]bool)
	name := xml.Name{Local: se.Name.Local}
	if se.Name.Space == "xml" {
		name.Space = "xml"
	} else {
		name.Space = r.bindElement(se.Name.Space, target, used)
	}

	type outAttr struct {
		name  xml.Name
		value string
	}
	outAttrs := make([]outAttr, 0, len(attrs))
	seen := make(map[xml.Name]bool, len(attrs))
	for _, a := range attrs {
		an := a.Name
		expanded := xml.Name{Local: a.Name.Local}
		switch a.Name.Space {
		case "":
		case "xml":
			expanded.Space = XMLNamespace
		default:
			uri, ok := r.in.lookup(a.Name.Space)
			if !ok {
				return fmt.Errorf("%w: %q on attribute %s:%s", ErrUnboundPrefix, a.Name.Space, a.Name.Space, a.Name.Local)
			}
			target := uri
			if r.opts.attributes {
				if t, ok := r.set.Translate(uri); ok {
					target = t
					r.translated++
				}
			}
			expanded.Space = target
			an.Space = r.bindAttr(a.Name.Space, target, used)
		}
		if seen[expanded] {
			return fmt.Errorf("%w: {%s}%s", ErrDuplicateAttribute, expanded.Space, expanded.Local)
		}
		seen[expanded] = true
		outAttrs = append(outAttrs, outAttr{name: an, value: a.Value})
	}

	qname := qualified(name)
	r.tok.WriteByte('<')
	r.tok.WriteString(qname)
	for _, d := range cur.decls {
		r.tok.WriteString(" xmlns")
		if d.prefix != "" {
			r.tok.WriteByte(':')
			r.tok.WriteString(d.prefix)
		}
		r.tok.WriteString(`="`)
		escapeAttr(&r.tok, d.uri)
		r.tok.WriteByte('"')
	}
	for _, a := range outAttrs {
		r.tok.WriteByte(' ')
		r.tok.WriteString(qualified(a.name))
		r.tok.WriteString(`="`)
		escapeAttr(&r.tok, a.value)
		r.tok.WriteByte('"')
	}
	r.open = true
	r.frames = append(r.frames, frame{in: se.Name, out: qname})
	return nil
}

// bindElement returns the output prefix for an element in namespace uri,
// declaring it on the current element when needed. The input prefix is
// kept whenever possible.
func (r *Rewriter) bindElement(prefix, uri string, used map[string]bool) string {
	cur := r.out.top()
	if uri == "" {
		// No namespace: unprefixed, with the default undeclared if an
		// ancestor bound it.
		cur.remove("")
		if inherited, _ := r.out.lookup(""); inherited != "" {
			cur.set("", "")
		}
		used[""] = true
		return ""
	}
	if got, ok := r.out.lookup(prefix); ok && got == uri {
		used[prefix] = true
		return prefix
	}
	cur.set(prefix, uri)
	used[prefix] = true
	return prefix
}

// bindAttr returns a non-empty output prefix for an attribute in namespace
// uri, or "" when uri is empty.
func (r *Rewriter) bindAttr(prefix, uri string, used map[string]bool) string {
	if uri == "" {
		return ""
	}
	if got, ok := r.out.lookup(prefix); ok && got == uri {
		used[prefix] = true
		return prefix
	}
	if !used[prefix] {
		r.out.top().set(prefix, uri)
		used[prefix] = true
		return prefix
	}
	if p, ok := r.out.prefixFor(uri); ok {
		used[p] = true
		return p
	}
	p := r.out.freshPrefix(&r.next)
	r.out.top().set(p, uri)
	used[p] = true
	return p
}

func (r *Rewriter) endElement(ee xml.EndElement) error {
	if len(r.frames) == 0 {
		return fmt.Errorf("%w: unexpected </%s>", ErrUnbalanced, qualified(ee.Name))
	}
	f := r.frames[len(r.frames)-1]
	if f.in != ee.Name {
		return fmt.Errorf("%w: <%s> closed by </%s>", ErrUnbalanced, qualified(f.in), qualified(ee.Name))
	}
	r.frames = r.frames[:len(r.frames)-1]
	if r.open {
		r.tok.WriteString("/>")
		r.open = false
	} else {
		r.tok.WriteString("</")
		r.tok.WriteString(f.out)
		r.tok.WriteByte('>')
	}
	r.in.pop()
	r.out.pop()
	return nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// pseudoAttr extracts a pseudo-attribute from a processing instruction body.
func pseudoAttr(inst, name string) string {
	for {
		i := strings.Index(inst, name)
		if i < 0 {
			return ""
		}
		rest := strings.TrimLeft(inst[i+len(name):], " \t\r\n")
		if i > 0 && !isSpace(inst[i-1]) || !strings.HasPrefix(rest, "=") {
			inst = inst[i+len(name):]
			continue
		}
		rest = strings.TrimLeft(rest[1:], " \t\r\n")
		if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
			return ""
		}
		end := strings.IndexByte(rest[1:], rest[0])
		if end < 0 {
			return ""
		}
		return rest[1 : end+1]
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func escapeText(w *bytes.Buffer, s []byte) {
	last := 0
	for i, c := range s {
		var esc string
		switch c {
		case '&':
			esc = "&amp;"
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '\r':
			esc = "&#xD;"
		default:
			continue
		}
		w.Write(s[last:i])
		w.WriteString(esc)
		last = i + 1
	}
	w.Write(s[last:])
}

func escapeAttr(w *bytes.Buffer, s string) {
	last := 0
	for i := 0; i < len(s); i++ {
		var esc string
		switch s[i] {
		case '&':
			esc = "&amp;"
		case '<':
			esc = "&lt;"
		case '"':
			esc = "&quot;"
		case '\t':
			esc = "&#x9;"
		case '\n':
			esc = "&#xA;"
		case '\r':
			esc = "&#xD;"
		default:
			continue
		}
		w.WriteString(s[last:i])
		w.WriteString(esc)
		last = i + 1
	}
	w.WriteString(s[last:])
}
