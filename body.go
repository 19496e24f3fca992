package arcstream

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mholt/arcstream/zipenc"
)

// bodyReader limits reads to the payload of the current entry.
type bodyReader struct {
	r      io.Reader
	format string
	left   int64
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.left <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.left {
		p = p[:b.left]
	}
	n, err := b.r.Read(p)
	b.left -= int64(n)
	if err == io.EOF {
		if b.left > 0 {
			return n, &FormatError{Format: b.format, Msg: "truncated entry", Err: io.ErrUnexpectedEOF}
		}
		err = nil
	}
	return n, err
}

// skipRest discards what is left of the payload.
func (b *bodyReader) skipRest() error {
	if b.left <= 0 {
		return nil
	}
	n, err := io.CopyN(io.Discard, b.r, b.left)
	b.left -= n
	if err == io.EOF {
		return &FormatError{Format: b.format, Msg: "truncated entry", Err: io.ErrUnexpectedEOF}
	}
	return err
}

// skipPadding discards up to n bytes of alignment padding. Archives
// that end without their final padding are accepted.
func skipPadding(br *bufio.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := br.Discard(int(n))
	if err == io.EOF {
		return nil
	}
	return err
}

// readHeader fills buf from r. A clean end of stream before the first
// byte is io.EOF; a partial header is a format error.
func readHeader(r io.Reader, buf []byte, format string) error {
	_, err := io.ReadFull(r, buf)
	switch err {
	case nil, io.EOF:
		return err
	case io.ErrUnexpectedEOF:
		return &FormatError{Format: format, Msg: "truncated header", Err: err}
	}
	return err
}

// nameCodec converts entry names for formats that store raw name bytes.
// The zero value passes names through unchanged.
type nameCodec struct {
	enc zipenc.Encoding
}

func newNameCodec(charset string) nameCodec {
	if charset == "" {
		return nameCodec{}
	}
	return nameCodec{enc: zipenc.Lookup(charset)}
}

func (c nameCodec) encode(format, name string) ([]byte, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return nil, formatErr(format, "entry name %q contains NUL", name)
	}
	if c.enc == nil {
		return []byte(name), nil
	}
	b, err := c.enc.Encode(name)
	if err != nil {
		return nil, fmt.Errorf("%s: entry name %q: %w", format, name, err)
	}
	return b, nil
}

func (c nameCodec) decode(format string, b []byte) (string, error) {
	if c.enc == nil {
		return string(b), nil
	}
	name, err := c.enc.Decode(b)
	if err != nil {
		return "", fmt.Errorf("%s: entry name: %w", format, err)
	}
	return name, nil
}
