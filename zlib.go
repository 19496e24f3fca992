package arcstream

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

func init() {
	RegisterCompressor(Zlib{})
}

// Zlib facilitates zlib compression; the stream is DEFLATE data with
// a zlib header and checksum.
type Zlib struct {
	CompressionLevel int
}

func (Zlib) Name() string { return "deflate" }

// Match checks the compression method and header check bits of
// RFC 1950.
func (Zlib) Match(header []byte) bool {
	if len(header) < 2 {
		return false
	}
	cmf, flg := uint16(header[0]), uint16(header[1])
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (cmf<<8|flg)%31 == 0
}

func (zz Zlib) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	level := zz.CompressionLevel
	if level == 0 {
		level = zlib.DefaultCompression
	}
	return zlib.NewWriterLevel(w, level)
}

func (Zlib) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}
