package arcstream

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

func init() {
	RegisterCompressor(Gz{})
}

// Gz facilitates gzip compression.
type Gz struct {
	// Gzip compression level. See https://pkg.go.dev/compress/flate#pkg-constants
	// for some predefined constants. If 0, DefaultCompression is assumed rather
	// than no compression.
	CompressionLevel int

	// DisableMultistream controls whether the reader supports multistream files.
	// See https://pkg.go.dev/compress/gzip#example-Reader.Multistream
	DisableMultistream bool
}

func (Gz) Name() string { return "gz" }

func (Gz) Match(header []byte) bool {
	return bytes.HasPrefix(header, gzHeader)
}

func (gz Gz) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	// assume default compression level if 0, rather than no
	// compression, since no compression on a gzipped file
	// doesn't make any sense in our use cases
	level := gz.CompressionLevel
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return gzip.NewWriterLevel(w, level)
}

func (gz Gz) OpenReader(r io.Reader) (io.ReadCloser, error) {
	gzR, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	if gz.DisableMultistream {
		gzR.Multistream(false)
	}
	return gzR, nil
}

// magic number at the beginning of gzip files
var gzHeader = []byte{0x1f, 0x8b}
