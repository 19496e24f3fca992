package arcstream

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
)

func init() {
	RegisterCompressor(Bz2{})
}

// Bz2 facilitates bzip2 compression.
type Bz2 struct {
	CompressionLevel int
}

func (Bz2) Name() string { return "bzip2" }

func (Bz2) Match(header []byte) bool {
	return bytes.HasPrefix(header, bzip2Header)
}

func (bz Bz2) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, &bzip2.WriterConfig{
		Level: bz.CompressionLevel,
	})
}

func (Bz2) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(r, nil)
}

var bzip2Header = []byte("BZh")
