package arcstream

import (
	"io"

	"github.com/andybalholm/brotli"
)

func init() {
	RegisterCompressor(Brotli{})
}

// Brotli facilitates brotli compression.
type Brotli struct {
	Quality int
}

func (Brotli) Name() string { return "br" }

// Match always returns false: brotli does not have well-defined file
// headers; the best way to match the stream would be to try decoding
// part of it, and this is not implemented for now
func (Brotli) Match([]byte) bool { return false }

func (br Brotli) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	return brotli.NewWriterLevel(w, br.Quality), nil
}

func (Brotli) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(r)), nil
}
