package arcstream

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

func init() {
	RegisterCompressor(Lz4{})
}

// Lz4 facilitates LZ4 compression in the frame format.
type Lz4 struct {
	CompressionLevel int
}

func (Lz4) Name() string { return "lz4-framed" }

func (Lz4) Match(header []byte) bool {
	return bytes.HasPrefix(header, lz4Header)
}

func (lz Lz4) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	lzw := lz4.NewWriter(w)
	options := []lz4.Option{
		lz4.CompressionLevelOption(lz4Level(lz.CompressionLevel)),
	}
	if err := lzw.Apply(options...); err != nil {
		return nil, err
	}
	return lzw, nil
}

func (Lz4) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// lz4Level maps 0-9 to the library's levels; 0 is the fast mode.
func lz4Level(n int) lz4.CompressionLevel {
	levels := []lz4.CompressionLevel{
		lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
		lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
	}
	if n < 0 {
		n = 0
	}
	if n >= len(levels) {
		n = len(levels) - 1
	}
	return levels[n]
}

// magic number at the beginning of LZ4 frames
var lz4Header = []byte{0x04, 0x22, 0x4d, 0x18}
