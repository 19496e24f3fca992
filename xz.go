package arcstream

import (
	"bytes"
	"io"

	fastxz "github.com/therootcompany/xz"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterCompressor(Xz{})
	RegisterCompressor(Lzma{})
}

// Xz facilitates xz compression.
type Xz struct{}

func (Xz) Name() string { return "xz" }

func (Xz) Match(header []byte) bool {
	return bytes.HasPrefix(header, xzHeader)
}

func (Xz) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	return xz.NewWriter(w)
}

func (Xz) OpenReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := fastxz.NewReader(r, 0)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xr), err
}

// magic number at the beginning of xz files; see section 2.1.1.1
// of https://tukaani.org/xz/xz-file-format.txt
var xzHeader = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

// Lzma facilitates compression in the legacy .lzma ("LZMA alone") format.
type Lzma struct{}

func (Lzma) Name() string { return "lzma" }

// Match accepts the properties byte every common encoder writes (lc=3,
// lp=0, pb=2) followed by a dictionary size below 16 MiB.
func (Lzma) Match(header []byte) bool {
	return len(header) >= 13 && header[0] == 0x5d && header[4] == 0x00
}

func (Lzma) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	return lzma.NewWriter(w)
}

func (Lzma) OpenReader(r io.Reader) (io.ReadCloser, error) {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(lr), nil
}
