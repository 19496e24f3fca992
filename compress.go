package arcstream

import (
	"fmt"
	"io"
	"sort"
)

// RegisterCompressor registers a compression format. It should be called
// during init. Duplicate names are not allowed and will panic.
func RegisterCompressor(c Compression) {
	name := c.Name()
	if _, ok := compressors[name]; ok {
		panic("compressor " + name + " is already registered")
	}
	compressors[name] = c
}

// Compressors returns the names of the registered compression formats, sorted.
func Compressors() []string {
	names := make([]string, 0, len(compressors))
	for name := range compressors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupCompressor returns the compression format registered under name.
// Names are case-sensitive.
func LookupCompressor(name string) (Compression, error) {
	c, ok := compressors[name]
	if !ok {
		return nil, fmt.Errorf("%w: compressor %q", ErrUnknownFormat, name)
	}
	return c, nil
}

// CreateCompressorReader wraps r with a reader that decompresses the
// named format.
func CreateCompressorReader(name string, r io.Reader) (io.ReadCloser, error) {
	c, err := LookupCompressor(name)
	if err != nil {
		return nil, err
	}
	rc, err := c.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: opening reader: %w", name, err)
	}
	return rc, nil
}

// CreateCompressorWriter wraps w with a writer that compresses to the
// named format. The writer must be closed to flush the stream.
func CreateCompressorWriter(name string, w io.Writer) (io.WriteCloser, error) {
	c, err := LookupCompressor(name)
	if err != nil {
		return nil, err
	}
	wc, err := c.OpenWriter(w)
	if err != nil {
		return nil, fmt.Errorf("%s: opening writer: %w", name, err)
	}
	return wc, nil
}

// DetectCompressor reads the beginning of stream and returns the
// compression format whose magic bytes it starts with. The returned reader
// replays the inspected bytes. Formats without magic bytes (br,
// snappy-raw) are never detected.
func DetectCompressor(stream io.Reader) (Compression, io.Reader, error) {
	hr := newHeaderReader(stream)
	header, err := readAtMost(hr, compressorSignatureLen)
	if err != nil {
		return nil, nil, err
	}
	hr.Rewind()
	rest := hr.Reader()

	// the zlib and lzma checks only look at a couple of bits, so they go last
	for _, name := range detectOrder {
		if c, ok := compressors[name]; ok && c.Match(header) {
			return c, rest, nil
		}
	}
	return nil, rest, ErrNoMatch
}

const compressorSignatureLen = 16

var detectOrder = []string{"gz", "bzip2", "xz", "zstd", "lz4-framed", "snappy-framed", "lz", "deflate", "lzma"}

// Registered compression formats.
var compressors = make(map[string]Compression)
