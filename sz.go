package arcstream

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
)

func init() {
	RegisterCompressor(Sz{})
	RegisterCompressor(SnappyRaw{})
}

// Sz facilitates Snappy compression in the framing format. It uses S2
// for reading and writing, but by default will write Snappy-compatible
// data.
type Sz struct {
	// Configurable S2 extension.
	S2 S2
}

// S2 is an extension of Snappy that can read Snappy
// streams and write Snappy-compatible streams, but
// can also be configured to write Snappy-incompatible
// streams for greater gains. See
// https://pkg.go.dev/github.com/klauspost/compress/s2
// for details and the documentation for each option.
type S2 struct {
	// reader options
	MaxBlockSize           int
	IgnoreStreamIdentifier bool
	IgnoreCRC              bool

	// writer options
	Compression        S2Level
	BlockSize          int
	Concurrency        int
	Padding            int
	SnappyIncompatible bool
}

func (Sz) Name() string { return "snappy-framed" }

func (Sz) Match(header []byte) bool {
	return bytes.HasPrefix(header, snappyHeader)
}

func (sz Sz) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	var opts []s2.WriterOption
	switch sz.S2.Compression {
	case S2LevelNone:
		opts = append(opts, s2.WriterUncompressed())
	case S2LevelBetter:
		opts = append(opts, s2.WriterBetterCompression())
	case S2LevelBest:
		opts = append(opts, s2.WriterBestCompression())
	}
	if sz.S2.BlockSize != 0 {
		opts = append(opts, s2.WriterBlockSize(sz.S2.BlockSize))
	}
	if sz.S2.Concurrency != 0 {
		opts = append(opts, s2.WriterConcurrency(sz.S2.Concurrency))
	}
	if sz.S2.Padding != 0 {
		opts = append(opts, s2.WriterPadding(sz.S2.Padding))
	}
	if !sz.S2.SnappyIncompatible {
		// this option is inverted because by default we should
		// probably write Snappy-compatible streams
		opts = append(opts, s2.WriterSnappyCompat())
	}
	return s2.NewWriter(w, opts...), nil
}

func (sz Sz) OpenReader(r io.Reader) (io.ReadCloser, error) {
	var opts []s2.ReaderOption
	if sz.S2.IgnoreCRC {
		opts = append(opts, s2.ReaderIgnoreCRC())
	}
	if sz.S2.IgnoreStreamIdentifier {
		opts = append(opts, s2.ReaderIgnoreStreamIdentifier())
	}
	if sz.S2.MaxBlockSize != 0 {
		opts = append(opts, s2.ReaderMaxBlockSize(sz.S2.MaxBlockSize))
	}
	return io.NopCloser(s2.NewReader(r, opts...)), nil
}

// Compression level for S2 (Snappy/Sz extension).
type S2Level int

// Compression levels for S2.
const (
	S2LevelNone   S2Level = 0
	S2LevelFast   S2Level = 1
	S2LevelBetter S2Level = 2
	S2LevelBest   S2Level = 3
)

// https://github.com/google/snappy/blob/master/framing_format.txt - contains "sNaPpY"
var snappyHeader = []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}

// SnappyRaw is an unframed Snappy block. The block format needs the whole
// input at once, so the writer compresses on Close and the reader
// decodes the whole stream on the first Read.
type SnappyRaw struct{}

func (SnappyRaw) Name() string { return "snappy-raw" }

// Match always returns false; raw blocks have no magic bytes.
func (SnappyRaw) Match([]byte) bool { return false }

func (SnappyRaw) OpenWriter(w io.Writer) (io.WriteCloser, error) {
	return &snappyBlockWriter{w: w}, nil
}

func (SnappyRaw) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return &snappyBlockReader{r: r}, nil
}

type snappyBlockWriter struct {
	w      io.Writer
	buf    bytes.Buffer
	closed bool
}

func (sw *snappyBlockWriter) Write(p []byte) (int, error) {
	if sw.closed {
		return 0, ErrClosed
	}
	return sw.buf.Write(p)
}

func (sw *snappyBlockWriter) Close() error {
	if sw.closed {
		return nil
	}
	sw.closed = true
	_, err := sw.w.Write(snappy.Encode(nil, sw.buf.Bytes()))
	return err
}

type snappyBlockReader struct {
	r       io.Reader
	decoded *bytes.Reader
}

func (sr *snappyBlockReader) Read(p []byte) (int, error) {
	if sr.decoded == nil {
		block, err := io.ReadAll(sr.r)
		if err != nil {
			return 0, err
		}
		data, err := snappy.Decode(nil, block)
		if err != nil {
			return 0, err
		}
		sr.decoded = bytes.NewReader(data)
	}
	return sr.decoded.Read(p)
}

func (sr *snappyBlockReader) Close() error { return nil }
