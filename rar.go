package arcstream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/nwaples/rardecode/v2"
)

func init() {
	RegisterFormat(Rar{})
}

// Rar reads RAR archives. RAR is a proprietary format, so it can only
// be read, not written.
type Rar struct {
	// Password to open archives.
	Password string

	Logger *slog.Logger
}

func (Rar) Name() string { return "rar" }

func (Rar) Match(header []byte) bool {
	return bytes.HasPrefix(header, rarHeaderV1_5) || bytes.HasPrefix(header, rarHeaderV5_0)
}

func (r Rar) configure(opts factoryOptions) Format {
	if opts.logger != nil {
		r.Logger = opts.logger
	}
	return r
}

func (r Rar) OpenArchiveReader(src io.Reader) (ArchiveReader, error) {
	var options []rardecode.Option
	if r.Password != "" {
		options = append(options, rardecode.Password(r.Password))
	}
	var openErr error
	ar := newArchiveReader(r.Name(), src, func(br *bufio.Reader) readDriver {
		rr, err := rardecode.NewReader(br, options...)
		openErr = err
		return &rarReader{rr: rr, log: discardLogger(r.Logger)}
	})
	if openErr != nil {
		return nil, &FormatError{Format: "rar", Msg: "opening archive", Err: openErr}
	}
	return ar, nil
}

// RarEntry is a member of a RAR archive.
type RarEntry struct {
	entryHeader
	Mode  fs.FileMode
	Solid bool
}

type rarReader struct {
	rr  *rardecode.Reader
	log *slog.Logger

	left int64
}

func (r *rarReader) next() (Entry, error) {
	hdr, err := r.rr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FormatError{Format: "rar", Msg: "truncated archive", Err: err}
		}
		return nil, fmt.Errorf("rar: %w", err)
	}

	e := &RarEntry{
		entryHeader: entryHeader{
			name:    hdr.Name,
			size:    hdr.UnPackedSize,
			typ:     TypeFile,
			modTime: hdr.ModificationTime,
		},
		Mode:  hdr.Mode(),
		Solid: hdr.Solid,
	}
	switch {
	case hdr.IsDir:
		e.SetType(TypeDir)
		e.size = 0
	case hdr.Mode()&fs.ModeSymlink != 0:
		e.typ = TypeSymlink
	}
	if hdr.UnKnownSize {
		e.size = SizeUnknown
	}
	r.left = e.size
	return e, nil
}

func (r *rarReader) read(p []byte) (int, error) {
	n, err := r.rr.Read(p)
	if r.left > 0 {
		r.left -= int64(n)
	}
	return n, err
}

func (r *rarReader) remaining() int64 { return r.left }

var (
	rarHeaderV1_5 = []byte("Rar!\x1a\x07\x00")     // v1.5
	rarHeaderV5_0 = []byte("Rar!\x1a\x07\x01\x00") // v5.0
)

// Interface guards
var (
	_ Format       = Rar{}
	_ Unarchiver   = Rar{}
	_ configurable = Rar{}
)
