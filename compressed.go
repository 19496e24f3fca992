package arcstream

import (
	"errors"
	"fmt"
	"io"
)

// CompressedArchive is an archive format wrapped in a compression
// format, like tar.gz. BytesWritten of its writers counts archive bytes
// before compression.
type CompressedArchive struct {
	Archive     Format
	Compression Compression
}

// Compressed returns the combination of the named archive and
// compression formats.
func (f Factory) Compressed(archive, compression string) (CompressedArchive, error) {
	a, err := f.Lookup(archive)
	if err != nil {
		return CompressedArchive{}, err
	}
	c, err := LookupCompressor(compression)
	if err != nil {
		return CompressedArchive{}, err
	}
	return CompressedArchive{Archive: a, Compression: c}, nil
}

// Name returns the archive name and the compression name joined by a
// dot, e.g. "tar.gz".
func (ca CompressedArchive) Name() string {
	return ca.Archive.Name() + "." + ca.Compression.Name()
}

// Match reports whether header starts a stream of the compression format.
func (ca CompressedArchive) Match(header []byte) bool {
	return ca.Compression.Match(header)
}

func (ca CompressedArchive) OpenArchiveWriter(w io.Writer) (ArchiveWriter, error) {
	a, ok := ca.Archive.(Archiver)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be written", ErrNotSupported, ca.Archive.Name())
	}
	cw, err := ca.Compression.OpenWriter(w)
	if err != nil {
		return nil, fmt.Errorf("%s: opening writer: %w", ca.Compression.Name(), err)
	}
	return a.OpenArchiveWriter(compressedSink{WriteCloser: cw, dst: w})
}

func (ca CompressedArchive) OpenArchiveReader(r io.Reader) (ArchiveReader, error) {
	u, ok := ca.Archive.(Unarchiver)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be read as a stream", ErrNotSupported, ca.Archive.Name())
	}
	cr, err := ca.Compression.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: opening reader: %w", ca.Compression.Name(), err)
	}
	return u.OpenArchiveReader(compressedSource{ReadCloser: cr, src: r})
}

// compressedSink closes the compressor, then the sink under it.
type compressedSink struct {
	io.WriteCloser
	dst io.Writer
}

func (s compressedSink) Close() error {
	err := s.WriteCloser.Close()
	if c, ok := s.dst.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// compressedSource closes the decompressor, then the source under it.
type compressedSource struct {
	io.ReadCloser
	src io.Reader
}

func (s compressedSource) Close() error {
	err := s.ReadCloser.Close()
	if c, ok := s.src.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// Interface guards
var (
	_ Format     = CompressedArchive{}
	_ Archiver   = CompressedArchive{}
	_ Unarchiver = CompressedArchive{}
	_ io.Closer  = compressedSink{}
	_ io.Closer  = compressedSource{}
)
