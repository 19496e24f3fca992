package arcstream

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

func init() {
	RegisterFormat(Tar{})
}

// TarLongFileMode selects how the tar writer stores names and link
// targets that do not fit a ustar header.
type TarLongFileMode int

const (
	// TarLongFileAuto writes ustar headers and switches to PAX
	// records only for entries that need them.
	TarLongFileAuto TarLongFileMode = iota

	// TarLongFileError fails on entries a ustar header cannot hold.
	TarLongFileError

	// TarLongFileGNU writes GNU headers with long name records.
	TarLongFileGNU

	// TarLongFilePOSIX writes PAX headers for every entry.
	TarLongFilePOSIX
)

func (m TarLongFileMode) format() tar.Format {
	switch m {
	case TarLongFileError:
		return tar.FormatUSTAR
	case TarLongFileGNU:
		return tar.FormatGNU
	case TarLongFilePOSIX:
		return tar.FormatPAX
	}
	return tar.FormatUnknown
}

// Tar is the tar archive format.
type Tar struct {
	LongFileMode TarLongFileMode

	// If true, preserve only numeric user and group id
	NumericUIDGID bool

	Logger *slog.Logger
}

func (Tar) Name() string { return "tar" }

// Match reports a ustar or GNU magic with a valid header checksum.
func (Tar) Match(header []byte) bool {
	if len(header) < tarBlockSize {
		return false
	}
	if !bytes.HasPrefix(header[257:], []byte("ustar")) {
		return false
	}
	stored, err := strconv.ParseInt(strings.Trim(string(header[148:156]), " \x00"), 8, 64)
	return err == nil && stored == tarChecksum(header[:tarBlockSize])
}

func (t Tar) configure(opts factoryOptions) Format {
	if opts.logger != nil {
		t.Logger = opts.logger
	}
	return t
}

func (Tar) NewEntry(name string, size int64) Entry {
	return NewTarEntry(name, size)
}

func (t Tar) OpenArchiveWriter(w io.Writer) (ArchiveWriter, error) {
	return newArchiveWriter(t.Name(), w, func(dst io.Writer) writeDriver {
		sink := &tarSink{w: dst}
		return &tarWriter{t: t, tw: tar.NewWriter(sink), sink: sink, log: discardLogger(t.Logger)}
	}), nil
}

func (t Tar) OpenArchiveReader(r io.Reader) (ArchiveReader, error) {
	return newArchiveReader(t.Name(), r, func(br *bufio.Reader) readDriver {
		return &tarReader{tr: tar.NewReader(br), log: discardLogger(t.Logger)}
	}), nil
}

// TarEntry is a member of a tar archive.
type TarEntry struct {
	entryHeader
	Linkname string
	Uname    string
	Gname    string
	UID      int
	GID      int
	Mode     int64

	// Typeflag is the raw tar type flag. Zero derives it from Type.
	Typeflag byte
}

// NewTarEntry returns a regular file entry with mode 0644 and the
// current time as modification time.
func NewTarEntry(name string, size int64) *TarEntry {
	e := &TarEntry{entryHeader: newEntryHeader(name, size), Mode: 0o644}
	if e.IsDir() {
		e.Mode = 0o755
	}
	e.modTime = time.Now().Truncate(time.Second)
	return e
}

const tarBlockSize = 512

// tarChecksum is the unsigned sum of the header bytes with the
// checksum field counted as spaces.
func tarChecksum(block []byte) int64 {
	var sum int64
	for i, b := range block {
		if i >= 148 && i < 156 {
			b = ' '
		}
		sum += int64(b)
	}
	return sum
}

func tarTypeflag(t EntryType) byte {
	switch t {
	case TypeDir:
		return tar.TypeDir
	case TypeSymlink:
		return tar.TypeSymlink
	case TypeHardlink:
		return tar.TypeLink
	case TypeCharDevice:
		return tar.TypeChar
	case TypeBlockDevice:
		return tar.TypeBlock
	case TypeFifo:
		return tar.TypeFifo
	}
	return tar.TypeReg
}

func tarEntryType(flag byte) EntryType {
	switch flag {
	case tar.TypeReg, tar.TypeRegA, tar.TypeCont:
		return TypeFile
	case tar.TypeDir:
		return TypeDir
	case tar.TypeSymlink:
		return TypeSymlink
	case tar.TypeLink:
		return TypeHardlink
	case tar.TypeChar:
		return TypeCharDevice
	case tar.TypeBlock:
		return TypeBlockDevice
	case tar.TypeFifo:
		return TypeFifo
	}
	return TypeUnknown
}

// tarSink remembers the last write error so header encoding failures
// can be told apart from I/O failures.
type tarSink struct {
	w   io.Writer
	err error
}

func (s *tarSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

type tarWriter struct {
	t    Tar
	tw   *tar.Writer
	sink *tarSink
	log  *slog.Logger

	size    int64
	written int64
}

func (w *tarWriter) putEntry(e Entry) error {
	if e.Size() < 0 {
		return fmt.Errorf("%w: tar entry %q needs a size", ErrInvalidState, e.Name())
	}
	if strings.IndexByte(e.Name(), 0) >= 0 {
		return formatErr("tar", "entry name %q contains NUL", e.Name())
	}
	hdr := &tar.Header{
		Name:     e.Name(),
		Size:     e.Size(),
		Mode:     0o644,
		ModTime:  e.ModTime(),
		Typeflag: tarTypeflag(e.Type()),
		Format:   w.t.LongFileMode.format(),
	}
	if e.IsDir() {
		hdr.Mode = 0o755
	}
	if te, ok := e.(*TarEntry); ok {
		hdr.Linkname = te.Linkname
		hdr.Uname = te.Uname
		hdr.Gname = te.Gname
		hdr.Uid = te.UID
		hdr.Gid = te.GID
		hdr.Mode = te.Mode
		if te.Typeflag != 0 {
			hdr.Typeflag = te.Typeflag
		}
	}
	if hdr.ModTime.IsZero() {
		hdr.ModTime = time.Unix(0, 0)
	}
	if w.t.NumericUIDGID {
		hdr.Uname = ""
		hdr.Gname = ""
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		if w.sink.err != nil {
			return fmt.Errorf("entry %s: writing header: %w", hdr.Name, err)
		}
		return &FormatError{Format: "tar", Msg: "cannot encode entry " + hdr.Name, Err: err}
	}
	w.size = e.Size()
	w.written = 0
	return nil
}

func (w *tarWriter) write(p []byte) (int, error) {
	if w.written+int64(len(p)) > w.size {
		return 0, fmt.Errorf("%w: %d bytes exceed declared size %d", ErrSizeMismatch, w.written+int64(len(p)), w.size)
	}
	n, err := w.tw.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *tarWriter) closeEntry() error {
	if w.written != w.size {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, w.written, w.size)
	}
	return w.tw.Flush()
}

func (w *tarWriter) finish() error {
	return w.tw.Close()
}

type tarReader struct {
	tr  *tar.Reader
	log *slog.Logger

	left int64
}

func (r *tarReader) next() (Entry, error) {
	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			if errors.Is(err, tar.ErrHeader) || err == io.ErrUnexpectedEOF {
				return nil, &FormatError{Format: "tar", Msg: "reading header", Err: err}
			}
			return nil, err
		}
		switch hdr.Typeflag {
		case tar.TypeXHeader, tar.TypeXGlobalHeader, tar.TypeGNULongName, tar.TypeGNULongLink:
			r.log.Debug("skipping tar metadata header", "typeflag", string(hdr.Typeflag))
			continue
		}

		e := &TarEntry{
			entryHeader: entryHeader{
				name:    hdr.Name,
				size:    hdr.Size,
				typ:     tarEntryType(hdr.Typeflag),
				modTime: hdr.ModTime,
			},
			Linkname: hdr.Linkname,
			Uname:    hdr.Uname,
			Gname:    hdr.Gname,
			UID:      hdr.Uid,
			GID:      hdr.Gid,
			Mode:     hdr.Mode & int64(fs.ModePerm|0o7000),
			Typeflag: hdr.Typeflag,
		}
		if e.typ == TypeDir && !strings.HasSuffix(e.name, "/") {
			e.name += "/"
		}
		r.left = hdr.Size
		if e.typ != TypeFile {
			r.left = 0
		}
		return e, nil
	}
}

func (r *tarReader) read(p []byte) (int, error) {
	n, err := r.tr.Read(p)
	r.left -= int64(n)
	if err == io.ErrUnexpectedEOF {
		err = &FormatError{Format: "tar", Msg: "truncated entry", Err: err}
	}
	return n, err
}

func (r *tarReader) remaining() int64 { return r.left }

// Interface guards
var (
	_ Archival     = Tar{}
	_ configurable = Tar{}
)
