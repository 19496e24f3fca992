package arcstream

import (
	"io"
	"strings"
	"time"
)

// SizeUnknown is the size reported by entries whose payload length is
// not known when the header is read or written.
const SizeUnknown int64 = -1

// EntryType classifies the member an Entry describes.
type EntryType int

// Entry types.
const (
	TypeUnknown EntryType = iota
	TypeFile
	TypeDir
	TypeSymlink
	TypeHardlink
	TypeCharDevice
	TypeBlockDevice
	TypeFifo
	TypeSocket
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeHardlink:
		return "hardlink"
	case TypeCharDevice:
		return "char-device"
	case TypeBlockDevice:
		return "block-device"
	case TypeFifo:
		return "fifo"
	case TypeSocket:
		return "socket"
	}
	return "unknown"
}

// Unix file type bits as stored in ar, cpio and zip external attributes.
const (
	modeTypeMask = 0o170000
	modeSocket   = 0o140000
	modeSymlink  = 0o120000
	modeRegular  = 0o100000
	modeBlock    = 0o060000
	modeDir      = 0o040000
	modeChar     = 0o020000
	modeFifo     = 0o010000
)

// typeFromMode maps the file type bits of a unix mode to an EntryType.
func typeFromMode(mode int64) EntryType {
	switch mode & modeTypeMask {
	case modeRegular, 0:
		return TypeFile
	case modeDir:
		return TypeDir
	case modeSymlink:
		return TypeSymlink
	case modeChar:
		return TypeCharDevice
	case modeBlock:
		return TypeBlockDevice
	case modeFifo:
		return TypeFifo
	case modeSocket:
		return TypeSocket
	}
	return TypeUnknown
}

// modeBits returns the unix file type bits for t.
func (t EntryType) modeBits() int64 {
	switch t {
	case TypeDir:
		return modeDir
	case TypeSymlink:
		return modeSymlink
	case TypeCharDevice:
		return modeChar
	case TypeBlockDevice:
		return modeBlock
	case TypeFifo:
		return modeFifo
	case TypeSocket:
		return modeSocket
	}
	return modeRegular
}

// Entry describes one member of an archive. Every format has its own
// concrete entry type carrying format-specific metadata; drivers accept
// any Entry and fill in defaults for fields a foreign entry lacks.
type Entry interface {
	// Name returns the canonical name of the member. Directory
	// names end with a slash.
	Name() string

	// Size returns the payload length or SizeUnknown.
	Size() int64

	Type() EntryType
	ModTime() time.Time
	IsDir() bool
}

// entryHeader holds the fields every entry variant shares.
type entryHeader struct {
	name    string
	size    int64
	typ     EntryType
	modTime time.Time
}

func newEntryHeader(name string, size int64) entryHeader {
	h := entryHeader{name: name, size: size, typ: TypeFile}
	if strings.HasSuffix(name, "/") {
		h.typ = TypeDir
	}
	return h
}

func (h *entryHeader) Name() string       { return h.name }
func (h *entryHeader) Size() int64        { return h.size }
func (h *entryHeader) Type() EntryType    { return h.typ }
func (h *entryHeader) ModTime() time.Time { return h.modTime }
func (h *entryHeader) IsDir() bool        { return h.typ == TypeDir }

// SetSize sets the payload length; use SizeUnknown if it is not known.
func (h *entryHeader) SetSize(size int64) { h.size = size }

// SetModTime sets the modification time.
func (h *entryHeader) SetModTime(t time.Time) { h.modTime = t }

// SetType sets the entry type. Making an entry a directory appends the
// trailing slash to its name.
func (h *entryHeader) SetType(t EntryType) {
	h.typ = t
	if t == TypeDir && !strings.HasSuffix(h.name, "/") {
		h.name += "/"
	}
}

// ArchiveReader reads the members of an archive one after another. After
// Next returns an entry, the read methods return that entry's payload
// until io.EOF. Calling Next again skips whatever is left of the payload.
type ArchiveReader interface {
	// Next advances to the next entry. It returns io.EOF when the
	// archive has no more entries.
	Next() (Entry, error)

	io.Reader
	io.ByteReader

	// ReadSection reads up to n bytes into p[off:off+n].
	ReadSection(p []byte, off, n int) (int, error)

	// Skip discards up to n bytes of the current payload and returns
	// how many were skipped.
	Skip(n int64) (int64, error)

	// Available returns how many payload bytes can be read without
	// touching the underlying source.
	Available() int

	// BytesRead returns the payload bytes returned to the caller so far
	// across all entries.
	BytesRead() int64

	// Close releases the reader and closes the source if it is an
	// io.Closer. It is safe to call more than once.
	io.Closer
}

// ArchiveWriter writes archive members one after another: PutEntry, any
// number of writes, then CloseEntry. Finish writes the format trailer;
// Close finishes the archive if needed and closes the sink.
type ArchiveWriter interface {
	PutEntry(e Entry) error

	io.Writer
	io.ByteWriter

	// WriteSection writes p[off:off+n].
	WriteSection(p []byte, off, n int) (int, error)

	CloseEntry() error
	Finish() error

	// BytesWritten returns the number of bytes handed to the sink,
	// headers and trailers included.
	BytesWritten() int64

	io.Closer
}
