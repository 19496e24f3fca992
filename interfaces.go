package arcstream

import (
	"io"
	"log/slog"
)

// Format represents either an archive or compression format.
type Format interface {
	// Name returns the name the format is registered under,
	// e.g. "tar" or "gz".
	Name() string

	// Match reports whether header, the first bytes of a stream,
	// carries this format's signature. The slice may be shorter than
	// the format's signature if the stream is short.
	Match(header []byte) bool
}

// Unarchiver can open an archive for streaming reads.
type Unarchiver interface {
	OpenArchiveReader(r io.Reader) (ArchiveReader, error)
}

// Archiver can open an archive for streaming writes.
type Archiver interface {
	OpenArchiveWriter(w io.Writer) (ArchiveWriter, error)
}

// EntryCreator makes an empty entry of the format's own entry type.
type EntryCreator interface {
	NewEntry(name string, size int64) Entry
}

// Archival is an archive format that can be both read and written.
type Archival interface {
	Format
	Archiver
	Unarchiver
	EntryCreator
}

// Compressor can compress data by wrapping a writer.
type Compressor interface {
	// OpenWriter wraps w with a new writer that compresses what is written.
	// The writer must be closed when writing is finished.
	OpenWriter(w io.Writer) (io.WriteCloser, error)
}

// Decompressor can decompress data by wrapping a reader.
type Decompressor interface {
	// OpenReader wraps r with a new reader that decompresses what is read.
	// The reader must be closed when reading is finished.
	OpenReader(r io.Reader) (io.ReadCloser, error)
}

// Compression is a compression format with both compress and decompress methods.
type Compression interface {
	Format
	Compressor
	Decompressor
}

// configurable is implemented by formats that take factory-level options.
// It returns a copy of the format with the options applied.
type configurable interface {
	configure(opts factoryOptions) Format
}

type factoryOptions struct {
	encoding string
	logger   *slog.Logger
}

// readDriver is the format-specific half of an ArchiveReader.
type readDriver interface {
	// next skips the rest of the current entry and parses the next
	// header. It returns io.EOF at the end of the archive.
	next() (Entry, error)

	// read reads the current entry's payload, returning io.EOF at its end.
	read(p []byte) (int, error)

	// remaining returns the payload bytes left in the current entry,
	// or -1 if unknown.
	remaining() int64
}

// writeDriver is the format-specific half of an ArchiveWriter. It writes
// to the counting sink it was created with.
type writeDriver interface {
	putEntry(e Entry) error
	write(p []byte) (int, error)
	closeEntry() error
	finish() error
}
