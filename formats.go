package arcstream

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// RegisterFormat registers an archive format. It should be called during init.
// Duplicate formats by name are not allowed and will panic.
func RegisterFormat(format Format) {
	name := format.Name()
	if _, ok := formats[name]; ok {
		panic("format " + name + " is already registered")
	}
	formats[name] = format
}

// Formats returns the names of the registered archive formats, sorted.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factory resolves format names to drivers. The zero value is ready to
// use; its fields apply to every stream it creates.
type Factory struct {
	// EntryEncoding names the charset entry names are encoded with, for
	// formats that store names as bytes. Empty means each format's default
	// (UTF-8 for zip and jar, raw bytes for the others).
	EntryEncoding string

	// Logger receives debug output from the drivers. Nil discards it.
	Logger *slog.Logger
}

// Lookup returns the registered format with the given name, configured
// with f's options. Names are case-sensitive.
func (f Factory) Lookup(name string) (Format, error) {
	format, ok := formats[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	if c, ok := format.(configurable); ok {
		format = c.configure(factoryOptions{encoding: f.EntryEncoding, logger: f.Logger})
	}
	return format, nil
}

// CreateArchiveReader returns a streaming reader for the named format
// over r. The reader owns r and closes it on Close if it is an io.Closer.
func (f Factory) CreateArchiveReader(name string, r io.Reader) (ArchiveReader, error) {
	format, err := f.Lookup(name)
	if err != nil {
		return nil, err
	}
	u, ok := format.(Unarchiver)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be read as a stream", ErrNotSupported, name)
	}
	return u.OpenArchiveReader(r)
}

// CreateArchiveWriter returns a streaming writer for the named format
// over w. The writer owns w and closes it on Close if it is an io.Closer.
func (f Factory) CreateArchiveWriter(name string, w io.Writer) (ArchiveWriter, error) {
	format, err := f.Lookup(name)
	if err != nil {
		return nil, err
	}
	a, ok := format.(Archiver)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be written", ErrNotSupported, name)
	}
	return a.OpenArchiveWriter(w)
}

// CreateEntry returns a new entry of the named format's entry type.
// Pass SizeUnknown if the size is not known yet.
func (f Factory) CreateEntry(name, entryName string, size int64) (Entry, error) {
	format, err := f.Lookup(name)
	if err != nil {
		return nil, err
	}
	ec, ok := format.(EntryCreator)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no entry type", ErrNotSupported, name)
	}
	return ec.NewEntry(entryName, size), nil
}

// CreateArchiveReader is Factory{}.CreateArchiveReader.
func CreateArchiveReader(format string, r io.Reader) (ArchiveReader, error) {
	return Factory{}.CreateArchiveReader(format, r)
}

// CreateArchiveWriter is Factory{}.CreateArchiveWriter.
func CreateArchiveWriter(format string, w io.Writer) (ArchiveWriter, error) {
	return Factory{}.CreateArchiveWriter(format, w)
}

// CreateEntry is Factory{}.CreateEntry.
func CreateEntry(format, name string, size int64) (Entry, error) {
	return Factory{}.CreateEntry(format, name, size)
}

// signatureLen is how many leading bytes Identify inspects; it covers
// the tar header, the longest signature.
const signatureLen = 512

// Identify reads the beginning of stream and returns the archive format
// whose signature it carries. The returned reader replays the inspected
// bytes and must be used in place of stream afterwards.
//
// If no matching formats were found, special error ErrNoMatch is returned.
func Identify(stream io.Reader) (Format, io.Reader, error) {
	hr := newHeaderReader(stream)
	header, err := readAtMost(hr, signatureLen)
	if err != nil {
		return nil, nil, err
	}
	hr.Rewind()
	rest := hr.Reader()

	// tar is tried last: its check is the weakest and a cpio or ar
	// member could in theory hold a ustar header at offset 257
	for _, name := range identifyOrder {
		if format, ok := formats[name]; ok && format.Match(header) {
			return format, rest, nil
		}
	}
	return nil, rest, ErrNoMatch
}

var identifyOrder = []string{"ar", "cpio", "zip", "rar", "dump", "tar"}

// readAtMost reads at most n bytes from the stream. A nil, empty, or short
// stream is not an error. The returned slice of bytes may have length < n
// without an error.
func readAtMost(stream io.Reader, n int) ([]byte, error) {
	if stream == nil || n <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	nr, err := io.ReadFull(stream, buf)

	// Return the bytes read if there was no error OR if the
	// error was EOF (stream was empty) or UnexpectedEOF (stream
	// had less than n). We ignore those errors because we aren't
	// required to read the full n bytes; so an empty or short
	// stream is not actually an error.
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return buf[:nr], nil
	}

	return nil, err
}

// Registered archive formats.
var formats = make(map[string]Format)
