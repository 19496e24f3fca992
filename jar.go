package arcstream

import (
	"io"
)

func init() {
	RegisterFormat(Jar{})
}

// Jar is the Java archive format: a zip archive whose first entry
// carries the 0xCAFE extra field that marks the file as executable.
type Jar struct {
	Zip
}

func (Jar) Name() string { return "jar" }

// Match never reports a match; jar files are identified as zip.
func (Jar) Match([]byte) bool { return false }

func (j Jar) configure(opts factoryOptions) Format {
	j.Zip = j.Zip.configure(opts).(Zip)
	return j
}

func (Jar) NewEntry(name string, size int64) Entry {
	return NewJarEntry(name, size)
}

func (j Jar) OpenArchiveWriter(w io.Writer) (ArchiveWriter, error) {
	return j.openWriter(j.Name(), w, true), nil
}

func (j Jar) OpenArchiveReader(r io.Reader) (ArchiveReader, error) {
	return j.openReader(j.Name(), r, true), nil
}

// JarEntry is a member of a jar archive.
type JarEntry struct {
	ZipEntry
}

// NewJarEntry returns a DEFLATE entry like NewZipEntry.
func NewJarEntry(name string, size int64) *JarEntry {
	return &JarEntry{ZipEntry: *NewZipEntry(name, size)}
}

// Interface guards
var (
	_ Archival     = Jar{}
	_ configurable = Jar{}
)
