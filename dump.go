package arcstream

import (
	"encoding/binary"
	"path"
	"strings"
)

func init() {
	RegisterFormat(Dump{})
}

// Dump is the BSD dump format. Only its entry model is implemented:
// dump archives can be identified and entries created, but not read
// or written.
type Dump struct{}

func (Dump) Name() string { return "dump" }

// Match looks for the NFS magic number of a dump tape header.
func (Dump) Match(header []byte) bool {
	if len(header) < 28 {
		return false
	}
	magic := header[24:28]
	return binary.LittleEndian.Uint32(magic) == dumpMagic || binary.BigEndian.Uint32(magic) == dumpMagic
}

func (Dump) NewEntry(name string, size int64) Entry {
	typ := TypeFile
	if strings.HasSuffix(name, "/") {
		typ = TypeDir
	}
	return NewDumpEntryWithType(name, path.Base(name), size, typ)
}

const dumpMagic = 60012

// DumpEntry is a member of a dump archive. It keeps the name as
// recorded on tape and the simple name next to the canonical Name.
type DumpEntry struct {
	entryHeader
	originalName string
	simpleName   string
}

// NewDumpEntry returns a file entry of unknown size.
func NewDumpEntry(originalName, simpleName string) *DumpEntry {
	return NewDumpEntryWithType(originalName, simpleName, SizeUnknown, TypeFile)
}

// NewDumpEntryWithType returns an entry of the given size and type. Its
// Name is originalName without one leading "./", with a trailing slash
// if it is a directory.
func NewDumpEntryWithType(originalName, simpleName string, size int64, typ EntryType) *DumpEntry {
	e := &DumpEntry{originalName: originalName, simpleName: simpleName}
	e.name = strings.TrimPrefix(originalName, "./")
	e.size = size
	e.SetType(typ)
	return e
}

// OriginalName returns the name as recorded in the archive.
func (e *DumpEntry) OriginalName() string { return e.originalName }

// SimpleName returns the final path element as recorded in the archive.
func (e *DumpEntry) SimpleName() string { return e.simpleName }

// Interface guards
var (
	_ Format       = Dump{}
	_ EntryCreator = Dump{}
)
