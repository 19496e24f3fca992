package arcstream_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mholt/arcstream"
)

func TestDumpEntryNames(t *testing.T) {
	for i, tc := range []struct {
		original string
		simple   string
		typ      arcstream.EntryType
		expect   string
	}{
		{original: "foo", simple: "bar", typ: arcstream.TypeDir, expect: "foo/"},
		{original: "./foo", simple: "bar", typ: arcstream.TypeFile, expect: "foo"},
		{original: "./foo/bar", simple: "bar", typ: arcstream.TypeFile, expect: "foo/bar"},
		{original: "foo/bar", simple: "bar", typ: arcstream.TypeFile, expect: "foo/bar"},
		{original: "././foo", simple: "foo", typ: arcstream.TypeFile, expect: "./foo"},
		{original: "./dir", simple: "dir", typ: arcstream.TypeDir, expect: "dir/"},
		{original: "./dir/", simple: "dir", typ: arcstream.TypeDir, expect: "dir/"},
	} {
		e := arcstream.NewDumpEntryWithType(tc.original, tc.simple, arcstream.SizeUnknown, tc.typ)
		assert.Equal(t, tc.expect, e.Name(), "case %d", i)
		assert.Equal(t, tc.original, e.OriginalName(), "case %d", i)
		assert.Equal(t, tc.simple, e.SimpleName(), "case %d", i)
		assert.Equal(t, tc.typ == arcstream.TypeDir, e.IsDir(), "case %d", i)
	}
}

func TestNewDumpEntry(t *testing.T) {
	e := arcstream.NewDumpEntry("./foo", "bar")
	assert.Equal(t, "foo", e.Name())
	assert.Equal(t, "./foo", e.OriginalName())
	assert.Equal(t, "bar", e.SimpleName())
	assert.Equal(t, arcstream.SizeUnknown, e.Size())
	assert.Equal(t, arcstream.TypeFile, e.Type())
}

func TestDumpMatch(t *testing.T) {
	header := make([]byte, 1024)
	assert.False(t, arcstream.Dump{}.Match(header))
	binary.LittleEndian.PutUint32(header[24:], 60012)
	assert.True(t, arcstream.Dump{}.Match(header))
	binary.BigEndian.PutUint32(header[24:], 60012)
	assert.True(t, arcstream.Dump{}.Match(header))
	assert.False(t, arcstream.Dump{}.Match(header[:20]))
}
