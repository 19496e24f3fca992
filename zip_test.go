package arcstream

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mholt/arcstream/checksum"
)

var zipTestData = bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 50)

func writeZip(t *testing.T, z Zip, entries ...*ZipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := z.OpenArchiveWriter(&buf)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.PutEntry(e))
		if !e.IsDir() {
			_, err = w.Write(zipTestData)
			require.NoError(t, err)
		}
		require.NoError(t, w.CloseEntry())
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestZipMethods(t *testing.T) {
	for _, tc := range []struct {
		name   string
		method ZipMethod
		stdlib bool // archive/zip can read it
	}{
		{name: "store", method: ZipStore, stdlib: true},
		{name: "deflate", method: ZipDeflate, stdlib: true},
		{name: "bzip2", method: ZipBZIP2},
		{name: "zstd", method: ZipZSTD},
		{name: "xz", method: ZipXZ},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := NewZipEntry("file.txt", int64(len(zipTestData)))
			e.Method = tc.method
			out := writeZip(t, Zip{}, NewZipEntry("dir/", 0), e)

			r, err := Zip{}.OpenArchiveReader(bytes.NewReader(out))
			require.NoError(t, err)
			dir, err := r.Next()
			require.NoError(t, err)
			assert.True(t, dir.IsDir())
			assert.Equal(t, ZipStore, dir.(*ZipEntry).Method)

			got, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, "file.txt", got.Name())
			assert.Equal(t, tc.method, got.(*ZipEntry).Method)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, zipTestData, data)
			_, err = r.Next()
			assert.ErrorIs(t, err, io.EOF)

			if !tc.stdlib {
				return
			}
			zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
			require.NoError(t, err)
			require.Len(t, zr.File, 2)
			assert.Equal(t, "dir/", zr.File[0].Name)
			assert.True(t, zr.File[0].FileInfo().IsDir())
			rc, err := zr.File[1].Open()
			require.NoError(t, err)
			data, err = io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, zipTestData, data)
			assert.NoError(t, rc.Close())
		})
	}
}

func TestZipReadsStdlibArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("dir/")
	require.NoError(t, err)
	f, err := zw.Create("dir/file.txt")
	require.NoError(t, err)
	_, err = f.Write(zipTestData)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r, err := Zip{}.OpenArchiveReader(&buf)
	require.NoError(t, err)
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "dir/", e.Name())

	e, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "dir/file.txt", e.Name())
	assert.Equal(t, SizeUnknown, e.Size())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, zipTestData, data)

	// the data descriptor fills in the sizes
	ze := e.(*ZipEntry)
	assert.EqualValues(t, len(zipTestData), ze.Size())
	assert.Positive(t, ze.CompressedSize)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestZipDescriptorWithoutSignature(t *testing.T) {
	out := writeZip(t, Zip{}, NewZipEntry("a.txt", int64(len(zipTestData))), NewZipEntry("b.txt", int64(len(zipTestData))))
	out = bytes.ReplaceAll(out, []byte("PK\x07\x08"), nil)

	r, err := Zip{}.OpenArchiveReader(bytes.NewReader(out))
	require.NoError(t, err)
	for _, name := range []string{"a.txt", "b.txt"} {
		e, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, name, e.Name())
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, zipTestData, data)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestZipChecksumMismatch(t *testing.T) {
	t.Run("stored", func(t *testing.T) {
		e := NewZipEntry("a.txt", int64(len(zipTestData)))
		e.Method = ZipStore
		out := writeZip(t, Zip{}, e)
		i := bytes.Index(out, []byte("quick"))
		require.Positive(t, i)
		out[i] = 'Q'

		r, err := Zip{}.OpenArchiveReader(bytes.NewReader(out))
		require.NoError(t, err)
		_, err = r.Next()
		require.NoError(t, err)
		_, err = io.ReadAll(r)
		assert.ErrorIs(t, err, ErrFormat)
		assert.ErrorIs(t, err, checksum.ErrChecksumMismatch)
	})

	t.Run("descriptor", func(t *testing.T) {
		out := writeZip(t, Zip{}, NewZipEntry("a.txt", int64(len(zipTestData))))
		i := bytes.Index(out, []byte("PK\x07\x08"))
		require.Positive(t, i)
		out[i+4] ^= 0xff // first byte of the CRC

		r, err := Zip{}.OpenArchiveReader(bytes.NewReader(out))
		require.NoError(t, err)
		_, err = r.Next()
		require.NoError(t, err)
		_, err = io.ReadAll(r)
		assert.ErrorIs(t, err, ErrFormat)
		assert.ErrorIs(t, err, checksum.ErrChecksumMismatch)
	})
}

func TestZipNameEncoding(t *testing.T) {
	const name = "Ω‖.txt" // Ω is in code page 437, ‖ is not

	for i, tc := range []struct {
		z           Zip
		wantEFS     bool
		wantUnicode bool
		readAs      string
	}{
		{z: Zip{}, wantEFS: true, readAs: name},
		{z: Zip{EntryEncoding: "Cp437"}, readAs: "Ω%U2016.txt"},
		{z: Zip{EntryEncoding: "Cp437", UnicodeExtra: UnicodeExtraNotEncodable}, wantUnicode: true, readAs: name},
		{z: Zip{EntryEncoding: "Cp437", UnicodeExtra: UnicodeExtraAlways}, wantUnicode: true, readAs: name},
		{z: Zip{EntryEncoding: "Cp437", FallbackToUTF8: true}, wantEFS: true, readAs: name},
		{z: Zip{UnicodeExtra: UnicodeExtraAlways}, wantEFS: true, readAs: name},
	} {
		out := writeZip(t, tc.z, NewZipEntry(name, int64(len(zipTestData))))

		r, err := Zip{EntryEncoding: tc.z.EntryEncoding}.OpenArchiveReader(bytes.NewReader(out))
		require.NoError(t, err)
		e, err := r.Next()
		require.NoError(t, err, "case %d", i)
		ze := e.(*ZipEntry)
		assert.Equal(t, tc.readAs, ze.Name(), "case %d", i)
		assert.Equal(t, tc.wantEFS, ze.Flags&zipFlagEFS != 0, "case %d: EFS flag", i)

		var hasUnicode bool
		forEachExtra(ze.Extra, func(id uint16, _ []byte) {
			hasUnicode = hasUnicode || id == zipExtraUnicodePath
		})
		assert.Equal(t, tc.wantUnicode, hasUnicode, "case %d: unicode extra", i)
	}
}

func TestZipUnicodeExtraOnlyWhenNeeded(t *testing.T) {
	out := writeZip(t, Zip{EntryEncoding: "Cp437", UnicodeExtra: UnicodeExtraNotEncodable}, NewZipEntry("plain.txt", int64(len(zipTestData))))
	r, err := Zip{EntryEncoding: "Cp437"}.OpenArchiveReader(bytes.NewReader(out))
	require.NoError(t, err)
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "plain.txt", e.Name())
	assert.Empty(t, e.(*ZipEntry).Extra)
}

func TestZipUserExtraFields(t *testing.T) {
	e := NewZipEntry("a.txt", int64(len(zipTestData)))
	e.Extra = appendExtra(nil, 0x5455, []byte{1, 0, 0, 0, 0})
	e.Extra = appendExtra(e.Extra, zipExtraZip64, make([]byte, 16))
	out := writeZip(t, Zip{}, e)

	r, err := Zip{}.OpenArchiveReader(bytes.NewReader(out))
	require.NoError(t, err)
	got, err := r.Next()
	require.NoError(t, err)
	var ids []uint16
	forEachExtra(got.(*ZipEntry).Extra, func(id uint16, _ []byte) { ids = append(ids, id) })
	assert.Equal(t, []uint16{0x5455}, ids)
}

func TestZipModTime(t *testing.T) {
	e := NewZipEntry("a.txt", int64(len(zipTestData)))
	e.SetModTime(time.Date(2021, 3, 4, 5, 6, 8, 0, time.UTC))
	zero := NewZipEntry("b.txt", int64(len(zipTestData)))
	zero.SetModTime(time.Time{})
	out := writeZip(t, Zip{}, e, zero)

	r, err := Zip{}.OpenArchiveReader(bytes.NewReader(out))
	require.NoError(t, err)
	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 8, 0, time.UTC), got.ModTime())
	got, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), got.ModTime())
}

func TestZipUnsupportedMethod(t *testing.T) {
	w, err := Zip{}.OpenArchiveWriter(io.Discard)
	require.NoError(t, err)
	e := NewZipEntry("a", 0)
	e.Method = 99
	assert.ErrorIs(t, w.PutEntry(e), ErrNotSupported)
}

func TestZipSizeMismatch(t *testing.T) {
	for _, m := range []ZipMethod{ZipStore, ZipDeflate} {
		w, err := Zip{}.OpenArchiveWriter(io.Discard)
		require.NoError(t, err)
		e := NewZipEntry("a", 10)
		e.Method = m
		require.NoError(t, w.PutEntry(e))
		_, err = w.Write([]byte("short"))
		require.NoError(t, err)
		assert.ErrorIs(t, w.CloseEntry(), ErrSizeMismatch, "method %d", m)
	}
}

func TestZipUnknownSize(t *testing.T) {
	out := writeZip(t, Zip{}, NewZipEntry("a.txt", SizeUnknown))
	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.EqualValues(t, len(zipTestData), zr.File[0].UncompressedSize64)
}

func TestZipBadSignature(t *testing.T) {
	r, err := Zip{}.OpenArchiveReader(bytes.NewReader([]byte("PK\x01\x01garbage")))
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrFormat)
}

func TestZipEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	w, err := Zip{}.OpenArchiveWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Len(t, buf.Bytes(), 22)
	assert.True(t, Zip{}.Match(buf.Bytes()))

	r, err := Zip{}.OpenArchiveReader(&buf)
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
