package arcstream

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatsRegistered(t *testing.T) {
	assert.Equal(t, []string{"ar", "cpio", "dump", "jar", "rar", "tar", "zip"}, Formats())
}

func TestLookupIsCaseSensitive(t *testing.T) {
	_, err := Factory{}.Lookup("ZIP")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = CreateArchiveReader("Tar", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = CreateArchiveWriter("7z", io.Discard)
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = CreateEntry("nope", "a", 0)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFactoryUnsupportedOperations(t *testing.T) {
	_, err := CreateArchiveWriter("dump", io.Discard)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = CreateArchiveReader("dump", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = CreateArchiveWriter("rar", io.Discard)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = CreateEntry("rar", "a", 0)
	assert.ErrorIs(t, err, ErrNotSupported)

	e, err := CreateEntry("dump", "./a/b", 3)
	require.NoError(t, err)
	assert.Equal(t, "a/b", e.Name())
	assert.IsType(t, &DumpEntry{}, e)
}

func TestCreateEntryTypes(t *testing.T) {
	for _, tc := range []struct {
		format string
		expect Entry
	}{
		{format: "ar", expect: &ArEntry{}},
		{format: "cpio", expect: &CpioEntry{}},
		{format: "tar", expect: &TarEntry{}},
		{format: "zip", expect: &ZipEntry{}},
		{format: "jar", expect: &JarEntry{}},
	} {
		e, err := CreateEntry(tc.format, "dir/", 0)
		require.NoError(t, err)
		assert.IsType(t, tc.expect, e, tc.format)
		assert.True(t, e.IsDir(), tc.format)
		assert.Equal(t, TypeDir, e.Type(), tc.format)

		e, err = CreateEntry(tc.format, "file", SizeUnknown)
		require.NoError(t, err)
		assert.Equal(t, SizeUnknown, e.Size(), tc.format)
		assert.Equal(t, TypeFile, e.Type(), tc.format)
	}
}

func TestFactoryAppliesOptions(t *testing.T) {
	var logs bytes.Buffer
	f := Factory{
		EntryEncoding: "Cp437",
		Logger:        slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	format, err := f.Lookup("zip")
	require.NoError(t, err)
	z := format.(Zip)
	assert.Equal(t, "Cp437", z.EntryEncoding)
	assert.NotNil(t, z.Logger)

	format, err = f.Lookup("jar")
	require.NoError(t, err)
	assert.Equal(t, "Cp437", format.(Jar).EntryEncoding)

	// the registered format is left alone
	assert.Empty(t, formats["zip"].(Zip).EntryEncoding)

	// the logger receives driver debug output
	e := NewZipEntry("a", 0)
	e.Extra = appendExtra(nil, 0x4242, []byte{1})
	var buf bytes.Buffer
	w, err := f.CreateArchiveWriter("zip", &buf)
	require.NoError(t, err)
	require.NoError(t, w.PutEntry(e))
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Close())
	r, err := f.CreateArchiveReader("zip", &buf)
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "ignoring zip extra field")
}

func TestIdentify(t *testing.T) {
	for _, format := range []string{"ar", "cpio", "tar", "zip"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := CreateArchiveWriter(format, &buf)
			require.NoError(t, err)
			e, err := CreateEntry(format, "hello.txt", 5)
			require.NoError(t, err)
			require.NoError(t, w.PutEntry(e))
			_, err = w.Write([]byte("hello"))
			require.NoError(t, err)
			require.NoError(t, w.CloseEntry())
			require.NoError(t, w.Close())
			size := buf.Len()

			got, rest, err := Identify(&buf)
			require.NoError(t, err)
			assert.Equal(t, format, got.Name())

			// the returned stream still holds every byte
			all, err := io.ReadAll(rest)
			require.NoError(t, err)
			assert.Len(t, all, size)
		})
	}

	// jars identify as zip
	var buf bytes.Buffer
	w, err := CreateArchiveWriter("jar", &buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	got, _, err := Identify(&buf)
	require.NoError(t, err)
	assert.Equal(t, "zip", got.Name())
}

func TestIdentifyNoMatch(t *testing.T) {
	for _, input := range []string{"", "hi", "definitely not an archive, just a few bytes of text"} {
		_, rest, err := Identify(bytes.NewReader([]byte(input)))
		assert.ErrorIs(t, err, ErrNoMatch)
		data, err := io.ReadAll(rest)
		require.NoError(t, err)
		assert.Equal(t, input, string(data))
	}
}

func TestIdentifyRar(t *testing.T) {
	for _, sig := range []string{"Rar!\x1a\x07\x00", "Rar!\x1a\x07\x01\x00"} {
		got, _, err := Identify(bytes.NewReader([]byte(sig + "more bytes")))
		require.NoError(t, err)
		assert.Equal(t, "rar", got.Name())
	}
}

func TestWriterStateErrors(t *testing.T) {
	withEntry := func(w ArchiveWriter) error { return w.PutEntry(NewTarEntry("a", 1)) }
	for _, tc := range []struct {
		name     string
		before   func(w ArchiveWriter) error
		misuse   func(w ArchiveWriter) error
		finished bool
	}{
		{
			name:   "write before PutEntry",
			misuse: func(w ArchiveWriter) error { _, err := w.Write([]byte("x")); return err },
		},
		{
			name:   "CloseEntry before PutEntry",
			misuse: func(w ArchiveWriter) error { return w.CloseEntry() },
		},
		{
			name:   "nil entry",
			misuse: func(w ArchiveWriter) error { return w.PutEntry(nil) },
		},
		{
			name:   "nested PutEntry",
			before: withEntry,
			misuse: func(w ArchiveWriter) error { return w.PutEntry(NewTarEntry("b", 1)) },
		},
		{
			name:   "Finish with open entry",
			before: withEntry,
			misuse: func(w ArchiveWriter) error { return w.Finish() },
		},
		{
			name:   "section out of range",
			before: withEntry,
			misuse: func(w ArchiveWriter) error { _, err := w.WriteSection([]byte("x"), 1, 1); return err },
		},
		{
			name:     "PutEntry after Finish",
			before:   func(w ArchiveWriter) error { return w.Finish() },
			misuse:   func(w ArchiveWriter) error { return w.PutEntry(NewTarEntry("c", 0)) },
			finished: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w, err := CreateArchiveWriter("tar", io.Discard)
			require.NoError(t, err)
			if tc.before != nil {
				require.NoError(t, tc.before(w))
			}
			assert.ErrorIs(t, tc.misuse(w), ErrInvalidState)

			// the stream stays failed
			assert.ErrorIs(t, w.PutEntry(NewTarEntry("d", 0)), ErrInvalidState)
			assert.ErrorIs(t, w.Finish(), ErrInvalidState)
			if tc.finished {
				assert.NoError(t, w.Close(), "the trailer was written before the failure")
			} else {
				err := w.Close()
				assert.ErrorIs(t, err, ErrInvalidState)
				assert.ErrorContains(t, err, "tar archive is incomplete")
			}
			assert.NoError(t, w.Close())
			assert.ErrorIs(t, w.PutEntry(NewTarEntry("e", 0)), ErrClosed)
		})
	}
}

func TestWriterLifecycle(t *testing.T) {
	w, err := CreateArchiveWriter("tar", io.Discard)
	require.NoError(t, err)
	require.NoError(t, w.PutEntry(NewTarEntry("a", 1)))
	require.NoError(t, w.WriteByte('x'))
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Finish())
	require.NoError(t, w.Finish(), "Finish is idempotent")
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close is idempotent")
	assert.ErrorIs(t, w.PutEntry(NewTarEntry("b", 0)), ErrClosed)
}

func TestReaderStateErrors(t *testing.T) {
	r, err := CreateArchiveReader("tar", bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF, "Next stays at EOF")
	assert.Zero(t, r.Available())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrClosed)

	r, err = CreateArchiveReader("tar", bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrInvalidState, "read before Next")
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrInvalidState, "the stream stays failed")
	assert.NoError(t, r.Close())
}

type closeRecorder struct {
	io.Writer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestWriterClosesSink(t *testing.T) {
	sink := &closeRecorder{Writer: io.Discard}
	w, err := CreateArchiveWriter("zip", sink)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, sink.closed)
}

func TestReaderSkipAndAvailable(t *testing.T) {
	var buf bytes.Buffer
	w, err := CreateArchiveWriter("cpio", &buf)
	require.NoError(t, err)
	require.NoError(t, w.PutEntry(NewCpioEntry("a", 10)))
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Close())

	r, err := CreateArchiveReader("cpio", &buf)
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, 10, r.Available())
	n, err := r.Skip(4)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, 6, r.Available())
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(rest))
	n, err = r.Skip(4)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompressedArchive(t *testing.T) {
	ca, err := Factory{}.Compressed("tar", "gz")
	require.NoError(t, err)
	assert.Equal(t, "tar.gz", ca.Name())

	var buf bytes.Buffer
	sink := &closeRecorder{Writer: &buf}
	w, err := ca.OpenArchiveWriter(sink)
	require.NoError(t, err)
	require.NoError(t, w.PutEntry(NewTarEntry("a.txt", 5)))
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, sink.closed)
	assert.True(t, ca.Match(buf.Bytes()))

	comp, rest, err := DetectCompressor(&buf)
	require.NoError(t, err)
	assert.Equal(t, "gz", comp.Name())

	r, err := CompressedArchive{Archive: Tar{}, Compression: comp}.OpenArchiveReader(rest)
	require.NoError(t, err)
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a.txt", e.Name())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, r.Close())

	_, err = Factory{}.Compressed("dump", "gz")
	require.NoError(t, err)
	_, err = CompressedArchive{Archive: Dump{}, Compression: Gz{}}.OpenArchiveWriter(io.Discard)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = Factory{}.Compressed("tar", "nope")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
