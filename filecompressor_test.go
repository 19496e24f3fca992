package arcstream

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCompressorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.txt")
	contents := []byte("some text worth compressing, some text worth compressing")
	require.NoError(t, os.WriteFile(src, contents, 0o644))

	for _, name := range []string{"gz", "bzip2", "xz", "zstd", "lz4-framed", "lz"} {
		t.Run(name, func(t *testing.T) {
			compressed := filepath.Join(dir, "plain.txt."+name)
			require.NoError(t, CompressFile(name, src, compressed))

			out := filepath.Join(dir, "out-"+name+".txt")
			require.NoError(t, DecompressFile(name, compressed, out))
			got, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, contents, got)
		})
	}
}

func TestFileCompressorOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dst := filepath.Join(dir, "plain.txt.gz")
	require.NoError(t, os.WriteFile(dst, []byte("already here"), 0o644))

	fc := FileCompressor{Compression: Gz{}}
	assert.Error(t, fc.CompressFile(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(got), "existing file is left alone")

	fc.OverwriteExisting = true
	require.NoError(t, fc.CompressFile(src, dst))

	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(out, nil, 0o644))
	assert.Error(t, FileCompressor{Compression: Gz{}}.DecompressFile(dst, out))
	require.NoError(t, fc.DecompressFile(dst, out))
	got, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestFileCompressorRefusesEscapingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	compressed := filepath.Join(dir, "plain.txt.gz")
	require.NoError(t, CompressFile("gz", src, compressed))

	outside := t.TempDir()
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(filepath.Join(outside, "victim.txt"), link))

	fc := FileCompressor{Compression: Gz{}, OverwriteExisting: true}
	assert.Error(t, fc.DecompressFile(compressed, link))
	assert.NoFileExists(t, filepath.Join(outside, "victim.txt"))
}

func TestFileCompressorErrors(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, CompressFile("nope", "a", "b"), ErrUnknownFormat)
	assert.ErrorIs(t, DecompressFile("nope", "a", "b"), ErrUnknownFormat)
	assert.Error(t, FileCompressor{}.CompressFile("a", filepath.Join(dir, "b")))
	assert.Error(t, CompressFile("gz", filepath.Join(dir, "missing"), filepath.Join(dir, "b.gz")))
}
