package arcstream

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mholt/arcstream/internal/fsutil"
)

// FileCompressor can compress and decompress single files.
type FileCompressor struct {
	Compression

	// Whether to overwrite existing files when creating files.
	OverwriteExisting bool
}

// CompressFile reads the source file and compresses it to destination.
func (fc FileCompressor) CompressFile(source, destination string) error {
	if fc.Compression == nil {
		return fmt.Errorf("no compressor specified")
	}
	if !fc.OverwriteExisting && fsutil.FileExists(destination) {
		return fmt.Errorf("file exists: %s", destination)
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer out.Close()

	w, err := fc.OpenWriter(out)
	if err != nil {
		return fmt.Errorf("%s: opening writer: %w", fc.Name(), err)
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("%s: compressing %s: %w", fc.Name(), source, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: compressing %s: %w", fc.Name(), source, err)
	}
	return out.Close()
}

// DecompressFile reads the source file and decompresses it to destination.
func (fc FileCompressor) DecompressFile(source, destination string) error {
	if fc.Compression == nil {
		return fmt.Errorf("no decompressor specified")
	}

	if fsutil.FileExists(destination) {
		if !fc.OverwriteExisting {
			return fmt.Errorf("file exists: %s", destination)
		}
		// Disallow symbolic link targets outside of the destination directory.
		info, err := os.Lstat(destination)
		if err != nil {
			return fmt.Errorf("failed to lstat destination file %s: %w", destination, err)
		} else if fsutil.IsSymlink(info) {
			linkDest, err := os.Readlink(destination)
			if err != nil {
				return fmt.Errorf("failed to read symbolic link %s: %w", destination, err)
			} else if !linkWithin(filepath.Dir(destination), destination, linkDest) {
				return fmt.Errorf("symbolic link %s has a target outside of the destination directory: %s", destination, linkDest)
			}
		}
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	r, err := fc.OpenReader(in)
	if err != nil {
		return fmt.Errorf("%s: opening reader: %w", fc.Name(), err)
	}
	defer r.Close()

	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("%s: decompressing %s: %w", fc.Name(), source, err)
	}
	return out.Close()
}

// CompressFile compresses source to destination with the named
// compression format.
func CompressFile(name, source, destination string) error {
	c, err := LookupCompressor(name)
	if err != nil {
		return err
	}
	return FileCompressor{Compression: c}.CompressFile(source, destination)
}

// DecompressFile decompresses source to destination with the named
// compression format.
func DecompressFile(name, source, destination string) error {
	c, err := LookupCompressor(name)
	if err != nil {
		return err
	}
	return FileCompressor{Compression: c}.DecompressFile(source, destination)
}
