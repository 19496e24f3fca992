package arcstream

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mholt/arcstream/internal/fsutil"
)

// ArchiveFiles walks each of the named files, recursing into
// directories, and writes them to w as entries made by newEntry.
// Regular files and directories are archived; other file types are
// skipped. The file being written to, dest, is skipped if it lies
// inside one of the walked directories.
func ArchiveFiles(ctx context.Context, w ArchiveWriter, newEntry func(name string, size int64) Entry, files []string, dest string) error {
	for _, source := range files {
		if err := archiveFile(ctx, w, newEntry, source, dest); err != nil {
			return err
		}
	}
	return nil
}

type modTimeSetter interface {
	SetModTime(t time.Time)
}

// archiveFile writes the file at source into w. It does so
// recursively for directories.
func archiveFile(ctx context.Context, w ArchiveWriter, newEntry func(string, int64) Entry, source, dest string) error {
	sourceInfo, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("%s: stat: %w", source, err)
	}
	absDest, _ := filepath.Abs(dest)

	return filepath.WalkDir(source, func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error walking to %s: %w", fpath, err)
		}
		if err := ctx.Err(); err != nil {
			return err // honor context cancellation
		}
		if abs, _ := filepath.Abs(fpath); dest != "" && abs == absDest {
			// our new archive is inside the directory being archived; skip it
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("%s: stat: %w", fpath, err)
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		name, err := fsutil.MakeNameInArchive(sourceInfo, source, "", fpath)
		if err != nil {
			return fmt.Errorf("%s: making name: %w", fpath, err)
		}
		size := info.Size()
		if info.IsDir() {
			name += "/"
			size = 0
		}
		e := newEntry(name, size)
		if s, ok := e.(modTimeSetter); ok {
			s.SetModTime(info.ModTime().Truncate(time.Second))
		}
		if err := w.PutEntry(e); err != nil {
			return fmt.Errorf("%s: writing header: %w", fpath, err)
		}
		if !info.IsDir() {
			if err := copyFile(w, fpath); err != nil {
				return fmt.Errorf("%s: writing data: %w", fpath, err)
			}
		}
		return w.CloseEntry()
	})
}

func copyFile(w ArchiveWriter, fpath string) error {
	f, err := os.Open(fpath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}
