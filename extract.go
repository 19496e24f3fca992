package arcstream

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/mholt/arcstream/internal/fsutil"
)

// Extract writes every entry of r to disk below destination. Entries
// whose names resolve outside destination, and links that point outside
// it, fail with an *IllegalPathError. Device, fifo and socket entries
// are skipped. The context is checked between entries.
func Extract(ctx context.Context, r ArchiveReader, destination string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err // honor context cancellation
		}
		e, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := extractEntry(r, e, destination); err != nil {
			return err
		}
	}
}

// maxLinkTarget bounds symlink targets read from an entry payload.
const maxLinkTarget = 4096

func extractEntry(r ArchiveReader, e Entry, destination string) error {
	target, err := DefaultExtractPathFunc(e.Name(), destination)
	if err != nil {
		return err
	}
	if err := noSymlinkParents(destination, target, e.Name()); err != nil {
		return err
	}

	switch e.Type() {
	case TypeDir:
		return fsutil.Mkdir(target, 0o755)

	case TypeFile, TypeUnknown:
		return fsutil.WriteNewFile(target, r, entryPerm(e))

	case TypeSymlink:
		link, err := linkTarget(r, e)
		if err != nil {
			return err
		}
		if !linkWithin(destination, target, link) {
			return &IllegalPathError{AbsolutePath: target, Filename: e.Name()}
		}
		if !filepath.IsAbs(link) {
			resolved := filepath.Join(filepath.Dir(target), link)
			if err := noSymlinkParents(destination, resolved, e.Name()); err != nil {
				return err
			}
		}
		return fsutil.WriteNewSymbolicLink(target, filepath.Clean(link))

	case TypeHardlink:
		link, err := linkTarget(r, e)
		if err != nil {
			return err
		}
		linkPath, err := DefaultExtractPathFunc(link, destination)
		if err != nil {
			return err
		}
		if err := noSymlinkParents(destination, linkPath, e.Name()); err != nil {
			return err
		}
		return fsutil.WriteNewHardLink(target, linkPath)
	}
	return nil
}

// noSymlinkParents fails when a directory between destination and path
// is a symbolic link, since writing through it could leave destination.
func noSymlinkParents(destination, path, name string) error {
	if link, ok := fsutil.SymlinkInPath(destination, path); ok {
		return &IllegalPathError{AbsolutePath: link, Filename: name}
	}
	return nil
}

// linkTarget returns the link target of e. Tar keeps it in the header;
// the other formats store it as the payload.
func linkTarget(r io.Reader, e Entry) (string, error) {
	if te, ok := e.(*TarEntry); ok {
		return te.Linkname, nil
	}
	b, err := io.ReadAll(io.LimitReader(r, maxLinkTarget))
	if err != nil {
		return "", fmt.Errorf("%s: reading link target: %w", e.Name(), err)
	}
	return filepath.FromSlash(string(b)), nil
}

// entryPerm returns the permission bits recorded for e, or 0644.
func entryPerm(e Entry) fs.FileMode {
	var mode int64
	switch v := e.(type) {
	case *ArEntry:
		mode = v.Mode
	case *CpioEntry:
		mode = v.Mode
	case *TarEntry:
		mode = v.Mode
	case *ZipEntry:
		mode = int64(v.ExternalAttrs >> 16)
	case *JarEntry:
		mode = int64(v.ExternalAttrs >> 16)
	case *RarEntry:
		mode = int64(v.Mode.Perm())
	}
	if perm := fs.FileMode(mode) & fs.ModePerm; perm != 0 {
		return perm
	}
	return 0o644
}
