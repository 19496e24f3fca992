package arcstream

import (
	"path/filepath"

	"github.com/mholt/arcstream/internal/fsutil"
)

// ExtractPathFunc maps an entry name to the path it is extracted to below
// destination.
type ExtractPathFunc func(entryName, destination string) (string, error)

// DefaultExtractPathFunc is used by Extract. It fails fast on entries
// that would be written outside of the destination ("zip slip").
var DefaultExtractPathFunc ExtractPathFunc = zipSlipExtractPath

func zipSlipExtractPath(entryName, destination string) (string, error) {
	// to avoid zip slip (writing outside of the destination), we resolve
	// the target path, and make sure it's nested in the intended
	// destination, or bail otherwise.
	destpath := filepath.Join(destination, filepath.FromSlash(entryName))
	if !fsutil.Within(destination, destpath) {
		return "", &IllegalPathError{AbsolutePath: destpath, Filename: entryName}
	}
	return destpath, nil
}

// linkWithin reports whether the symbolic link at linkPath pointing to
// target resolves to a path below destination.
func linkWithin(destination, linkPath, target string) bool {
	if filepath.IsAbs(target) {
		return fsutil.Within(destination, target)
	}
	return fsutil.Within(destination, filepath.Join(filepath.Dir(linkPath), target))
}
