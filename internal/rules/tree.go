package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Entry is one filesystem entry below a walked root.
type Entry struct {
	// Path is relative to the root, slash separated.
	Path string
	Mode fs.FileMode
	Size int64
}

// IsDir reports whether the entry is a real directory. Symbolic links are
// never directories, whatever they point to.
func (e Entry) IsDir() bool {
	return e.Mode.IsDir()
}

// IsSymlink reports whether the entry is a symbolic link.
func (e Entry) IsSymlink() bool {
	return e.Mode&os.ModeSymlink != 0
}

// Kind names the entry type for logs and history records.
func (e Entry) Kind() string {
	switch {
	case e.IsSymlink():
		return "symlink"
	case e.IsDir():
		return "directory"
	default:
		return "file"
	}
}

// Walk enumerates every entry below root once, in lexical order.
// Symbolic links are reported but not followed. The root itself is not
// part of the result.
func Walk(fsys afero.Fs, root string) ([]Entry, error) {
	var entries []Entry
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path: filepath.ToSlash(rel),
			Mode: info.Mode(),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return entries, nil
}
