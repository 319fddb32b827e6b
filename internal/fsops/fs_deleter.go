package fsops

import "github.com/spf13/afero"

// FsDeleter removes entries through an afero filesystem.
type FsDeleter struct {
	Fs afero.Fs
}

func (d FsDeleter) Remove(path string) error {
	return d.Fs.Remove(path)
}
