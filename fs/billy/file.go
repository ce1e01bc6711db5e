package billy

import (
	"fmt"
	"io/fs"

	"github.com/go-git/go-billy/v5"
)

// File wraps a go-billy File and adds Stat so it satisfies the parent
// fs.File interface.
type File struct {
	billy.File
	fs *FS
}

// Close implements File.Close.
func (f *File) Close() error {
	if err := f.File.Close(); err != nil {
		return fmt.Errorf("billy: close %q: %w", f.Name(), err)
	}
	return nil
}

// Stat implements File.Stat.
func (f *File) Stat() (fs.FileInfo, error) {
	info, err := f.fs.fs.Stat(f.Name())
	if err != nil {
		return nil, fmt.Errorf("billy: stat %q: %w", f.Name(), err)
	}
	return info, nil
}
