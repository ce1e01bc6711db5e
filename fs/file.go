package fs

import (
	"io"
	"io/fs"
)

// File is an open file handle in a Filesystem. Artifacts are streamed to
// the object store through it, so it must support seeking for retries.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.Seeker
	Name() string
	Stat() (fs.FileInfo, error)
}
