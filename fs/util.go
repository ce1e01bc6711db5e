package fs

import (
	"os"
)

// DirSize returns the total size in bytes of the regular files below root.
func DirSize(fsys Filesystem, root string) (int64, error) {
	var total int64
	err := fsys.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
