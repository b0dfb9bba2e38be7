// Package disk measures local disk usage: recursive path sizes and free
// space of the filesystem holding a path.
package disk

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Size returns the size of a file, or the summed size of all regular files
// below a directory. A symlinked path is measured at its target; symlinks
// below a directory are not followed.
func Size(path string) (int64, error) {
	root, err := filepath.EvalSymlinks(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(root, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}

// FreeSpace returns the bytes available to an unprivileged user on the
// filesystem that holds path.
func FreeSpace(path string) (uint64, error) {
	return freeSpace(path)
}
