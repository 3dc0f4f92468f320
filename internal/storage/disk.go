package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// sqliteCompanions are the files SQLite keeps next to a database in WAL mode.
var sqliteCompanions = []string{"-wal", "-shm"}

// DiskUsageBytes sums the sizes of the given files and directory trees, as shown
// on the status page. Empty and ":memory:" paths and paths that do not exist count
// as zero. A database file also counts its WAL companions.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, root := range paths {
		if root == "" || root == ":memory:" {
			continue
		}
		n, isFile, err := treeSize(root)
		if err != nil {
			return 0, err
		}
		total += n
		if !isFile {
			continue
		}
		for _, suffix := range sqliteCompanions {
			if n, _, err := treeSize(root + suffix); err == nil {
				total += n
			}
		}
	}
	return total, nil
}

// treeSize walks root, which may be a plain file. A missing root yields zero.
func treeSize(root string) (size int64, isFile bool, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if path == root {
			isFile = true
		}
		size += info.Size()
		return nil
	})
	return size, isFile, err
}
