//go:build !unix && !windows

package watcher

import "os"

func isFileLocked(path string) bool {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return true
	}
	_ = file.Close()
	return false
}
