//go:build windows

package watcher

import (
	"golang.org/x/sys/windows"
)

func isFileLocked(path string) bool {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return true
	}

	// Share mode 0 fails with a sharing violation while any other handle is open.
	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return true
	}
	_ = windows.CloseHandle(handle)
	return false
}
