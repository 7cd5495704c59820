package watcher

// FileLockProber probes a file by trying to open it for exclusive read/write access.
// The probe is point-in-time: a file reported free may be locked again a moment later.
type FileLockProber struct{}

// NewFileLockProber returns the platform lock prober
func NewFileLockProber() *FileLockProber {
	return &FileLockProber{}
}

// IsLocked reports true on any failure to obtain exclusive access, including a missing file
func (p *FileLockProber) IsLocked(path string) bool {
	return isFileLocked(path)
}
