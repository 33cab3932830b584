//go:build linux || darwin

package platform

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// SetTimes sets atime and mtime on path without following a final symlink.
func SetTimes(path string, atime, mtime time.Time) error {
	times := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &os.PathError{Op: "utimensat", Path: path, Err: err}
	}
	return nil
}

// Lchown changes ownership without following symlinks.
func Lchown(path string, uid, gid uint32) error {
	return unix.Lchown(path, int(uid), int(gid))
}
