//go:build darwin

package platform

import (
	"io/fs"
	"syscall"
	"time"
)

// StatOf extracts the platform fields of fi.
func StatOf(fi fs.FileInfo) Stat {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Stat{Atime: fi.ModTime()}
	}
	return Stat{
		Dev:   uint64(st.Dev), //nolint:gosec // G115: dev_t is int32 on darwin, always non-negative
		UID:   st.Uid,
		GID:   st.Gid,
		Atime: time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec),
	}
}
