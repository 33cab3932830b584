//go:build linux

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
		Dev:   st.Dev,
		UID:   st.Uid,
		GID:   st.Gid,
		Atime: time.Unix(st.Atim.Sec, st.Atim.Nsec),
	}
}
