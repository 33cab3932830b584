//go:build !linux && !darwin

package platform

import "io/fs"

// StatOf returns only what fs.FileInfo carries portably.
func StatOf(fi fs.FileInfo) Stat {
	return Stat{Atime: fi.ModTime()}
}
