//go:build !linux && !darwin

package platform

import (
	"os"
	"time"
)

// SetTimes sets atime and mtime on path.
func SetTimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}

// Lchown is unsupported here and always succeeds.
func Lchown(_ string, _, _ uint32) error { return nil }
