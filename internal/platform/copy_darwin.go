//go:build darwin

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyChunk copies one range with pread/pwrite; macOS has no in-kernel
// range copy.
func CopyChunk(params ChunkParams) (CopyResult, error) {
	return copyReadWrite(params)
}

// Clone replaces dstPath with a clonefile(2) copy of srcPath. clonefile
// refuses an existing target, so the clone lands beside it and is renamed
// over it.
func Clone(srcPath, dstPath string, _ os.FileMode) error {
	tmp := dstPath + ".shuttle-clone"
	_ = os.Remove(tmp)
	if err := unix.Clonefile(srcPath, tmp, unix.CLONE_NOFOLLOW); err != nil {
		return &os.PathError{Op: "clonefile", Path: dstPath, Err: err}
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Preallocate is a no-op on macOS.
func Preallocate(_ *os.File, _ int64) {}
