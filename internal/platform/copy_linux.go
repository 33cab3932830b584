//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyChunk copies one range with the most efficient method available on
// Linux, falling through on unsupported/cross-device errors.
func CopyChunk(params ChunkParams) (CopyResult, error) {
	if params.Tee != nil {
		return copyReadWrite(params)
	}

	result, err := copyFileRange(params)
	if err == nil {
		return result, nil
	}
	if !isFallbackErr(err) || result.BytesWritten > 0 {
		return result, err
	}

	result, err = copySendfile(params)
	if err == nil {
		return result, nil
	}
	if !isFallbackErr(err) || result.BytesWritten > 0 {
		return result, err
	}

	return copyReadWrite(params)
}

//nolint:gosec // G115: fd values are small non-negative integers
func copyFileRange(params ChunkParams) (CopyResult, error) {
	remaining := params.Length
	roff := params.Offset
	woff := params.Offset

	var totalWritten int64
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(params.Src.Fd()), &roff, int(params.Dst.Fd()), &woff, int(remaining), 0)
		if err != nil {
			return CopyResult{BytesWritten: totalWritten, Method: CopyFileRange}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		totalWritten += int64(n)
	}

	return CopyResult{BytesWritten: totalWritten, Method: CopyFileRange}, nil
}

//nolint:gosec // G115: fd values are small non-negative integers
func copySendfile(params ChunkParams) (CopyResult, error) {
	remaining := params.Length
	offset := params.Offset

	// sendfile writes at the destination's file position.
	if _, err := params.Dst.Seek(offset, 0); err != nil {
		return CopyResult{}, err
	}

	var totalWritten int64
	for remaining > 0 {
		n, err := unix.Sendfile(int(params.Dst.Fd()), int(params.Src.Fd()), &offset, int(remaining))
		if err != nil {
			return CopyResult{BytesWritten: totalWritten, Method: Sendfile}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		totalWritten += int64(n)
	}

	return CopyResult{BytesWritten: totalWritten, Method: Sendfile}, nil
}

// Clone replaces the contents of dstPath with a copy-on-write clone of
// srcPath using FICLONE. dstPath is created if missing. An existing
// dstPath is left as it was when the clone is refused.
//
//nolint:gosec // G115: fd values are small non-negative integers
func Clone(srcPath, dstPath string, perm os.FileMode) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE, perm)
	if err != nil {
		return err
	}
	if err := unix.IoctlFileClone(int(dst.Fd()), int(src.Fd())); err != nil {
		dst.Close()
		return &os.PathError{Op: "ficlone", Path: dstPath, Err: err}
	}
	// FICLONE does not shrink a longer destination.
	if err := dst.Truncate(info.Size()); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Preallocate reserves size bytes for f without changing its apparent size,
// so a partial file never looks longer than what was written. Errors are
// ignored as fallocate is not supported on all filesystems.
//
//nolint:gosec // G115: fd values are small non-negative integers
func Preallocate(f *os.File, size int64) {
	//nolint:errcheck // fallocate is advisory
	unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, size)
}
