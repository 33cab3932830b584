package platform

import (
	"errors"
	"io"
	"sync"
	"syscall"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies data using positional reads and writes with a pooled
// buffer. A short source ends the copy early; the caller compares
// BytesWritten to the requested length.
func copyReadWrite(params ChunkParams) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
	defer bufPool.Put(bufp)
	buf := *bufp

	offset := params.Offset
	remaining := params.Length

	var totalWritten int64
	for remaining > 0 {
		toRead := min(remaining, bufferSize)

		n, err := params.Src.ReadAt(buf[:toRead], offset)
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				break
			}
			return CopyResult{BytesWritten: totalWritten, Method: ReadWrite}, err
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return CopyResult{BytesWritten: totalWritten, Method: ReadWrite}, err
		}

		if params.Tee != nil {
			if _, err := params.Tee.Write(buf[:n]); err != nil {
				return CopyResult{BytesWritten: totalWritten, Method: ReadWrite}, err
			}
		}

		if _, err := params.Dst.WriteAt(buf[:n], offset); err != nil {
			return CopyResult{BytesWritten: totalWritten, Method: ReadWrite}, err
		}

		offset += int64(n)
		remaining -= int64(n)
		totalWritten += int64(n)
	}

	return CopyResult{BytesWritten: totalWritten, Method: ReadWrite}, nil
}

// CopyReadWrite is the exported version for use by other packages during testing.
func CopyReadWrite(params ChunkParams) (CopyResult, error) {
	return copyReadWrite(params)
}

// isFallbackErr returns true if err should trigger a fallback to the next copy strategy.
func isFallbackErr(err error) bool {
	for _, target := range []error{syscall.ENOSYS, syscall.EXDEV, syscall.EINVAL, syscall.ENOTSUP, syscall.EOPNOTSUPP} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsCloneUnsupported reports whether a Clone error means the filesystem
// (rather than this particular file) cannot clone. Callers fall back to a
// byte copy and stop trying clones on that device.
func IsCloneUnsupported(err error) bool {
	if errors.Is(err, ErrCloneUnsupported) || isFallbackErr(err) {
		return true
	}
	for _, target := range []error{syscall.ENOTTY, syscall.EBADF, syscall.EPERM} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
