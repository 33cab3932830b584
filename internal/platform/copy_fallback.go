//go:build !linux && !darwin

package platform

import "os"

// CopyChunk falls back to read/write on other platforms.
func CopyChunk(params ChunkParams) (CopyResult, error) {
	return copyReadWrite(params)
}

// Clone always reports ErrCloneUnsupported.
func Clone(_, _ string, _ os.FileMode) error {
	return ErrCloneUnsupported
}

// Preallocate is a no-op.
func Preallocate(_ *os.File, _ int64) {}
