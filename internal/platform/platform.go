package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// CopyMethod identifies which syscall/strategy moved the bytes.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota
	CopyFileRange            // Linux copy_file_range(2)
	Sendfile                 // Linux sendfile(2)
	Reflink                  // FICLONE / clonefile(2)
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	case Reflink:
		return "reflink"
	default:
		return "unknown"
	}
}

// CopyResult reports the outcome of a chunk copy.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// ChunkParams describes one contiguous range to copy. The same offset is
// used on both sides.
type ChunkParams struct {
	Src    *os.File
	Dst    *os.File
	Offset int64
	Length int64

	// Tee, when set, receives every byte read from Src. It forces the
	// read/write path since in-kernel copies never surface the data.
	Tee io.Writer
}

// ErrCloneUnsupported is returned by Clone on platforms without a clone
// primitive.
var ErrCloneUnsupported = errors.New("clone not supported")

// Stat carries the metadata fs.FileInfo does not expose portably.
type Stat struct {
	Atime time.Time
	Dev   uint64
	UID   uint32
	GID   uint32
}

// SetMtime stamps mtime on an open file and leaves atime untouched.
func SetMtime(f *os.File, mtime time.Time) error {
	if err := os.Chtimes(f.Name(), time.Time{}, mtime); err != nil {
		return fmt.Errorf("stamp mtime: %w", err)
	}
	return nil
}
