//go:build linux || darwin

package platform

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// DataSegments walks SEEK_DATA/SEEK_HOLE to map out the sparse layout of
// f. Returns a single data segment covering the whole file if the
// filesystem doesn't support sparse detection.
//
//nolint:revive // cognitive-complexity: SEEK_DATA/SEEK_HOLE state machine with error recovery
func DataSegments(f *os.File, fileSize int64) ([]Segment, error) {
	if fileSize == 0 {
		return nil, nil
	}

	rawFd := int(f.Fd()) //nolint:gosec // G115: fd conversion is safe for file descriptors
	var segments []Segment
	offset := int64(0)

	for offset < fileSize {
		dataStart, err := unix.Seek(rawFd, offset, unix.SEEK_DATA)
		if err != nil {
			if errors.Is(err, syscall.ENXIO) {
				// Rest of file is a hole.
				segments = append(segments, Segment{Offset: offset, Length: fileSize - offset})
				break
			}
			if errors.Is(err, syscall.EINVAL) {
				return wholeFile(fileSize), nil
			}
			return nil, err
		}
		if dataStart >= fileSize {
			segments = append(segments, Segment{Offset: offset, Length: fileSize - offset})
			break
		}

		if dataStart > offset {
			segments = append(segments, Segment{Offset: offset, Length: dataStart - offset})
		}

		holeStart, err := unix.Seek(rawFd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			switch {
			case errors.Is(err, syscall.ENXIO):
				holeStart = fileSize
			case errors.Is(err, syscall.EINVAL):
				return wholeFile(fileSize), nil
			default:
				return nil, err
			}
		}
		holeStart = min(holeStart, fileSize)

		segments = append(segments, Segment{Offset: dataStart, Length: holeStart - dataStart, IsData: true})
		offset = holeStart
	}

	if len(segments) == 0 {
		return wholeFile(fileSize), nil
	}
	return segments, nil
}
