package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/bamsammich/shuttle/internal/filter"
)

// ErrorKind classifies a unit failure.
type ErrorKind int

const (
	IoError ErrorKind = iota
	SourceNotFound
	PermissionDenied
	TargetExists
	ChecksumMismatch
	CrossDeviceError
	DirectoryNotEmpty
	IsDirectory
	Interrupted
	InvalidPattern
)

var kindNames = [...]string{
	IoError:           "IoError",
	SourceNotFound:    "SourceNotFound",
	PermissionDenied:  "PermissionDenied",
	TargetExists:      "TargetExists",
	ChecksumMismatch:  "ChecksumMismatch",
	CrossDeviceError:  "CrossDeviceError",
	DirectoryNotEmpty: "DirectoryNotEmpty",
	IsDirectory:       "IsDirectory",
	Interrupted:       "Interrupted",
	InvalidPattern:    "InvalidPattern",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Sentinels matched by errors.Is against a *UnitError of the same kind.
var (
	ErrIO                = errors.New("i/o error")
	ErrSourceNotFound    = errors.New("source not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTargetExists      = errors.New("target exists")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrCrossDevice       = errors.New("cross-device transfer not allowed")
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	ErrIsDirectory       = errors.New("is a directory")
	ErrInterrupted       = errors.New("interrupted")
)

var sentinels = map[ErrorKind]error{
	IoError:           ErrIO,
	SourceNotFound:    ErrSourceNotFound,
	PermissionDenied:  ErrPermissionDenied,
	TargetExists:      ErrTargetExists,
	ChecksumMismatch:  ErrChecksumMismatch,
	CrossDeviceError:  ErrCrossDevice,
	DirectoryNotEmpty: ErrDirectoryNotEmpty,
	IsDirectory:       ErrIsDirectory,
	Interrupted:       ErrInterrupted,
	InvalidPattern:    filter.ErrInvalidPattern,
}

// UnitError is the error attached to a failed unit.
type UnitError struct {
	Err  error
	Path string
	Kind ErrorKind
}

func (e *UnitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Path, sentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %s: %v", e.Path, sentinels[e.Kind], e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *UnitError) Is(target error) bool {
	return target == sentinels[e.Kind]
}

func unitErr(kind ErrorKind, path string, err error) *UnitError {
	return &UnitError{Kind: kind, Path: path, Err: err}
}

// classify wraps err in a UnitError whose kind is derived from the
// underlying OS error. An existing UnitError is returned unchanged.
func classify(path string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue
	}
	return unitErr(KindOf(err), path, err)
}

// KindOf maps err to an ErrorKind. Errors it cannot place are IoError.
func KindOf(err error) ErrorKind {
	var ue *UnitError
	switch {
	case err == nil:
		return IoError
	case errors.As(err, &ue):
		return ue.Kind
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Interrupted
	case errors.Is(err, filter.ErrInvalidPattern):
		return InvalidPattern
	case errors.Is(err, fs.ErrNotExist):
		return SourceNotFound
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	case errors.Is(err, syscall.ENOTEMPTY):
		// Before ErrExist, which ENOTEMPTY also matches.
		return DirectoryNotEmpty
	case errors.Is(err, fs.ErrExist):
		return TargetExists
	case errors.Is(err, syscall.EXDEV):
		return CrossDeviceError
	case errors.Is(err, syscall.EISDIR):
		return IsDirectory
	default:
		return IoError
	}
}
