package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bamsammich/shuttle/internal/platform"
)

// EntryKind identifies the kind of filesystem entry a Unit describes.
type EntryKind int

const (
	File EntryKind = iota
	Dir
	Symlink
)

func (k EntryKind) String() string {
	switch k {
	case File:
		return "file"
	case Dir:
		return "dir"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Unit is one filesystem entry to copy, move or remove. Each unit is
// consumed exactly once and ends in exactly one Outcome.
type Unit struct {
	ModTime    time.Time
	AccTime    time.Time
	Err        error  // traversal error attached to this entry
	SrcPath    string // absolute or caller-relative source path
	RelPath    string // slash path relative to the operation root, root base name included
	DstPath    string // empty in remove mode
	LinkTarget string // symlinks only
	Size       int64
	Dev        uint64
	Root       int // index into the source list
	Mode       fs.FileMode
	UID        uint32
	GID        uint32
	Kind       EntryKind
}

// newUnit builds a Unit from lstat information.
func newUnit(src, rel, dst string, info fs.FileInfo, root int) Unit {
	st := platform.StatOf(info)
	u := Unit{
		SrcPath: src,
		RelPath: filepath.ToSlash(rel),
		DstPath: dst,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		AccTime: st.Atime,
		UID:     st.UID,
		GID:     st.GID,
		Dev:     st.Dev,
		Root:    root,
	}
	switch {
	case info.IsDir():
		u.Kind = Dir
		u.Size = 0
	case info.Mode()&os.ModeSymlink != 0:
		u.Kind = Symlink
		u.Size = 0
		target, err := os.Readlink(src)
		if err != nil {
			u.Err = classify(src, err)
		}
		u.LinkTarget = target
	default:
		u.Kind = File
	}
	return u
}

// depth returns the number of path elements below the root.
func (u Unit) depth() int {
	n := 0
	for _, c := range u.RelPath {
		if c == '/' {
			n++
		}
	}
	return n
}
