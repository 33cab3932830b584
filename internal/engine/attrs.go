package engine

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/bamsammich/shuttle/internal/platform"
)

const permBits = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// applyAttrs copies ownership, permission bits and timestamps from u to its
// destination. It runs only after the data is committed, so a crash in
// between leaves correct content with stale metadata.
func applyAttrs(u Unit) error {
	// Ownership first: chown clears setuid/setgid. May fail without CAP_CHOWN.
	_ = platform.Lchown(u.DstPath, u.UID, u.GID)

	if u.Kind != Symlink {
		if err := os.Chmod(u.DstPath, u.Mode&permBits); err != nil {
			return fmt.Errorf("chmod %s: %w", u.DstPath, err)
		}
	}
	if err := platform.SetTimes(u.DstPath, u.AccTime, u.ModTime); err != nil {
		return err
	}
	return nil
}

// applyDirAttrs runs the deferred directory attribute pass, deepest first,
// so writing children never disturbs a parent's restored mtime.
func (r *runner) applyDirAttrs() {
	sort.SliceStable(r.dirAttrs, func(i, j int) bool {
		return r.dirAttrs[i].unit.depth() > r.dirAttrs[j].unit.depth()
	})
	for _, d := range r.dirAttrs {
		var err error
		if d.full {
			err = applyAttrs(d.unit)
		} else {
			err = os.Chmod(d.unit.DstPath, d.unit.Mode.Perm())
		}
		if err != nil {
			r.log.Warn("directory attributes not applied", "path", d.unit.DstPath, "error", err)
		}
	}
}
