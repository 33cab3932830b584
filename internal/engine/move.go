package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bamsammich/shuttle/internal/platform"
	"github.com/bamsammich/shuttle/internal/stats"
)

// renameRoots moves whole roots with a single rename where nothing needs to
// be looked at per entry: same device, no exclusions, destination absent.
// Roots that cannot be renamed are returned for the per-unit walk.
func (r *runner) renameRoots(roots []Root) []Root {
	if r.cfg.DryRun || !r.cfg.Exclude.Empty() {
		return roots
	}

	rest := roots[:0:0]
	for _, root := range roots {
		if r.unitCtx.Err() != nil {
			return append(rest, root)
		}
		info, err := os.Lstat(root.Src)
		if err != nil {
			rest = append(rest, root)
			continue
		}
		if _, err := os.Lstat(root.Dst); !errors.Is(err, fs.ErrNotExist) {
			rest = append(rest, root)
			continue
		}
		if platform.StatOf(info).Dev != r.deviceOf(filepath.Dir(root.Dst)) {
			rest = append(rest, root)
			continue
		}
		if err := os.Rename(root.Src, root.Dst); err != nil {
			r.log.Debug("root rename refused, moving per entry", "src", root.Src, "error", err)
			rest = append(rest, root)
			continue
		}

		u := newUnit(root.Dst, rootName(root.Src), root.Dst, info, root.Index)
		u.SrcPath = root.Src
		o := newOutcome(u, false)
		o.Strategy = StrategyRename
		o.Reason = "fresh"
		o.Status = StatusDone
		r.stats.Record(stats.Delta{UnitsTotal: 1, BytesTotal: u.Size})
		r.finish(o, 0)
	}
	return rest
}

// removeMovedDirs deletes source directories emptied by a per-unit move,
// deepest first. Directories still holding excluded or failed entries stay.
func (r *runner) removeMovedDirs() {
	sort.SliceStable(r.movedDirs, func(i, j int) bool {
		return r.movedDirs[i].depth() > r.movedDirs[j].depth()
	})
	for _, u := range r.movedDirs {
		if err := os.Remove(u.SrcPath); err != nil {
			r.log.Debug("source directory kept", "path", u.SrcPath, "error", err)
		}
	}
}
