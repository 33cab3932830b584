package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bamsammich/shuttle/internal/filter"
)

// Order selects when a directory is emitted relative to its children.
type Order int

const (
	PreOrder  Order = iota // directory before children (copy, move)
	PostOrder              // children before directory (remove)
)

// Root is one source root and the destination path it maps to. Dst is
// empty in remove mode.
type Root struct {
	Src   string
	Dst   string
	Index int
}

// Walker produces Units depth-first in lexical order, so two walks over an
// unchanged tree yield the same sequence. Symlinks are emitted, never
// followed.
type Walker struct {
	Rules      *filter.RuleSet
	OnExcluded func(relPath string, isDir bool)
	Order      Order
	Recursive  bool
	Buffer     int
}

// Walk streams units for every root. The channel closes when the walk
// completes or ctx is cancelled.
func (w *Walker) Walk(ctx context.Context, roots []Root) <-chan Unit {
	buf := w.Buffer
	if buf <= 0 {
		buf = 64
	}
	out := make(chan Unit, buf)
	go func() {
		defer close(out)
		for _, r := range roots {
			if !w.walkRoot(ctx, r, out) {
				return
			}
		}
	}()
	return out
}

func (w *Walker) walkRoot(ctx context.Context, r Root, out chan<- Unit) bool {
	rel := rootName(r.Src)
	info, err := os.Lstat(r.Src)
	if err != nil {
		return send(ctx, out, Unit{
			SrcPath: r.Src,
			RelPath: rel,
			DstPath: r.Dst,
			Root:    r.Index,
			Err:     classify(r.Src, err),
		})
	}
	return w.visit(ctx, out, r.Src, rel, r.Dst, info, r.Index)
}

func (w *Walker) visit(ctx context.Context, out chan<- Unit, src, rel, dst string, info fs.FileInfo, root int) bool {
	if w.Rules.Excluded(rel) {
		if w.OnExcluded != nil {
			w.OnExcluded(rel, info.IsDir())
		}
		return true
	}

	u := newUnit(src, rel, dst, info, root)
	if u.Kind != Dir || !w.Recursive {
		return send(ctx, out, u)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		// Unreadable: report the directory itself, skip its subtree.
		u.Err = classify(src, err)
		return send(ctx, out, u)
	}

	if w.Order == PreOrder && !send(ctx, out, u) {
		return false
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return false
		}
		childSrc := filepath.Join(src, e.Name())
		childRel := rel + "/" + e.Name()
		var childDst string
		if dst != "" {
			childDst = filepath.Join(dst, e.Name())
		}

		childInfo, err := e.Info()
		if err != nil {
			if !send(ctx, out, Unit{
				SrcPath: childSrc,
				RelPath: childRel,
				DstPath: childDst,
				Root:    root,
				Err:     classify(childSrc, err),
			}) {
				return false
			}
			continue
		}
		if !w.visit(ctx, out, childSrc, childRel, childDst, childInfo, root) {
			return false
		}
	}

	if w.Order == PostOrder {
		return send(ctx, out, u)
	}
	return true
}

func send(ctx context.Context, out chan<- Unit, u Unit) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// rootName is the RelPath of a root entry: its base name, never empty or ".".
func rootName(src string) string {
	if abs, err := filepath.Abs(src); err == nil {
		src = abs
	}
	name := filepath.Base(src)
	if name == string(filepath.Separator) || name == "." {
		return "root"
	}
	return name
}
