package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"
)

// removeUnit deletes one entry. Directories arrive after their children.
func (r *runner) removeUnit(ctx context.Context, u Unit) Outcome {
	o := newOutcome(u, r.cfg.DryRun)
	if u.Err != nil {
		if r.cfg.Force && errors.Is(u.Err, fs.ErrNotExist) {
			o.skip("missing")
			return o
		}
		o.fail(u.SrcPath, u.Err)
		return o
	}

	if u.Kind == Dir && !r.cfg.Recursive {
		empty, err := dirEmpty(u.SrcPath)
		switch {
		case err != nil:
			o.fail(u.SrcPath, err)
			return o
		case !empty:
			o.fail(u.SrcPath, unitErr(DirectoryNotEmpty, u.SrcPath, errors.New("use -r to remove directories with contents")))
			return o
		case !r.cfg.RemoveEmptyDirs:
			o.fail(u.SrcPath, unitErr(IsDirectory, u.SrcPath, errors.New("use -d or -r to remove directories")))
			return o
		}
	}

	if r.cfg.Interactive && r.cfg.Confirmer != nil && !r.cfg.DryRun {
		d, err := r.cfg.Confirmer.Confirm(ctx, Conflict{Path: u.SrcPath, Reason: "remove", SrcSize: u.Size, Kind: u.Kind})
		switch {
		case err != nil:
			o.fail(u.SrcPath, fmt.Errorf("confirm %s: %w", u.SrcPath, err))
			return o
		case d == Abort:
			r.abort()
			o.skip("aborted")
			return o
		case d == Skip:
			o.skip("declined")
			return o
		}
	}

	if r.cfg.DryRun {
		o.Status = StatusDone
		return o
	}

	if err := os.Remove(u.SrcPath); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist) && r.cfg.Force:
			o.skip("missing")
		case u.Kind == Dir && isNotEmpty(err):
			// Excluded, declined or failed children are still inside.
			o.skip("not empty")
		default:
			o.fail(u.SrcPath, err)
		}
		return o
	}

	o.Bytes = u.Size
	o.Status = StatusDone
	return o
}

func dirEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
