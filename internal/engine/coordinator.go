package engine

import (
	"context"
	"path"
	"sync"

	"github.com/bamsammich/shuttle/internal/stats"
)

// dispatch feeds units to a fixed pool of workers. Directories never enter
// the pool: in pre-order they are handled here before any child is handed
// out, in post-order only after every in-flight unit has finished. The
// function returns once all dispatched units have an outcome.
func (r *runner) dispatch(ctx context.Context, units <-chan Unit, order Order) {
	jobs := make(chan Unit)
	var workers, inflight sync.WaitGroup

	for id := 1; id <= r.cfg.Workers; id++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for u := range jobs {
				r.process(ctx, id, u)
				inflight.Done()
			}
		}()
	}

	for u := range units {
		// Cancellation is checked before each dispatch; the walker is
		// drained so it can exit.
		if r.stopped.Load() || ctx.Err() != nil {
			continue
		}
		r.stats.Record(stats.Delta{UnitsTotal: 1, BytesTotal: u.Size})

		if order == PreOrder && r.underFailedDir(u) {
			o := newOutcome(u, r.cfg.DryRun)
			o.skip("parent not created")
			r.finish(o, 0)
			continue
		}

		if u.Kind == Dir {
			if order == PostOrder {
				inflight.Wait()
			}
			r.process(ctx, 0, u)
			continue
		}

		inflight.Add(1)
		select {
		case jobs <- u:
		case <-ctx.Done():
			inflight.Done()
		}
	}

	close(jobs)
	workers.Wait()
}

// process takes one unit end to end on the calling goroutine.
func (r *runner) process(ctx context.Context, workerID int, u Unit) {
	var o Outcome
	switch {
	case r.cfg.Mode == ModeRemove:
		o = r.removeUnit(ctx, u)
	case u.Kind == Dir:
		o = r.makeDir(u)
		if o.Status != StatusDone {
			r.failedDirs[u.RelPath] = true
		}
	case u.Kind == Symlink:
		o = r.copySymlink(ctx, u)
	default:
		o = r.copyFile(ctx, workerID, u)
	}
	r.finish(o, workerID)
}

// underFailedDir reports whether an ancestor directory of u could not be
// created. Dispatcher goroutine only.
func (r *runner) underFailedDir(u Unit) bool {
	if len(r.failedDirs) == 0 {
		return false
	}
	for p := path.Dir(u.RelPath); p != "." && p != "/"; p = path.Dir(p) {
		if r.failedDirs[p] {
			return true
		}
	}
	return false
}
