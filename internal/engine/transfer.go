package engine

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/platform"
	"github.com/bamsammich/shuttle/internal/stats"
)

func (r *runner) resumeOpts() resumeOpts {
	return resumeOpts{
		resume: r.cfg.Resume,
		strict: r.cfg.Strict || (r.cfg.Resume && r.cfg.Verify == VerifyStrict),
		append: r.cfg.Append,
	}
}

// makeDir creates the destination directory for u. Runs on the dispatcher.
func (r *runner) makeDir(u Unit) Outcome {
	o := newOutcome(u, r.cfg.DryRun)
	if u.Err != nil {
		o.fail(u.SrcPath, u.Err)
		return o
	}

	info, err := os.Stat(u.DstPath)
	switch {
	case err == nil && info.IsDir():
		o.Reason = "exists"
	case err == nil:
		o.fail(u.DstPath, unitErr(TargetExists, u.DstPath, errors.New("destination exists and is not a directory")))
		return o
	case !errors.Is(err, fs.ErrNotExist):
		o.fail(u.DstPath, err)
		return o
	default:
		o.Reason = "created"
		if !r.cfg.DryRun {
			// Owner rwx until the deferred attribute pass so children can be written.
			if err := os.MkdirAll(u.DstPath, u.Mode.Perm()|0o700); err != nil {
				o.fail(u.DstPath, fmt.Errorf("mkdir %s: %w", u.DstPath, err))
				return o
			}
		}
	}

	if !r.cfg.DryRun {
		if r.cfg.Preserve || u.Mode.Perm()&0o700 != 0o700 {
			r.dirAttrs = append(r.dirAttrs, deferredDir{unit: u, full: r.cfg.Preserve})
		}
		if r.cfg.Mode == ModeMove {
			r.movedDirs = append(r.movedDirs, u)
		}
	}
	o.Status = StatusDone
	return o
}

// resolveConflict decides whether an existing destination may be replaced.
// A nil error with Skip or Abort means the user declined.
func (r *runner) resolveConflict(ctx context.Context, c Conflict) (Decision, error) {
	switch {
	case r.cfg.Yes && !r.cfg.Interactive:
		return Proceed, nil
	case r.cfg.Confirmer != nil && !r.cfg.DryRun:
		d, err := r.cfg.Confirmer.Confirm(ctx, c)
		if err != nil {
			return Skip, fmt.Errorf("confirm %s: %w", c.Path, err)
		}
		return d, nil
	case r.cfg.Force:
		return Proceed, nil
	default:
		return Skip, unitErr(TargetExists, c.Path, fmt.Errorf("%s (use --force or --resume)", c.Reason))
	}
}

// conflictOutcome applies a resolveConflict result to o. It reports
// whether the unit should go on to overwrite the destination.
func (r *runner) conflictOutcome(ctx context.Context, o *Outcome, c Conflict) bool {
	d, err := r.resolveConflict(ctx, c)
	switch {
	case err != nil && r.cfg.DryRun:
		o.skip("conflict: " + c.Reason)
		return false
	case err != nil:
		o.fail(c.Path, err)
		return false
	case d == Abort:
		r.abort()
		o.skip("aborted")
		return false
	case d == Skip:
		o.skip("declined")
		return false
	default:
		return true
	}
}

func (r *runner) copySymlink(ctx context.Context, u Unit) Outcome {
	o := newOutcome(u, r.cfg.DryRun)
	if u.Err != nil {
		o.fail(u.SrcPath, u.Err)
		return o
	}

	replace := false
	if info, err := os.Lstat(u.DstPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if target, err := os.Readlink(u.DstPath); err == nil && target == u.LinkTarget {
				o.skip("identical")
				if r.cfg.Mode == ModeMove && !r.cfg.DryRun {
					if err := os.Remove(u.SrcPath); err != nil {
						o.fail(u.SrcPath, err)
					}
				}
				return o
			}
		}
		if info.IsDir() {
			o.fail(u.DstPath, unitErr(IsDirectory, u.DstPath, errors.New("cannot replace a directory with a symlink")))
			return o
		}
		if !r.conflictOutcome(ctx, &o, Conflict{Path: u.DstPath, Reason: "exists", Kind: Symlink}) {
			return o
		}
		replace = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		o.fail(u.DstPath, err)
		return o
	}

	o.Strategy = StrategyStream
	if r.cfg.Mode == ModeMove && u.Dev == r.deviceOf(filepath.Dir(u.DstPath)) {
		o.Strategy = StrategyRename
	}
	if r.cfg.DryRun {
		o.Status = StatusDone
		return o
	}

	if err := os.MkdirAll(filepath.Dir(u.DstPath), 0o755); err != nil {
		o.fail(u.DstPath, fmt.Errorf("create parent dir for symlink %s: %w", u.DstPath, err))
		return o
	}
	if replace {
		if err := os.Remove(u.DstPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			o.fail(u.DstPath, err)
			return o
		}
	}

	if o.Strategy == StrategyRename {
		if err := os.Rename(u.SrcPath, u.DstPath); err == nil {
			o.Status = StatusDone
			return o
		}
		o.Strategy = StrategyCrossDevice
	}

	if err := os.Symlink(u.LinkTarget, u.DstPath); err != nil {
		o.fail(u.DstPath, fmt.Errorf("symlink %s -> %s: %w", u.DstPath, u.LinkTarget, err))
		return o
	}
	if r.cfg.Preserve {
		if err := applyAttrs(u); err != nil {
			r.log.Debug("symlink attributes not applied", "path", u.DstPath, "error", err)
		}
	}
	if r.cfg.Mode == ModeMove {
		if err := os.Remove(u.SrcPath); err != nil {
			o.fail(u.SrcPath, fmt.Errorf("remove moved symlink: %w", err))
			return o
		}
	}
	o.Status = StatusDone
	return o
}

// copyFile runs one regular file through selection, transfer, verification
// and attribute preservation.
//
//nolint:revive // cognitive-complexity: linear pipeline with early exits
func (r *runner) copyFile(ctx context.Context, workerID int, u Unit) Outcome {
	o := newOutcome(u, r.cfg.DryRun)
	if u.Err != nil {
		o.fail(u.SrcPath, u.Err)
		return o
	}

	var (
		d          destState
		nonRegular bool
	)
	info, err := os.Lstat(u.DstPath)
	switch {
	case err == nil && info.IsDir():
		o.fail(u.DstPath, unitErr(IsDirectory, u.DstPath, errors.New("destination is a directory")))
		return o
	case err == nil:
		d = destState{exists: true, size: info.Size(), modTime: info.ModTime()}
		nonRegular = !info.Mode().IsRegular()
	case !errors.Is(err, fs.ErrNotExist):
		o.fail(u.DstPath, err)
		return o
	}

	var plan Plan
	if nonRegular {
		// Never write through a symlink or device at the destination.
		plan = Plan{Action: ActionConflict, Reason: "exists"}
	} else {
		plan, err = decideResume(u, d, r.resumeOpts(), func(n int64) (bool, hash.Hash, error) {
			return comparePrefix(ctx, r.cfg.Hash, u.SrcPath, u.DstPath, n)
		})
		if err != nil {
			o.fail(u.DstPath, fmt.Errorf("compare prefix: %w", err))
			return o
		}
	}
	plan.Verify = r.cfg.Verify

	switch plan.Action {
	case ActionSkip:
		o.skip(plan.Reason)
		if r.cfg.Mode == ModeMove && !r.cfg.DryRun {
			if err := os.Remove(u.SrcPath); err != nil {
				o.fail(u.SrcPath, fmt.Errorf("remove moved source: %w", err))
			}
		}
		return o
	case ActionConflict:
		c := Conflict{Path: u.DstPath, Reason: plan.Reason, SrcSize: u.Size, DstSize: d.size, Kind: File}
		if !r.conflictOutcome(ctx, &o, c) {
			return o
		}
		plan = Plan{Action: ActionTransfer, Overwrite: true, Reason: "overwrite", Verify: r.cfg.Verify}
	}

	dstDev := r.deviceOf(filepath.Dir(u.DstPath))
	plan.Strategy = selectStrategy(strategyInput{
		mode:      r.cfg.Mode,
		reflink:   r.cfg.Reflink,
		srcDev:    u.Dev,
		dstDev:    dstDev,
		cloneable: r.probe.usable(dstDev),
	})
	if plan.Strategy == StrategyCrossDevice && plan.Verify < VerifyHash {
		plan.Verify = VerifyHash
	}
	o.Strategy = plan.Strategy
	o.Reason = plan.Reason
	r.log.Debug("plan", "path", u.RelPath, "strategy", plan.Strategy.String(), "reason", plan.Reason,
		"offset", plan.ResumeOffset, "verify", plan.Verify.String())

	if r.cfg.DryRun {
		o.Bytes = u.Size - plan.ResumeOffset
		o.Status = StatusDone
		return o
	}

	if nonRegular {
		if err := os.Remove(u.DstPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			o.fail(u.DstPath, err)
			return o
		}
	}
	if err := os.MkdirAll(filepath.Dir(u.DstPath), 0o755); err != nil {
		o.fail(u.DstPath, fmt.Errorf("create parent dir %s: %w", filepath.Dir(u.DstPath), err))
		return o
	}

	r.emit(event.Event{
		Type:     event.UnitStarted,
		Path:     u.RelPath,
		Dst:      u.DstPath,
		Size:     u.Size,
		Offset:   plan.ResumeOffset,
		Strategy: plan.Strategy.String(),
		Reason:   plan.Reason,
		WorkerID: workerID,
	})

	written, digest, err := r.execute(ctx, workerID, u, &plan, dstDev)
	o.Strategy = plan.Strategy
	o.Bytes = written
	if err != nil {
		o.fail(u.DstPath, err)
		return o
	}

	if plan.Strategy != StrategyRename {
		if err := r.verify(ctx, u, plan, digest); err != nil {
			o.fail(u.DstPath, err)
			return o
		}
		if r.cfg.Preserve {
			if err := applyAttrs(u); err != nil {
				o.fail(u.DstPath, err)
				return o
			}
		}
		if r.cfg.Mode == ModeMove {
			if err := os.Remove(u.SrcPath); err != nil {
				o.fail(u.SrcPath, fmt.Errorf("remove moved source: %w", err))
				return o
			}
		}
	}

	o.Status = StatusDone
	return o
}

// execute moves the bytes according to plan.Strategy, downgrading the
// strategy in place when a rename or clone is refused.
func (r *runner) execute(ctx context.Context, workerID int, u Unit, plan *Plan, dstDev uint64) (int64, []byte, error) {
	switch plan.Strategy {
	case StrategyRename:
		err := os.Rename(u.SrcPath, u.DstPath)
		if err == nil {
			r.stats.Record(stats.Delta{Bytes: u.Size - plan.ResumeOffset})
			return u.Size - plan.ResumeOffset, nil, nil
		}
		if !errors.Is(err, syscall.EXDEV) {
			return 0, nil, err
		}
		r.log.Info("rename crossed devices, copying instead", "path", u.RelPath)
		plan.Strategy = StrategyCrossDevice
		plan.Verify = max(plan.Verify, VerifyHash)

	case StrategyReflink:
		if u.Dev != dstDev {
			return 0, nil, unitErr(CrossDeviceError, u.DstPath, errors.New("reflink required but source and destination are on different devices"))
		}
		err := platform.Clone(u.SrcPath, u.DstPath, u.Mode.Perm()|0o200)
		if err == nil {
			r.stats.Record(stats.Delta{Bytes: u.Size - plan.ResumeOffset})
			return u.Size - plan.ResumeOffset, nil, nil
		}
		if !platform.IsCloneUnsupported(err) {
			return 0, nil, err
		}
		if r.probe.disprove(dstDev) {
			r.log.Info("reflink unsupported on device, using stream copy", "dev", dstDev, "error", err)
		}
		if r.cfg.Reflink == ReflinkForce {
			return 0, nil, fmt.Errorf("reflink required: %w", err)
		}
		plan.Strategy = StrategyStream
		r.recheckResume(u, plan)
	}

	return r.stream(ctx, workerID, u, plan)
}

// recheckResume restarts plan from offset zero unless the destination
// still holds exactly the prefix the plan was made for.
func (r *runner) recheckResume(u Unit, plan *Plan) {
	if plan.ResumeOffset == 0 {
		return
	}
	info, err := os.Lstat(u.DstPath)
	if err == nil && info.Mode().IsRegular() && info.Size() == plan.ResumeOffset {
		return
	}
	r.log.Info("partial destination changed, restarting", "path", u.RelPath, "offset", plan.ResumeOffset)
	plan.ResumeOffset = 0
	plan.srcPrefix = nil
	plan.Overwrite = true
	plan.Reason = "restart"
}

// stream copies [plan.ResumeOffset, u.Size) in chunks aligned to absolute
// multiples of the chunk size. Cancellation is observed only between
// chunks, and a failed chunk is truncated away, so an interrupted
// destination always ends on a chunk boundary. It returns the bytes
// written and, when verification wants it, the digest of the bytes read.
//
//nolint:revive // cognitive-complexity: chunk loop with rollback
func (r *runner) stream(ctx context.Context, workerID int, u Unit, plan *Plan) (int64, []byte, error) {
	src, err := os.Open(u.SrcPath)
	if err != nil {
		return 0, nil, err
	}
	defer src.Close()

	flags := os.O_WRONLY | os.O_CREATE
	if plan.ResumeOffset == 0 {
		flags |= os.O_TRUNC
	}
	dst, err := os.OpenFile(u.DstPath, flags, u.Mode.Perm()|0o200)
	if err != nil {
		return 0, nil, err
	}
	defer dst.Close()

	stamp := r.resumeOpts().enabled()
	stampMtime := func() {
		if !stamp {
			return
		}
		if err := platform.SetMtime(dst, u.ModTime); err != nil {
			r.log.Debug("stamp mtime failed", "path", u.DstPath, "error", err)
		}
	}
	// An empty partial must already look like ours to be resumable.
	stampMtime()

	var segments []platform.Segment
	if r.cfg.Sparse != SparseNever && u.Size > 0 {
		segments, err = platform.DataSegments(src, u.Size)
		if err != nil {
			r.log.Debug("sparse detection failed", "path", u.SrcPath, "error", err)
			segments = nil
		}
	}
	if plan.ResumeOffset == 0 && r.cfg.Sparse != SparseAlways && !hasHoles(segments) {
		platform.Preallocate(dst, u.Size)
	}

	var tee hash.Hash
	switch {
	case plan.Verify == VerifyHash:
		tee = newHasher(r.cfg.Hash)
	case plan.Verify == VerifyStrict && plan.srcPrefix != nil:
		tee = plan.srcPrefix
	case plan.Verify == VerifyStrict && plan.ResumeOffset == 0:
		tee = newHasher(r.cfg.Hash)
	}

	chunk := r.cfg.ChunkSize
	pos := plan.ResumeOffset
	var written int64
	for pos < u.Size {
		if err := ctx.Err(); err != nil {
			return written, nil, err
		}
		end := min((pos/chunk+1)*chunk, u.Size)
		n := end - pos

		if err := waitBandwidth(ctx, r.limiter, n); err != nil {
			return written, nil, err
		}
		if err := r.copyRange(src, dst, pos, n, segments, tee); err != nil {
			if terr := dst.Truncate(pos); terr != nil {
				r.log.Warn("rollback to chunk boundary failed", "path", u.DstPath, "offset", pos, "error", terr)
			}
			stampMtime()
			return written, nil, fmt.Errorf("copy chunk at %d: %w", pos, err)
		}
		stampMtime()

		pos = end
		written += n
		r.stats.Record(stats.Delta{Bytes: n})
		r.emit(event.Event{Type: event.Progress, Path: u.RelPath, Bytes: n, Offset: pos, Size: u.Size, WorkerID: workerID})
	}

	if err := dst.Close(); err != nil {
		return written, nil, fmt.Errorf("close %s: %w", u.DstPath, err)
	}

	var digest []byte
	if tee != nil {
		digest = tee.Sum(nil)
	}
	return written, digest, nil
}

// copyRange writes one chunk. Ranges that are holes in the source (or all
// zero, in SparseAlways mode) are skipped and the file is extended instead.
func (r *runner) copyRange(src, dst *os.File, off, n int64, segments []platform.Segment, tee hash.Hash) error {
	hole := platform.RangeIsHole(segments, off, n)
	if !hole && r.cfg.Sparse == SparseAlways {
		zero, err := rangeIsZero(src, off, n)
		if err != nil {
			return err
		}
		hole = zero
	}
	if hole {
		if tee != nil {
			if _, err := io.CopyN(tee, zeroReader{}, n); err != nil {
				return err
			}
		}
		return dst.Truncate(off + n)
	}

	res, err := platform.CopyChunk(platform.ChunkParams{Src: src, Dst: dst, Offset: off, Length: n, Tee: tee})
	if err != nil {
		return err
	}
	if res.BytesWritten != n {
		return fmt.Errorf("source changed during copy: got %d of %d bytes: %w", res.BytesWritten, n, io.ErrUnexpectedEOF)
	}
	return nil
}

// deviceOf returns the device of path or of its nearest existing ancestor.
func (r *runner) deviceOf(path string) uint64 {
	for {
		if info, err := os.Stat(path); err == nil {
			return platform.StatOf(info).Dev
		}
		parent := filepath.Dir(path)
		if parent == path {
			return 0
		}
		path = parent
	}
}

func hasHoles(segments []platform.Segment) bool {
	for _, s := range segments {
		if !s.IsData {
			return true
		}
	}
	return false
}

func rangeIsZero(f *os.File, off, n int64) (bool, error) {
	bufp := hashBufPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
	defer hashBufPool.Put(bufp)
	buf := *bufp

	for n > 0 {
		m, err := f.ReadAt(buf[:min(n, int64(len(buf)))], off)
		for _, b := range buf[:m] {
			if b != 0 {
				return false, nil
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		if m == 0 {
			return false, io.ErrUnexpectedEOF
		}
		off += int64(m)
		n -= int64(m)
	}
	return true, nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
