package engine

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/stats"
)

// verify checks a committed transfer according to plan.Verify. streamed is
// the source digest gathered while copying, if any: the new range for
// VerifyHash, the whole file for VerifyStrict. Cross-device moves are
// checked over the whole file. A mismatch leaves the destination in place.
func (r *runner) verify(ctx context.Context, u Unit, plan Plan, streamed []byte) error {
	if plan.Verify == VerifyNone {
		return nil
	}
	r.emit(event.Event{Type: event.VerifyStarted, Path: u.RelPath})

	err := r.check(ctx, u, plan, streamed)
	switch {
	case err == nil:
		r.stats.Record(stats.Delta{Verified: 1})
		r.emit(event.Event{Type: event.VerifyOK, Path: u.RelPath})
	case KindOf(err) == ChecksumMismatch:
		r.stats.Record(stats.Delta{VerifyFailed: 1})
		r.emit(event.Event{Type: event.VerifyFailed, Path: u.RelPath, Error: err})
	}
	return err
}

func (r *runner) check(ctx context.Context, u Unit, plan Plan, streamed []byte) error {
	info, err := os.Stat(u.DstPath)
	if err != nil {
		return err
	}
	if info.Size() != u.Size {
		return unitErr(ChecksumMismatch, u.DstPath,
			fmt.Errorf("size %d, want %d", info.Size(), u.Size))
	}
	if plan.Verify == VerifySize {
		return nil
	}

	// A cross-device move unlinks the source next, so the trusted prefix
	// is checked too.
	off := int64(0)
	if plan.Verify == VerifyHash && plan.Strategy != StrategyCrossDevice {
		off = plan.ResumeOffset
	}
	n := u.Size - off

	srcSum := streamed
	if plan.Verify == VerifyHash && off != plan.ResumeOffset {
		// The streamed digest covers only the new range.
		srcSum = nil
	}
	dstHash := newHasher(r.cfg.Hash)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hashRange(gctx, u.DstPath, dstHash, off, n) })
	if srcSum == nil {
		srcHash := newHasher(r.cfg.Hash)
		g.Go(func() error {
			if err := hashRange(gctx, u.SrcPath, srcHash, off, n); err != nil {
				return err
			}
			srcSum = srcHash.Sum(nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("verify %s: %w", u.RelPath, err)
	}

	dstSum := dstHash.Sum(nil)
	if !bytes.Equal(srcSum, dstSum) {
		return unitErr(ChecksumMismatch, u.DstPath, fmt.Errorf("%s range [%d,%d): source %s, destination %s",
			r.cfg.Hash, off, u.Size, hex.EncodeToString(srcSum), hex.EncodeToString(dstSum)))
	}
	return nil
}
