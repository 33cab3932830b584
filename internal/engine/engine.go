package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/filter"
	"github.com/bamsammich/shuttle/internal/stats"
)

// DefaultChunkSize is the resume granularity of stream copies.
const DefaultChunkSize = 64 << 20

const maxDefaultWorkers = 16

// DefaultWorkers returns min(2*NumCPU, 16).
func DefaultWorkers() int {
	return min(runtime.NumCPU()*2, maxDefaultWorkers)
}

// Config describes one copy, move or remove operation.
type Config struct {
	Confirmer Confirmer        // asked about conflicts; nil means never prompt
	Exclude   *filter.RuleSet  // nil excludes nothing
	Events    chan<- event.Event
	Stats     *stats.Collector // created when nil
	Logger    *slog.Logger     // slog.Default() when nil

	Sources []string
	Dest    string // unused in remove mode

	ChunkSize int64 // DefaultChunkSize when <= 0
	BWLimit   int64 // aggregate bytes/sec; 0 is unlimited
	Workers   int   // DefaultWorkers() when <= 0

	Mode    Mode
	Verify  VerifyMode
	Reflink ReflinkMode
	Sparse  SparseMode
	Hash    HashAlgo

	Recursive       bool
	Preserve        bool
	Force           bool
	Yes             bool
	DryRun          bool
	Resume          bool
	Strict          bool // resume by digest comparison; implies Resume and strict verification
	Append          bool
	Interactive     bool
	RemoveEmptyDirs bool // rm -d
	Verbose         bool
	FailFast        bool
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Stats == nil {
		c.Stats = stats.NewCollector()
	}
	if c.Strict {
		c.Resume = true
		c.Verify = VerifyStrict
	}
	if c.Mode == ModeMove {
		// mv moves whole trees and keeps attributes.
		c.Recursive = true
		c.Preserve = true
	}
	return c
}

func (c Config) validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no source paths given")
	}
	if c.Mode != ModeRemove && c.Dest == "" {
		return errors.New("no destination given")
	}
	if c.Append && (c.Strict || c.Verify == VerifyStrict) {
		// Strict verification forbids size-only skips.
		return errors.New("append and strict are mutually exclusive")
	}
	return nil
}

// Run executes the operation, blocking until every dispatched unit has an
// outcome. Argument errors are returned in Result.Err before anything is
// traversed. Events, when set, must be drained by the caller.
func Run(ctx context.Context, cfg Config) Result {
	cfg = cfg.normalized()
	runID := uuid.NewString()
	log := cfg.Logger.With("run", runID, "op", cfg.Mode.String())

	if err := cfg.validate(); err != nil {
		return Result{RunID: runID, Err: err}
	}

	var (
		roots []Root
		err   error
	)
	if cfg.Mode == ModeRemove {
		roots = removeRoots(cfg)
	} else {
		roots, err = transferRoots(cfg)
	}
	if err != nil {
		return Result{RunID: runID, Err: err}
	}

	log.Debug("run starting", "roots", len(roots), "workers", cfg.Workers,
		"verify", cfg.Verify.String(), "dry_run", cfg.DryRun)

	r := newRunner(ctx, cfg, log)
	defer r.cancelUnits()

	r.emitSync(event.Event{Type: event.RunStarted, Total: int64(len(roots)), DryRun: cfg.DryRun})

	if cfg.Mode == ModeMove {
		roots = r.renameRoots(roots)
	}

	order := PreOrder
	if cfg.Mode == ModeRemove {
		order = PostOrder
	}
	w := &Walker{
		Rules:     cfg.Exclude,
		Order:     order,
		Recursive: cfg.Recursive,
		Buffer:    cfg.Workers * 4,
		OnExcluded: func(relPath string, isDir bool) {
			r.stats.Record(stats.Delta{Excluded: 1})
			r.emit(event.Event{Type: event.UnitExcluded, Path: relPath})
		},
	}
	r.dispatch(r.unitCtx, w.Walk(r.walkCtx, roots), order)

	r.applyDirAttrs()
	if cfg.Mode == ModeMove && !cfg.DryRun && ctx.Err() == nil {
		r.removeMovedDirs()
	}

	res := Result{
		RunID:       runID,
		Failures:    r.failureList(),
		Stats:       r.stats.Snapshot(),
		Interrupted: ctx.Err() != nil,
		Aborted:     r.aborted.Load(),
	}
	r.emitSync(event.Event{Type: event.RunComplete, DryRun: cfg.DryRun})
	log.Debug("run finished", "stats", res.Stats.String(), "exit", res.ExitCode())
	return res
}

// transferRoots maps each source to its destination path, applying the
// usual cp/mv rules for an existing destination directory.
func transferRoots(cfg Config) ([]Root, error) {
	dstIsDir := false
	if info, err := os.Stat(cfg.Dest); err == nil && info.IsDir() {
		dstIsDir = true
	}
	if len(cfg.Sources) > 1 && !dstIsDir {
		return nil, fmt.Errorf("target %s is not a directory", cfg.Dest)
	}

	roots := make([]Root, 0, len(cfg.Sources))
	for i, src := range cfg.Sources {
		dst := cfg.Dest
		if dstIsDir {
			dst = filepath.Join(cfg.Dest, rootName(src))
		}

		info, err := os.Lstat(src)
		if err == nil && info.IsDir() {
			if !cfg.Recursive {
				return nil, fmt.Errorf("%s is a directory (use -r)", src)
			}
			if within(dst, src) {
				return nil, fmt.Errorf("cannot %s %s into itself (%s)", cfg.Mode, src, dst)
			}
		}
		if err == nil && samePath(src, dst) {
			return nil, fmt.Errorf("%s and %s are the same file", src, dst)
		}
		// A missing source is reported as a failed unit by the walker.
		roots = append(roots, Root{Src: src, Dst: dst, Index: i})
	}
	return roots, nil
}

func removeRoots(cfg Config) []Root {
	roots := make([]Root, 0, len(cfg.Sources))
	for i, p := range cfg.Sources {
		if cfg.Force {
			if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
				continue
			}
		}
		roots = append(roots, Root{Src: p, Index: i})
	}
	return roots
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	p, err1 := filepath.Abs(path)
	d, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	return p == d || strings.HasPrefix(p, d+string(filepath.Separator))
}

// runner holds the state shared by the dispatcher and its workers for one run.
type runner struct {
	unitCtx     context.Context // cancelled on fail-fast; in-flight units stop at a chunk boundary
	walkCtx     context.Context // cancelled when dispatch stops
	cancelUnits context.CancelFunc
	cancelWalk  context.CancelFunc
	log         *slog.Logger
	stats       *stats.Collector
	limiter     *rate.Limiter
	probe       *reflinkProbe

	// Dispatcher-only state.
	failedDirs map[string]bool
	dirAttrs   []deferredDir
	movedDirs  []Unit

	failures []Outcome
	cfg      Config
	mu       sync.Mutex
	stopped  atomic.Bool
	aborted  atomic.Bool
}

type deferredDir struct {
	unit Unit
	full bool // all attributes, not just the final permission bits
}

func newRunner(ctx context.Context, cfg Config, log *slog.Logger) *runner {
	r := &runner{
		cfg:        cfg,
		log:        log,
		stats:      cfg.Stats,
		probe:      newReflinkProbe(),
		failedDirs: make(map[string]bool),
	}
	r.unitCtx, r.cancelUnits = context.WithCancel(ctx)
	r.walkCtx, r.cancelWalk = context.WithCancel(r.unitCtx)
	if cfg.BWLimit > 0 {
		r.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return r
}

// stop ends dispatch; in-flight units run to completion.
func (r *runner) stop() {
	r.stopped.Store(true)
	r.cancelWalk()
}

func (r *runner) abort() {
	if !r.aborted.Swap(true) {
		r.log.Info("aborted by confirmation; no further units will start")
	}
	r.stop()
}

// finish records a unit's terminal outcome: counters, the event stream and,
// for failures, the result.
func (r *runner) finish(o Outcome, workerID int) {
	var d stats.Delta
	typ := event.UnitDone
	switch o.Status {
	case StatusDone:
		switch {
		case r.cfg.Mode == ModeRemove:
			d.Removed = 1
			typ = event.Removed
		case o.Kind == Dir && o.Strategy != StrategyRename:
			d.DirsCreated = 1
			typ = event.DirCreated
		default:
			d.Done = 1
		}
	case StatusSkipped:
		d.Skipped = 1
		typ = event.UnitSkipped
	case StatusFailed:
		d.Failed = 1
		typ = event.UnitFailed
	case StatusInterrupted:
		d.Interrupted = 1
		typ = event.UnitInterrupted
	}
	r.stats.Record(d)

	if o.Status == StatusFailed {
		r.mu.Lock()
		r.failures = append(r.failures, o)
		r.mu.Unlock()
		r.log.Debug("unit failed", "path", o.RelPath, "kind", KindOf(o.Err).String(), "error", o.Err)
		if r.cfg.FailFast && !r.stopped.Load() {
			r.log.Info("fail-fast: stopping after first failure", "path", o.RelPath)
			r.stop()
			r.cancelUnits()
		}
	} else if r.cfg.Verbose && o.Status == StatusDone {
		r.log.Info(r.cfg.Mode.String(), "path", o.RelPath, "strategy", o.Strategy.String(), "dry_run", o.DryRun)
	}

	dst := o.DstPath
	if r.cfg.Mode == ModeRemove {
		dst = o.SrcPath
	}
	r.emitSync(event.Event{
		Type:     typ,
		Path:     o.RelPath,
		Dst:      dst,
		Strategy: o.Strategy.String(),
		Reason:   o.Reason,
		Size:     o.Bytes,
		Error:    o.Err,
		WorkerID: workerID,
		DryRun:   o.DryRun,
	})
}

func (r *runner) failureList() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.failures...)
}

// emit sends a progress event without blocking; it is dropped when the
// consumer is behind.
func (r *runner) emit(e event.Event) {
	if r.cfg.Events == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case r.cfg.Events <- e:
	default:
	}
}

// emitSync delivers outcome events, which must not be lost.
func (r *runner) emitSync(e event.Event) {
	if r.cfg.Events == nil {
		return
	}
	e.Timestamp = time.Now()
	r.cfg.Events <- e
}

func newOutcome(u Unit, dryRun bool) Outcome {
	return Outcome{
		RelPath: u.RelPath,
		SrcPath: u.SrcPath,
		DstPath: u.DstPath,
		Kind:    u.Kind,
		DryRun:  dryRun,
	}
}

// fail marks o failed, or interrupted when err stems from cancellation.
func (o *Outcome) fail(path string, err error) {
	if KindOf(err) == Interrupted {
		o.Status = StatusInterrupted
		o.Err = unitErr(Interrupted, path, err)
		return
	}
	o.Status = StatusFailed
	o.Err = classify(path, err)
}

func (o *Outcome) skip(reason string) {
	o.Status = StatusSkipped
	o.Reason = reason
}
