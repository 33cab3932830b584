package engine

import (
	"context"

	"github.com/bamsammich/shuttle/internal/stats"
)

// Status is a unit's terminal state.
type Status int

const (
	StatusDone Status = iota
	StatusSkipped
	StatusFailed
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	case StatusInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Outcome records how one unit ended.
type Outcome struct {
	Err      error
	RelPath  string
	SrcPath  string
	DstPath  string
	Reason   string
	Strategy Strategy
	Bytes    int64
	Kind     EntryKind
	Status   Status
	DryRun   bool
}

// Result is the outcome of a whole run.
type Result struct {
	Err         error // fatal startup error; nothing was traversed
	RunID       string
	Failures    []Outcome
	Stats       stats.Snapshot
	Interrupted bool // the caller's context was cancelled
	Aborted     bool // a confirmation answered abort
}

// ExitCode maps the result to a process exit status: 0 success, 1 some
// units failed, 2 fatal error, 130 interrupted.
func (r Result) ExitCode() int {
	switch {
	case r.Err != nil:
		return 2
	case r.Interrupted:
		return 130
	case len(r.Failures) > 0:
		return 1
	default:
		return 0
	}
}

// Decision is a confirmation answer.
type Decision int

const (
	Proceed Decision = iota
	Skip
	Abort
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Conflict describes a situation needing the user's consent.
type Conflict struct {
	Path    string // destination for transfers, the target for removals
	Reason  string // "exists", "larger destination", "mtime differs", "remove"
	SrcSize int64
	DstSize int64
	Kind    EntryKind
}

// Confirmer answers conflicts. Implementations are called from worker
// goroutines concurrently and must serialize their own prompting. Only the
// unit awaiting the answer blocks.
type Confirmer interface {
	Confirm(ctx context.Context, c Conflict) (Decision, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, c Conflict) (Decision, error)

func (f ConfirmFunc) Confirm(ctx context.Context, c Conflict) (Decision, error) { return f(ctx, c) }
