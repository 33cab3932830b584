package engine

import (
	"hash"
	"sync"
	"time"
)

// Action is what the selector decided to do with a unit.
type Action int

const (
	ActionTransfer Action = iota
	ActionSkip
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionTransfer:
		return "transfer"
	case ActionSkip:
		return "skip"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Strategy is how the bytes of a unit get to the destination.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyReflink
	StrategyStream
	StrategyRename
	StrategyCrossDevice
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyReflink:
		return "reflink"
	case StrategyStream:
		return "stream"
	case StrategyRename:
		return "rename"
	case StrategyCrossDevice:
		return "cross-device"
	default:
		return "unknown"
	}
}

// Plan is the selector's decision for one unit.
type Plan struct {
	// srcPrefix holds the source digest state over [0, ResumeOffset) when a
	// strict prefix comparison already read it.
	srcPrefix hash.Hash

	Reason       string
	ResumeOffset int64
	Action       Action
	Strategy     Strategy
	Verify       VerifyMode
	Overwrite    bool // truncate the destination before writing
}

// destState is what the selector knows about an existing destination.
type destState struct {
	modTime time.Time
	size    int64
	exists  bool
}

// resumeOpts is the part of Config the resume decision depends on.
type resumeOpts struct {
	resume bool
	strict bool
	append bool
}

func (o resumeOpts) enabled() bool { return o.resume || o.strict || o.append }

// prefixCompare digests the destination's first n bytes and the same range
// of the source. It returns whether they match and the source digest state.
type prefixCompare func(n int64) (bool, hash.Hash, error)

// decideResume chooses Skip, Transfer (at some offset) or Conflict from
// destination metadata, consulting cmp only in strict mode.
func decideResume(u Unit, d destState, opts resumeOpts, cmp prefixCompare) (Plan, error) {
	if !d.exists {
		return Plan{Action: ActionTransfer, Reason: "fresh"}, nil
	}
	if !opts.enabled() {
		return Plan{Action: ActionConflict, Reason: "exists"}, nil
	}

	switch {
	case opts.append:
		switch {
		case d.size == u.Size:
			return Plan{Action: ActionSkip, Reason: "identical"}, nil
		case d.size < u.Size:
			return Plan{Action: ActionTransfer, ResumeOffset: d.size, Reason: "append"}, nil
		default:
			return Plan{Action: ActionConflict, Reason: "larger destination"}, nil
		}

	case opts.strict:
		if d.size > u.Size {
			return Plan{Action: ActionConflict, Reason: "larger destination"}, nil
		}
		equal, h, err := cmp(d.size)
		if err != nil {
			return Plan{}, err
		}
		switch {
		case equal && d.size == u.Size:
			return Plan{Action: ActionSkip, Reason: "identical", srcPrefix: h}, nil
		case equal:
			return Plan{Action: ActionTransfer, ResumeOffset: d.size, Reason: "resume", srcPrefix: h}, nil
		default:
			return Plan{Action: ActionTransfer, Overwrite: true, Reason: "restart"}, nil
		}

	default:
		sameTime := d.modTime.Equal(u.ModTime)
		switch {
		case d.size == u.Size && sameTime:
			return Plan{Action: ActionSkip, Reason: "identical"}, nil
		case d.size < u.Size && sameTime:
			return Plan{Action: ActionTransfer, ResumeOffset: d.size, Reason: "resume"}, nil
		case d.size > u.Size:
			return Plan{Action: ActionConflict, Reason: "larger destination"}, nil
		default:
			return Plan{Action: ActionConflict, Reason: "mtime differs"}, nil
		}
	}
}

// strategyInput is what strategy selection depends on besides the unit.
type strategyInput struct {
	mode      Mode
	reflink   ReflinkMode
	srcDev    uint64
	dstDev    uint64
	cloneable bool // the device's clone capability has not been disproved
}

// selectStrategy picks how bytes move for a unit that will be transferred.
func selectStrategy(in strategyInput) Strategy {
	sameDev := in.srcDev == in.dstDev
	switch {
	case in.mode == ModeMove && sameDev:
		return StrategyRename
	case sameDev && in.reflink != ReflinkNever && in.cloneable:
		return StrategyReflink
	case in.reflink == ReflinkForce:
		// Reported as a failure by the caller; there is no fallback.
		return StrategyReflink
	case in.mode == ModeMove:
		return StrategyCrossDevice
	default:
		return StrategyStream
	}
}

// reflinkProbe caches, per device, whether clones have been rejected. A
// device starts out presumed capable.
type reflinkProbe struct {
	disproved map[uint64]bool
	mu        sync.Mutex
}

func newReflinkProbe() *reflinkProbe {
	return &reflinkProbe{disproved: make(map[uint64]bool)}
}

func (p *reflinkProbe) usable(dev uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.disproved[dev]
}

// disprove records a rejected clone. It reports whether this call was the
// first to do so.
func (p *reflinkProbe) disprove(dev uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disproved[dev] {
		return false
	}
	p.disproved[dev] = true
	return true
}
