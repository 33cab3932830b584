package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	RunStarted Type = iota + 1
	UnitStarted
	Progress
	UnitDone
	UnitSkipped
	UnitFailed
	UnitInterrupted
	UnitExcluded
	DirCreated
	Removed
	VerifyStarted
	VerifyOK
	VerifyFailed
	RunComplete
)

var typeNames = [...]string{
	RunStarted:      "RunStarted",
	UnitStarted:     "UnitStarted",
	Progress:        "Progress",
	UnitDone:        "UnitDone",
	UnitSkipped:     "UnitSkipped",
	UnitFailed:      "UnitFailed",
	UnitInterrupted: "UnitInterrupted",
	UnitExcluded:    "UnitExcluded",
	DirCreated:      "DirCreated",
	Removed:         "Removed",
	VerifyStarted:   "VerifyStarted",
	VerifyOK:        "VerifyOK",
	VerifyFailed:    "VerifyFailed",
	RunComplete:     "RunComplete",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Terminal reports whether the event records a unit's final outcome.
func (t Type) Terminal() bool {
	switch t {
	case UnitDone, UnitSkipped, UnitFailed, UnitInterrupted, Removed:
		return true
	}
	return false
}

// Event is a single progress or outcome notification from the engine.
type Event struct {
	Timestamp time.Time
	Type      Type
	Error     error
	Path      string // path relative to the operation root
	Dst       string // absolute destination, when there is one
	Strategy  string // transfer strategy chosen for the unit
	Reason    string // decision note: "fresh", "resume", "identical", ...
	Size      int64  // unit size, or total bytes on RunStarted
	Bytes     int64  // bytes delta on Progress
	Offset    int64  // resume offset on UnitStarted
	Total     int64  // total units on RunStarted
	WorkerID  int
	DryRun    bool
}
