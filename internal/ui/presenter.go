package ui

import (
	"io"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/stats"
)

// Event is re-exported for presenter implementations and callers.
type Event = event.Event

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	Clock     clockwork.Clock // real clock when nil
	Op        string          // "copy", "move" or "remove"
	Width     int             // terminal columns; 0 disables path truncation
	IsTTY     bool
	Quiet     bool
	JSON      bool
	Verbose   bool
}

// progressInterval is how often the plain presenter reports aggregate
// progress when stderr is not a terminal.
const progressInterval = 5 * time.Second

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // selects among presenter implementations
func NewPresenter(cfg Config) Presenter {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollectorWithClock(cfg.Clock)
	}
	switch {
	case cfg.JSON:
		return newJSONPresenter(cfg)
	case cfg.Quiet:
		return &quietPresenter{errW: cfg.ErrWriter, stats: cfg.Stats}
	default:
		return newPlainPresenter(cfg)
	}
}
