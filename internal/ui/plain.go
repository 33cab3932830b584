package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/stats"
)

// palette colors status tags. Colors are disabled when output is not a
// terminal.
type palette struct {
	ok   *color.Color
	warn *color.Color
	bad  *color.Color
	dim  *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed, color.Bold),
		dim:  color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.ok, p.warn, p.bad, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// plainPresenter outputs one line per finished unit to stdout and periodic
// progress to stderr. On a terminal the progress line is redrawn in place.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	clock   clockwork.Clock
	colors  palette
	op      string
	width   int
	isTTY   bool
	verbose bool

	statusShown bool
	ticks       int
}

func newPlainPresenter(cfg Config) *plainPresenter {
	return &plainPresenter{
		w:       cfg.Writer,
		errW:    cfg.ErrWriter,
		stats:   cfg.Stats,
		clock:   cfg.Clock,
		colors:  newPalette(cfg.IsTTY),
		op:      cfg.Op,
		width:   cfg.Width,
		isTTY:   cfg.IsTTY,
		verbose: cfg.Verbose,
	}
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := p.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearStatus()
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.Chan():
			p.stats.Tick()
			p.ticks++
			if p.isTTY {
				p.printStatus()
			} else if p.ticks%int(progressInterval/time.Second) == 0 {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	path := ev.Path
	if p.width > 0 {
		path = TruncatePath(path, p.width/2)
	}

	switch ev.Type {
	case event.UnitDone:
		tag := pastTense(p.op)
		if ev.DryRun {
			tag = "would " + opVerb(p.op)
		}
		line := fmt.Sprintf("%s  %s  %s", p.colors.ok.Sprint(tag), path, FormatBytes(ev.Size))
		if ev.Strategy != "" && ev.Strategy != "none" {
			line += "  " + p.colors.dim.Sprint(ev.Strategy)
		}
		if ev.Reason == "resume" || ev.Reason == "append" {
			line += "  " + p.colors.dim.Sprint("resumed")
		}
		p.println(line)
	case event.Removed:
		tag := "removed"
		if ev.DryRun {
			tag = "would remove"
		}
		p.println(fmt.Sprintf("%s  %s", p.colors.ok.Sprint(tag), path))
	case event.DirCreated:
		if p.verbose {
			p.println(fmt.Sprintf("%s  %s/", p.colors.dim.Sprint("dir"), path))
		}
	case event.UnitSkipped:
		reason := ev.Reason
		if reason == "" {
			reason = "skipped"
		}
		p.println(fmt.Sprintf("%s  %s  %s", p.colors.warn.Sprint("skipped"), path, p.colors.dim.Sprint(reason)))
	case event.UnitFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		p.println(fmt.Sprintf("%s  %s  %s", p.colors.bad.Sprint("failed"), path, errMsg))
	case event.UnitInterrupted:
		p.println(fmt.Sprintf("%s  %s", p.colors.warn.Sprint("interrupted"), path))
	case event.UnitExcluded:
		if p.verbose {
			p.println(fmt.Sprintf("%s  %s", p.colors.dim.Sprint("excluded"), path))
		}
	case event.VerifyFailed:
		p.println(fmt.Sprintf("%s  %s", p.colors.bad.Sprint("MISMATCH"), path))
	case event.RunStarted, event.UnitStarted, event.Progress,
		event.VerifyStarted, event.VerifyOK, event.RunComplete:
		// Aggregates come from the collector.
	}
}

func (p *plainPresenter) println(line string) {
	p.clearStatus()
	fmt.Fprintln(p.w, line)
}

// progressLine describes aggregate progress.
func (p *plainPresenter) progressLine() string {
	snap := p.stats.Snapshot()
	if snap.BytesTotal <= 0 {
		return fmt.Sprintf("progress: %s %s units",
			FormatBytes(snap.BytesTransferred),
			FormatCount(snap.Finished()),
		)
	}
	pct := float64(snap.BytesTransferred) / float64(snap.BytesTotal)
	return fmt.Sprintf("progress: %.0f%% %s/%s %s/%s units %s eta %s",
		pct*100,
		FormatBytes(snap.BytesTransferred), FormatBytes(snap.BytesTotal),
		FormatCount(snap.Finished()), FormatCount(snap.UnitsTotal),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatETA(p.stats.ETA()),
	)
}

func (p *plainPresenter) printProgress() {
	fmt.Fprintln(p.errW, p.progressLine())
}

// printStatus redraws the single terminal status line.
func (p *plainPresenter) printStatus() {
	snap := p.stats.Snapshot()
	line := p.progressLine()
	if snap.BytesTotal > 0 {
		bar := ProgressBar(float64(snap.BytesTransferred)/float64(snap.BytesTotal), 20)
		line = bar + " " + strings.TrimPrefix(line, "progress: ")
	}
	if p.width > 0 {
		line = TruncatePath(line, p.width-1)
	}
	fmt.Fprintf(p.errW, "\r\033[K%s", line)
	p.statusShown = true
}

func (p *plainPresenter) clearStatus() {
	if p.statusShown {
		fmt.Fprint(p.errW, "\r\033[K")
		p.statusShown = false
	}
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot(), p.op)
}
