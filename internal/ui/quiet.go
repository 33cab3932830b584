package ui

import (
	"fmt"
	"io"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/stats"
)

// quietPresenter prints failures only.
type quietPresenter struct {
	errW  io.Writer
	stats *stats.Collector
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for ev := range events {
		p.handleEvent(ev)
	}
	return nil
}

func (p *quietPresenter) handleEvent(ev Event) {
	if p.errW == nil {
		return
	}
	switch ev.Type {
	case event.UnitFailed:
		if ev.Error != nil {
			fmt.Fprintf(p.errW, "shuttle: %v\n", ev.Error)
		} else {
			fmt.Fprintf(p.errW, "shuttle: %s: failed\n", ev.Path)
		}
	case event.VerifyFailed:
		fmt.Fprintf(p.errW, "shuttle: %s: checksum mismatch\n", ev.Path)
	}
}

func (p *quietPresenter) Summary() string {
	return ""
}
