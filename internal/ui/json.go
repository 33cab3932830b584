package ui

import (
	"encoding/json"
	"time"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/stats"
)

// jsonRecord is one line of --json output.
type jsonRecord struct {
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	Path     string    `json:"path,omitempty"`
	Dst      string    `json:"dst,omitempty"`
	Strategy string    `json:"strategy,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Bytes    int64     `json:"bytes,omitempty"`
	Offset   int64     `json:"offset,omitempty"`
	Total    int64     `json:"total,omitempty"`
	Worker   int       `json:"worker,omitempty"`
	DryRun   bool      `json:"dry_run,omitempty"`
}

type jsonSummary struct {
	Type         string `json:"type"`
	Bytes        int64  `json:"bytes"`
	BytesTotal   int64  `json:"bytes_total"`
	Units        int64  `json:"units"`
	Done         int64  `json:"done"`
	Skipped      int64  `json:"skipped"`
	Failed       int64  `json:"failed"`
	Interrupted  int64  `json:"interrupted"`
	Excluded     int64  `json:"excluded"`
	DirsCreated  int64  `json:"dirs_created"`
	Removed      int64  `json:"removed"`
	Verified     int64  `json:"verified"`
	VerifyFailed int64  `json:"verify_failed"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

// jsonPresenter writes one JSON object per event to stdout. Progress
// events are included only in verbose mode.
type jsonPresenter struct {
	enc     *json.Encoder
	stats   *stats.Collector
	verbose bool
}

func newJSONPresenter(cfg Config) *jsonPresenter {
	return &jsonPresenter{
		enc:     json.NewEncoder(cfg.Writer),
		stats:   cfg.Stats,
		verbose: cfg.Verbose,
	}
}

func (p *jsonPresenter) Run(events <-chan Event) error {
	var firstErr error
	for ev := range events {
		if ev.Type == event.Progress && !p.verbose {
			continue
		}
		if err := p.enc.Encode(toRecord(ev)); err != nil && firstErr == nil {
			// Keep draining so the engine never blocks on us.
			firstErr = err
		}
	}
	return firstErr
}

func toRecord(ev Event) jsonRecord {
	rec := jsonRecord{
		Time:     ev.Timestamp,
		Type:     ev.Type.String(),
		Path:     ev.Path,
		Dst:      ev.Dst,
		Strategy: ev.Strategy,
		Reason:   ev.Reason,
		Size:     ev.Size,
		Bytes:    ev.Bytes,
		Offset:   ev.Offset,
		Total:    ev.Total,
		Worker:   ev.WorkerID,
		DryRun:   ev.DryRun,
	}
	if rec.Strategy == "none" {
		rec.Strategy = ""
	}
	if ev.Error != nil {
		rec.Error = ev.Error.Error()
	}
	return rec
}

// Summary renders the final counters as a JSON object.
func (p *jsonPresenter) Summary() string {
	snap := p.stats.Snapshot()
	b, err := json.Marshal(jsonSummary{
		Type:         "Summary",
		Bytes:        snap.BytesTransferred,
		BytesTotal:   snap.BytesTotal,
		Units:        snap.UnitsTotal,
		Done:         snap.Done,
		Skipped:      snap.Skipped,
		Failed:       snap.Failed,
		Interrupted:  snap.Interrupted,
		Excluded:     snap.Excluded,
		DirsCreated:  snap.DirsCreated,
		Removed:      snap.Removed,
		Verified:     snap.Verified,
		VerifyFailed: snap.VerifyFailed,
		ElapsedMS:    snap.Elapsed.Milliseconds(),
	})
	if err != nil {
		return ""
	}
	return string(b)
}
