package ui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/shuttle/internal/stats"
)

// completionSummary builds a final summary line from a snapshot.
// Format: done ✓  copied 48,917  size 2.1 GiB  avg 641 MiB/s  time 3m 17s  errors 0
func completionSummary(snap stats.Snapshot, op string) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesTransferred) / snap.Elapsed.Seconds()
	}

	lead := "done ✓"
	switch {
	case snap.Interrupted > 0:
		lead = "interrupted"
	case snap.Failed > 0 || snap.VerifyFailed > 0:
		lead = "done ✗"
	}

	var b strings.Builder
	b.WriteString(lead)
	if op == "remove" {
		fmt.Fprintf(&b, "  removed %s", FormatCount(snap.Removed))
	} else {
		fmt.Fprintf(&b, "  %s %s  size %s  avg %s",
			pastTense(op),
			FormatCount(snap.Done),
			FormatBytes(snap.BytesTransferred),
			FormatRate(avgSpeed),
		)
	}
	fmt.Fprintf(&b, "  time %s", FormatDuration(snap.Elapsed))

	if snap.Skipped > 0 {
		fmt.Fprintf(&b, "  skipped %s", FormatCount(snap.Skipped))
	}
	if snap.Excluded > 0 {
		fmt.Fprintf(&b, "  excluded %s", FormatCount(snap.Excluded))
	}
	if snap.Verified > 0 || snap.VerifyFailed > 0 {
		fmt.Fprintf(&b, "  verified %s", FormatCount(snap.Verified))
	}
	if snap.Interrupted > 0 {
		fmt.Fprintf(&b, "  interrupted %s", FormatCount(snap.Interrupted))
	}
	fmt.Fprintf(&b, "  errors %d", snap.Failed)
	return b.String()
}

func pastTense(op string) string {
	switch op {
	case "move":
		return "moved"
	case "remove":
		return "removed"
	default:
		return "copied"
	}
}

func opVerb(op string) string {
	if op == "" {
		return "copy"
	}
	return op
}
