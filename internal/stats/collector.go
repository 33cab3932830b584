package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const ringSize = 60

// Delta is a batch of counter increments. Workers submit one per chunk or
// per finished unit so the collector lock is taken at a coarse granularity.
type Delta struct {
	Bytes        int64
	BytesTotal   int64
	UnitsTotal   int64
	Done         int64
	Skipped      int64
	Failed       int64
	Interrupted  int64
	Excluded     int64
	DirsCreated  int64
	Removed      int64
	Verified     int64
	VerifyFailed int64
}

// Collector aggregates run progress. All counters share one mutex.
type Collector struct {
	clock     clockwork.Clock
	startTime time.Time

	mu     sync.Mutex
	totals Snapshot

	throughput [ringSize]int64 // bytes delta per tick
	unitsPer   [ringSize]int64 // finished units delta per tick
	ringIdx    int
	ringCount  int
	lastBytes  int64
	lastUnits  int64
}

// NewCollector creates a Collector on the real clock.
func NewCollector() *Collector {
	return NewCollectorWithClock(clockwork.NewRealClock())
}

// NewCollectorWithClock creates a Collector that reads time from clock.
func NewCollectorWithClock(clock clockwork.Clock) *Collector {
	return &Collector{clock: clock, startTime: clock.Now()}
}

// Record applies d atomically with respect to Snapshot.
func (c *Collector) Record(d Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &c.totals
	t.BytesTransferred += d.Bytes
	t.BytesTotal += d.BytesTotal
	t.UnitsTotal += d.UnitsTotal
	t.Done += d.Done
	t.Skipped += d.Skipped
	t.Failed += d.Failed
	t.Interrupted += d.Interrupted
	t.Excluded += d.Excluded
	t.DirsCreated += d.DirsCreated
	t.Removed += d.Removed
	t.Verified += d.Verified
	t.VerifyFailed += d.VerifyFailed
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BytesTransferred int64
	BytesTotal       int64
	UnitsTotal       int64
	Done             int64
	Skipped          int64
	Failed           int64
	Interrupted      int64
	Excluded         int64
	DirsCreated      int64
	Removed          int64
	Verified         int64
	VerifyFailed     int64
	Elapsed          time.Duration
}

// Finished returns the number of units that reached a terminal outcome.
func (s Snapshot) Finished() int64 {
	return s.Done + s.Skipped + s.Failed + s.Interrupted + s.Removed
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.totals
	c.mu.Unlock()
	s.Elapsed = c.Elapsed()
	return s
}

// Tick snapshots byte and unit deltas into the ring buffer. Called once per
// second by the presenter.
func (c *Collector) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	bytes := c.totals.BytesTransferred
	units := c.totals.Finished()

	c.throughput[c.ringIdx] = bytes - c.lastBytes
	c.unitsPer[c.ringIdx] = units - c.lastUnits
	c.lastBytes = bytes
	c.lastUnits = units

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingUnitsPerSec returns average finished units/sec over the last n samples.
func (c *Collector) RollingUnitsPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.unitsPer[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time from the rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	c.mu.Lock()
	remaining := c.totals.BytesTotal - c.totals.BytesTransferred
	c.mu.Unlock()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return c.clock.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"done=%d skipped=%d failed=%d interrupted=%d excluded=%d removed=%d bytes=%d dirs=%d",
		s.Done, s.Skipped, s.Failed, s.Interrupted, s.Excluded, s.Removed,
		s.BytesTransferred, s.DirsCreated,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
