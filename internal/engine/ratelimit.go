package engine

import (
	"context"

	"golang.org/x/time/rate"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate throughput to
// bytesPerSec. The burst is set to 1 MB to allow natural read-size chunks
// through without unnecessary blocking on small reads.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// waitBandwidth blocks until limiter admits n bytes. Chunks are far larger
// than the burst, so the wait is taken in burst-sized steps. A nil limiter
// never blocks.
func waitBandwidth(ctx context.Context, limiter *rate.Limiter, n int64) error {
	if limiter == nil {
		return nil
	}
	burst := int64(limiter.Burst())
	for n > 0 {
		step := min(n, burst)
		if err := limiter.WaitN(ctx, int(step)); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
