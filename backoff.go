package consumer

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describes the delay between polls of an open shard that returned
// no records. The delay starts at Min, doubles per consecutive empty poll and
// never exceeds Max. Jitter in [0, 1] randomizes each delay by up to that
// fraction. The zero value disables the delay.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultPollBackoff is used by readers created without WithPollBackoff.
var DefaultPollBackoff = Backoff{
	Min:    250 * time.Millisecond,
	Max:    5 * time.Second,
	Jitter: 0.2,
}

// Duration returns the delay before the poll following attempt consecutive
// empty batches (attempt starts at 0).
func (b Backoff) Duration(attempt int) time.Duration {
	if b.Min <= 0 {
		return 0
	}
	upper := b.Max
	if upper < b.Min {
		upper = b.Min
	}

	d := math.Min(float64(b.Min)*math.Pow(2, float64(attempt)), float64(upper))
	if b.Jitter > 0 {
		j := math.Min(b.Jitter, 1)
		d *= 1 - j + 2*j*rand.Float64()
	}
	return time.Duration(math.Min(d, float64(upper)))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
