package intrinio

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// backoffSchedule is the fixed retry ladder: 10s, 30s, 60s, 5m, 10m,
// saturating at the last entry for any further attempt.
var backoffSchedule = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	5 * time.Minute,
	10 * time.Minute,
}

// backoffDriver retries a fallible operation through backoffSchedule until
// it succeeds or ctx is cancelled. It uses jpillora/backoff purely as the
// attempt counter/reset bookkeeping; the actual sleep duration for each
// attempt comes from the fixed schedule above rather than jpillora's
// exponential curve, since the wire contract calls for a literal ladder.
type backoffDriver struct {
	b *backoff.Backoff
}

func newBackoffDriver() *backoffDriver {
	return &backoffDriver{b: &backoff.Backoff{}}
}

// scheduleDuration returns the wait duration for the k-th consecutive
// failure (0-indexed), saturating at the last schedule entry.
func scheduleDuration(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	if k >= len(backoffSchedule) {
		k = len(backoffSchedule) - 1
	}
	return backoffSchedule[k]
}

// Retry invokes op repeatedly until it returns nil or ctx is done. Between
// failures it sleeps the schedule duration for the current attempt index;
// the sleep observes ctx cancellation within one tick and aborts without
// retrying further.
func (d *backoffDriver) Retry(ctx context.Context, op func() error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			d.b.Reset()
			return nil
		}

		wait := scheduleDuration(int(d.b.Attempt()))
		d.b.Duration() // advances the attempt counter; its own duration is unused

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset clears the attempt counter, e.g. after a successful reconnect.
func (d *backoffDriver) Reset() {
	d.b.Reset()
}
