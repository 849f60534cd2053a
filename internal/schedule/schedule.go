package schedule

import (
	"math/rand"
	"time"
)

// NextPoll returns the wait before the next background refresh: interval
// spread by +/- jitter (a fraction of interval). rnd returns values in [0,1);
// nil means math/rand.
func NextPoll(interval time.Duration, jitter float64, rnd func() float64) time.Duration {
	if interval <= 0 {
		return time.Minute
	}
	if jitter <= 0 {
		return interval
	}
	if jitter >= 1 {
		jitter = 0.99
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	spread := float64(interval) * jitter
	return interval - time.Duration(spread) + time.Duration(2*spread*rnd())
}
