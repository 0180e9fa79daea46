package handles

import (
	"sync"
	"time"
)

// MediaClock is the process-wide timebase every encoder is bound to.
type MediaClock struct {
	epoch time.Time
}

var (
	clockOnce sync.Once
	clock     *MediaClock
)

// Clock returns the shared media clock, initializing it on first use.
func Clock() *MediaClock {
	clockOnce.Do(func() {
		clock = &MediaClock{epoch: time.Now()}
	})
	return clock
}

// Now returns the time elapsed since the clock was initialized.
func (c *MediaClock) Now() time.Duration {
	return time.Since(c.epoch)
}

// Epoch returns the wall-clock instant the clock started at.
func (c *MediaClock) Epoch() time.Time {
	return c.epoch
}
