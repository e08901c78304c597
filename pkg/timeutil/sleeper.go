package timeutil

import "time"

// Sleeper abstracts time.Sleep so the scheduler's rate-wait and
// backoff delays can be faked in tests without real wall-clock waits.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps for real; the production default.
type RealSleeper struct{}

// NewRealSleeper returns a Sleeper backed by time.Sleep.
func NewRealSleeper() RealSleeper {
	return RealSleeper{}
}

func (RealSleeper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
