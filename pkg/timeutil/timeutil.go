package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest value in durations, or 0 when the
// slice is empty. The input slice is not modified.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max) drawn
// from rng, or 0 when max is not positive.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay returns initial * multiplier^(backoffCount-1),
// capped at the maximum duration, plus a jitter in [0, jitter).
func ExponentialBackoffDelay(backoffCount int, jitter time.Duration, rng rand.Rand, backoffParam BackoffParam) time.Duration {
	delay := float64(backoffParam.InitialDuration()) * math.Pow(backoffParam.Multiplier(), float64(backoffCount-1))
	if maxDelay := float64(backoffParam.MaxDuration()); delay > maxDelay {
		delay = maxDelay
	}
	return time.Duration(delay) + ComputeJitter(jitter, rng)
}
