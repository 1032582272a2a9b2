package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads failed authentication responses to a floor of Base plus a
// random jitter so that unknown-account and wrong-password paths take the same time.
type TimingDelay struct {
	Base   time.Duration
	Jitter time.Duration
}

func NewTimingDelay(base, jitter time.Duration) *TimingDelay {
	return &TimingDelay{Base: base, Jitter: jitter}
}

// cryptoRandDuration returns a uniformly random duration in [0, max).
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// WaitFrom sleeps until at least Base+jitter has elapsed since start. It
// returns early if ctx is cancelled.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}
	target := td.Base + cryptoRandDuration(td.Jitter)
	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
