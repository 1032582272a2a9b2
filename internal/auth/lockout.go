package auth

import (
	"time"

	"github.com/BradenHooton/wazgo/internal/models"
)

// LockStatus is the result of a lockout check or a recorded failure.
type LockStatus struct {
	Locked           bool
	MinutesRemaining int
}

// LockoutPolicy counts consecutive failures and locks after Threshold of them.
// Reaching the threshold sets the lock and zeroes the counter, so a fresh
// cycle starts once the lock expires.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
	now       func() time.Time
}

func NewLockoutPolicy(threshold int, duration time.Duration) *LockoutPolicy {
	return &LockoutPolicy{Threshold: threshold, Duration: duration, now: time.Now}
}

// Check reports whether l is currently locked. It never mutates l.
func (p *LockoutPolicy) Check(l *models.Lockout) LockStatus {
	if l.LockUntil == nil {
		return LockStatus{}
	}
	remaining := l.LockUntil.Sub(p.now())
	if remaining <= 0 {
		return LockStatus{}
	}
	return LockStatus{Locked: true, MinutesRemaining: ceilMinutes(remaining)}
}

// RecordFailure counts one failure. An expired lock is cleared first and the
// count restarts from zero.
func (p *LockoutPolicy) RecordFailure(l *models.Lockout) LockStatus {
	now := p.now()
	if l.LockUntil != nil && !now.Before(*l.LockUntil) {
		l.LockUntil = nil
		l.FailedAttempts = 0
	}

	l.FailedAttempts++
	if l.FailedAttempts < p.Threshold {
		return LockStatus{}
	}

	until := now.Add(p.Duration)
	l.LockUntil = &until
	l.FailedAttempts = 0
	return LockStatus{Locked: true, MinutesRemaining: ceilMinutes(p.Duration)}
}

// RecordSuccess clears the counter and any lock.
func (p *LockoutPolicy) RecordSuccess(l *models.Lockout) {
	l.FailedAttempts = 0
	l.LockUntil = nil
}

func ceilMinutes(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}
