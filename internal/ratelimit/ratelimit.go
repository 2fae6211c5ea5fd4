package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrTooManyAttempts is returned by Check while a user is locked out.
var ErrTooManyAttempts = errors.New("Too many failed attempts")

// Limiter counts failed authentication attempts per user in a fixed window
// that starts at the first failure. Counters live in memory only, so a
// daemon restart clears every lockout.
type Limiter struct {
	counters    *cache.Cache
	maxAttempts int
	window      time.Duration
}

// NewLimiter creates a limiter. A maxAttempts of zero or less disables
// lockout entirely.
func NewLimiter(maxAttempts int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		counters:    cache.New(window, 2*window),
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func key(username string) string {
	return fmt.Sprintf("auth_failures:%s", username)
}

// Enabled reports whether lockout is configured.
func (l *Limiter) Enabled() bool {
	return l.maxAttempts > 0
}

// Check returns ErrTooManyAttempts once the user has reached the failure limit
// inside the current window.
func (l *Limiter) Check(username string) error {
	if !l.Enabled() {
		return nil // No limit configured
	}

	if count := l.Failures(username); count >= l.maxAttempts {
		return fmt.Errorf("%w: %d/%d in %s", ErrTooManyAttempts, count, l.maxAttempts, l.window)
	}
	return nil
}

// RecordFailure increments the user's failure counter and returns the new count.
func (l *Limiter) RecordFailure(username string) int {
	if !l.Enabled() {
		return 0
	}

	k := key(username)
	if err := l.counters.Add(k, 1, l.window); err == nil {
		return 1
	}
	n, err := l.counters.IncrementInt(k, 1)
	if err != nil {
		// expired between Add and IncrementInt
		l.counters.Set(k, 1, l.window)
		return 1
	}
	return n
}

// Failures returns the current failure count for a user.
func (l *Limiter) Failures(username string) int {
	v, ok := l.counters.Get(key(username))
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

// Reset clears the user's counter, typically after a successful match.
func (l *Limiter) Reset(username string) {
	l.counters.Delete(key(username))
}
