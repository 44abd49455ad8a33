// Package ratelimit provides a token bucket limiter used to pace
// outbound homeserver requests. It also tracks server-imposed cooldowns
// (Retry-After) so that every caller sharing the limiter backs off
// together.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter is a token bucket. Safe for concurrent use.
type Limiter struct {
	mu            sync.Mutex
	rate          float64 // tokens per second
	burst         int
	tokens        float64
	lastRefill    time.Time
	disabled      bool
	cooldownUntil time.Time
}

// NewLimiter creates a limiter allowing rate requests per second with the
// given burst. A rate of zero or less disables limiting entirely.
func NewLimiter(rate float64, burst int) *Limiter {
	if rate <= 0 {
		return &Limiter{disabled: true}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.isDisabled() {
		return nil
	}

	for {
		if cooldown := l.CooldownRemaining(); cooldown > 0 {
			select {
			case <-time.After(cooldown):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if l.tryTake() {
			return nil
		}

		select {
		case <-time.After(l.nextTokenIn()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow reports whether a request may proceed right now, consuming a
// token when it may.
func (l *Limiter) Allow() bool {
	if l.isDisabled() {
		return true
	}
	if l.CooldownRemaining() > 0 {
		return false
	}
	return l.tryTake()
}

func (l *Limiter) tryTake() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked(time.Now())
	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}
	return false
}

func (l *Limiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.lastRefill = now
}

func (l *Limiter) nextTokenIn() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	needed := 1.0 - l.tokens
	if needed <= 0 || l.rate <= 0 {
		return time.Millisecond
	}
	return time.Duration(needed / l.rate * float64(time.Second))
}

// SetRate updates the rate. Zero or negative disables limiting.
func (l *Limiter) SetRate(rate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rate <= 0 {
		l.disabled = true
		return
	}
	if l.disabled {
		// Coming back from disabled: start with a full bucket.
		if l.burst < 1 {
			l.burst = 1
		}
		l.tokens = float64(l.burst)
	}
	l.disabled = false
	l.rate = rate
	l.lastRefill = time.Now()
}

// SetBurst updates the burst size, clamping current tokens to it.
func (l *Limiter) SetBurst(burst int) {
	if burst < 1 {
		burst = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.burst = burst
	if l.tokens > float64(burst) {
		l.tokens = float64(burst)
	}
}

// Pause blocks the limiter for at least d, honoring a server-side
// Retry-After. Overlapping pauses keep the latest deadline.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)

	l.mu.Lock()
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	l.mu.Unlock()
}

// CooldownRemaining returns how long the limiter is still paused.
func (l *Limiter) CooldownRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if remaining := time.Until(l.cooldownUntil); remaining > 0 {
		return remaining
	}
	return 0
}

func (l *Limiter) isDisabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disabled
}

// String describes the limiter configuration.
func (l *Limiter) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disabled {
		return "rate limiting disabled"
	}
	return fmt.Sprintf("%.2f req/s, burst=%d", l.rate, l.burst)
}
