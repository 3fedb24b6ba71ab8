package irc

import (
	"sync"
	"time"
)

// RateLimiter tracks send timestamps in a trailing window so the sender never
// exceeds the server-imposed quota (default 18 messages per 30 seconds for a
// normal user). It answers "how long until the next send is allowed" rather
// than blocking, so the sender can wait with context cancellation.
type RateLimiter struct {
	mu     sync.Mutex
	burst  int
	window time.Duration
	sent   []time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter for burst sends per window.
func NewRateLimiter(burst int, window time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 18
	}
	if window <= 0 {
		window = 30 * time.Second
	}
	return &RateLimiter{burst: burst, window: window, now: time.Now}
}

// Delay returns how long the caller must wait before a send is permitted.
// Zero means the send may proceed now. Window membership changes as time
// passes, so callers re-check after waiting.
func (rl *RateLimiter) Delay() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	rl.evict(now)
	if len(rl.sent) < rl.burst {
		return 0
	}
	// Wait until the oldest counted send falls outside the window.
	return rl.sent[0].Add(rl.window).Sub(now)
}

// Record notes a send at the current time. Call immediately after a
// successful write.
func (rl *RateLimiter) Record() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	rl.evict(now)
	rl.sent = append(rl.sent, now)
}

// InWindow reports how many sends currently count against the budget and the
// configured burst, for the status endpoint.
func (rl *RateLimiter) InWindow() (used, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.evict(rl.now())
	return len(rl.sent), rl.burst
}

func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.sent) && !rl.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rl.sent = append(rl.sent[:0], rl.sent[i:]...)
	}
}

// Truncate clamps text to max runes, replacing the tail with an ellipsis when
// it overflows. Applied at enqueue time, before the rate check.
func Truncate(text string, max int) string {
	if max <= 0 || len([]rune(text)) <= max {
		return text
	}
	runes := []rune(text)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
