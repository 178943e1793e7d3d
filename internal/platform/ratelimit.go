package platform

import (
	"sync"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/logging"
)

// RateLimiter caps request rates per key with a sliding window of
// request timestamps. State is in-memory and resets on restart; limits
// are advisory, not a security boundary.
type RateLimiter struct {
	config        *config.Config
	windows       map[string][]time.Time
	mu            sync.Mutex
	logger        logging.Logger
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(cfg *config.Config) *RateLimiter {
	rl := &RateLimiter{
		config:        cfg,
		windows:       make(map[string][]time.Time),
		logger:        logging.GetGlobalLogger().WithField("component", "rate_limiter"),
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}

	go rl.cleanupRoutine()

	return rl
}

func (rl *RateLimiter) window() time.Duration {
	ms := rl.config.RateLimit.WindowMs
	if ms <= 0 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}

func (rl *RateLimiter) maxRequests() int {
	if rl.config.RateLimit.MaxRequests <= 0 {
		return 30
	}
	return rl.config.RateLimit.MaxRequests
}

// CheckLimit reports whether a request for the key is allowed and, when
// allowed, records it. Entries older than the window are purged on every
// check.
func (rl *RateLimiter) CheckLimit(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := rl.purge(key, now)

	if len(recent) >= rl.maxRequests() {
		rl.logger.Debug("Request rejected by rate limiter", map[string]interface{}{
			"key":      key,
			"requests": len(recent),
		})
		return false
	}

	rl.windows[key] = append(recent, now)
	return true
}

// RemainingRequests returns how many requests the key may still make in
// the current window.
func (rl *RateLimiter) RemainingRequests(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.purge(key, time.Now())
	remaining := rl.maxRequests() - len(recent)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// purge drops timestamps older than the window. Caller holds the lock.
func (rl *RateLimiter) purge(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window())
	timestamps := rl.windows[key]

	recent := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) == 0 {
		delete(rl.windows, key)
		return nil
	}
	rl.windows[key] = recent
	return recent
}

// cleanupRoutine periodically drops keys with no recent activity
func (rl *RateLimiter) cleanupRoutine() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			rl.cleanupTicker.Stop()
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0
	for key := range rl.windows {
		if rl.purge(key, now) == nil {
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("Cleaned up idle rate limit windows", map[string]interface{}{
			"removed_count": removed,
		})
	}
}

// Stop stops the cleanup routine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}
