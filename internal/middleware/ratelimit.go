package middleware

import (
	"sync"
	"time"
)

// FailureLimiter locks a client out after too many failed logins within a
// window. The zero value is not usable; use NewFailureLimiter.
type FailureLimiter struct {
	mu       sync.Mutex
	failures map[string]*clientFailures
	limit    int
	window   time.Duration
	now      func() time.Time
}

type clientFailures struct {
	count     int
	resetTime time.Time
}

func NewFailureLimiter(limit int, window time.Duration) *FailureLimiter {
	return &FailureLimiter{
		failures: make(map[string]*clientFailures),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Blocked reports whether key is locked out and for how long.
func (l *FailureLimiter) Blocked(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.failures[key]
	if !ok {
		return false, 0
	}
	now := l.now()
	if now.After(f.resetTime) {
		delete(l.failures, key)
		return false, 0
	}
	if f.count >= l.limit {
		return true, f.resetTime.Sub(now)
	}
	return false, 0
}

// Fail records a failed attempt for key.
func (l *FailureLimiter) Fail(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	f, ok := l.failures[key]
	if !ok || now.After(f.resetTime) {
		l.failures[key] = &clientFailures{count: 1, resetTime: now.Add(l.window)}
		l.prune(now)
		return
	}
	f.count++
}

// Reset clears key after a successful attempt.
func (l *FailureLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
}

func (l *FailureLimiter) prune(now time.Time) {
	for key, f := range l.failures {
		if now.After(f.resetTime) {
			delete(l.failures, key)
		}
	}
}
