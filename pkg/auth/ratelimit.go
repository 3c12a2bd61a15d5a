package auth

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a caller may make another request.
type Limiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// WindowLimiter allows a fixed number of requests per subject and tier in
// each one-minute window. Counters live in memory.
type WindowLimiter struct {
	defaultRPM int
	tiers      map[string]int

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewWindowLimiter creates a limiter. tiers maps a tier name to its
// requests per minute; unlisted tiers get defaultRPM. A limit of zero or
// less disables limiting for that tier.
func NewWindowLimiter(defaultRPM int, tiers map[string]int) *WindowLimiter {
	return &WindowLimiter{
		defaultRPM: defaultRPM,
		tiers:      tiers,
		windows:    make(map[string]*window),
		now:        time.Now,
	}
}

// Allow counts the request and returns ErrTooManyRequests once the
// caller's window is exhausted.
func (l *WindowLimiter) Allow(_ context.Context, id *Identity) error {
	tier := tierOf(id)
	limit, ok := l.tiers[tier]
	if !ok {
		limit = l.defaultRPM
	}
	if limit <= 0 {
		return nil
	}

	key := id.Subject + "|" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.sweep(now)
		l.windows[key] = &window{start: now, count: 1}
		return nil
	}
	if w.count >= limit {
		return ErrTooManyRequests
	}
	w.count++
	return nil
}

// sweep drops expired windows. Called with mu held.
func (l *WindowLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(l.windows, k)
		}
	}
}

func tierOf(id *Identity) string {
	if id.Tier == "" {
		return "default"
	}
	return id.Tier
}
