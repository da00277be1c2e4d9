package fetch

import (
	"sync"
	"time"
)

// Limiter is a mutex-guarded sliding-window request budget. Callers that
// exceed the budget are rejected immediately rather than blocked.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   []time.Time
	now    func() time.Time
}

// NewLimiter creates a limiter allowing max requests per sliding window
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow consumes one slot if the budget permits and reports whether it did
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[:0]
	for _, t := range l.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.hits = kept

	if len(l.hits) >= l.max {
		return false
	}

	l.hits = append(l.hits, now)
	return true
}
