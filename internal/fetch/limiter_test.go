package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_Allow(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	current := base

	l := NewLimiter(3, time.Minute)
	l.now = func() time.Time { return current }

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "fourth request in the window must be rejected")

	// Advance past the window: the budget refills
	current = base.Add(time.Minute + time.Second)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_SlidingWindow(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	current := base

	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return current }

	assert.True(t, l.Allow())

	current = base.Add(30 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	// First hit expires at base+60s, second still counts
	current = base.Add(61 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_RejectionDoesNotConsume(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	current := base

	l := NewLimiter(1, time.Minute)
	l.now = func() time.Time { return current }

	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.False(t, l.Allow())

	current = base.Add(time.Minute + time.Millisecond)
	assert.True(t, l.Allow(), "rejected attempts must not extend the window")
}
