package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpeakLimiter_NilAllowsAll(t *testing.T) {
	var l *SpeakLimiter
	ok, wait := l.Allow("u1")
	assert.True(t, ok)
	assert.Zero(t, wait)
	assert.Nil(t, NewSpeakLimiter(0, 3))
}

func TestSpeakLimiter_Burst(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewSpeakLimiter(6, 2)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("u1")
		assert.True(t, ok, "burst request %d", i)
	}

	ok, wait := l.Allow("u1")
	assert.False(t, ok)
	assert.InDelta(t, float64(10*time.Second), float64(wait), float64(time.Millisecond))

	// a denied request must not consume the next token
	now = now.Add(11 * time.Second)
	ok, _ = l.Allow("u1")
	assert.True(t, ok)
}

func TestSpeakLimiter_PrunesIdleUsers(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewSpeakLimiter(6, 1)
	l.now = func() time.Time { return now }

	l.Allow("u1")
	l.Allow("u2")
	assert.Equal(t, 2, l.Len())

	now = now.Add(limiterIdleTTL + time.Minute)
	l.Allow("u3")
	assert.Equal(t, 1, l.Len())
}
