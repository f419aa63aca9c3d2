// Package server implements a token bucket that throttles inbound frames per
// connection so one chatty client cannot flood a room.
package server

import (
	"sync"
	"time"
)

type tokenBucket struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

// newTokenBucket allows burst frames at once, refilled at burst per interval.
func newTokenBucket(burst int, interval time.Duration) *tokenBucket {
	return newTokenBucketWithClock(burst, interval, time.Now)
}

func newTokenBucketWithClock(burst int, interval time.Duration, now func() time.Time) *tokenBucket {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &tokenBucket{
		tokens:    float64(burst),
		capacity:  float64(burst),
		rate:      float64(burst) / interval.Seconds(),
		lastCheck: now(),
		now:       now,
	}
}

// take consumes one token, reporting false when the bucket is empty.
func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastCheck = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
