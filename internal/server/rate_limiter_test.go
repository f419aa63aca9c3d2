package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucketBurstThenRefill(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	bucket := newTokenBucketWithClock(3, time.Second, clock.now)

	for i := 0; i < 3; i++ {
		assert.True(t, bucket.take(), "token %d", i)
	}
	assert.False(t, bucket.take())

	clock.advance(time.Second / 2)
	assert.True(t, bucket.take())
	assert.False(t, bucket.take())

	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, bucket.take(), "refilled token %d", i)
	}
	assert.False(t, bucket.take(), "refill must not exceed capacity")
}

func TestTokenBucketInvalidSettings(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	bucket := newTokenBucketWithClock(0, 0, clock.now)

	assert.True(t, bucket.take())
	assert.False(t, bucket.take())
	clock.advance(time.Second)
	assert.True(t, bucket.take())
}

func TestTokenBucketClockGoingBackwards(t *testing.T) {
	clock := &manualClock{t: time.Unix(100, 0)}
	bucket := newTokenBucketWithClock(1, time.Second, clock.now)

	assert.True(t, bucket.take())
	clock.advance(-time.Minute)
	assert.False(t, bucket.take())
}
