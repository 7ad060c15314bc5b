// Package ratelimit implements the token bucket that gates how fast feed items
// are published to chat.
package ratelimit

import "time"

// BurstDivisor fixes the bucket capacity at ratePerMinute/BurstDivisor, i.e. a
// six second burst at the configured rate.
const BurstDivisor = 10

// TokenBucket refills continuously at ratePerMinute/60 tokens per second up
// to its capacity. It starts full.
//
// A TokenBucket is not safe for concurrent use; the stream ingestor is its only
// writer.
type TokenBucket struct {
	capacity   float64
	ratePerSec float64
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket returns a full bucket for the given per-minute rate.
func NewTokenBucket(ratePerMinute float64, now time.Time) *TokenBucket {
	capacity := ratePerMinute / BurstDivisor
	if capacity < 0 {
		capacity = 0
	}
	return &TokenBucket{
		capacity:   capacity,
		ratePerSec: ratePerMinute / 60,
		tokens:     capacity,
		lastRefill: now,
	}
}

// TryConsume refills the bucket for the time elapsed since the last call and
// takes one token if at least one is available.
func (b *TokenBucket) TryConsume(now time.Time) bool {
	b.refill(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the current token count without refilling.
func (b *TokenBucket) Tokens() float64 { return b.tokens }

// Capacity returns the maximum token count.
func (b *TokenBucket) Capacity() float64 { return b.capacity }

func (b *TokenBucket) refill(now time.Time) {
	// now must not run backwards; a stale reading refills nothing.
	if now.Before(b.lastRefill) {
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.ratePerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
