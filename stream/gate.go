package stream

import (
	"time"

	"github.com/onnwee/tweetrelay/dedup"
	"github.com/onnwee/tweetrelay/ratelimit"
)

// Decision is the outcome of the gate for one item.
type Decision int

const (
	Publish Decision = iota
	Duplicate
	RateLimited
)

func (d Decision) String() string {
	switch d {
	case Publish:
		return "publish"
	case Duplicate:
		return "duplicate"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Gate combines the dedup cache and the token bucket. The dedup check runs
// first, so a duplicate never spends a token. A novel text is recorded even
// when the bucket rejects it; the dropped item is not retried by a later
// copy.
//
// Gate is not safe for concurrent use.
type Gate struct {
	seen   *dedup.Cache
	bucket *ratelimit.TokenBucket
}

// NewGate returns a gate with a fresh cache and a full bucket.
func NewGate(ratePerMinute float64, window time.Duration, now time.Time) *Gate {
	return &Gate{
		seen:   dedup.New(window),
		bucket: ratelimit.NewTokenBucket(ratePerMinute, now),
	}
}

// Admit decides whether text may be published at now.
func (g *Gate) Admit(text string, now time.Time) Decision {
	if !g.seen.ShouldPublish(text, now) {
		return Duplicate
	}
	g.seen.Record(text, now)
	if !g.bucket.TryConsume(now) {
		return RateLimited
	}
	return Publish
}

// Entries returns the dedup cache size.
func (g *Gate) Entries() int { return g.seen.Len() }

// Tokens returns the bucket level.
func (g *Gate) Tokens() float64 { return g.bucket.Tokens() }
