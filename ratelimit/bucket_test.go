package ratelimit

import (
	"math/rand"
	"testing"
	"time"
)

func TestBurstAtSameInstant(t *testing.T) {
	now := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)
	b := NewTokenBucket(60, now)
	if b.Capacity() != 6 {
		t.Fatalf("Capacity() = %v, want 6", b.Capacity())
	}
	ok, denied := 0, 0
	for i := 0; i < 10; i++ {
		if b.TryConsume(now) {
			ok++
		} else {
			denied++
		}
	}
	if ok != 6 || denied != 4 {
		t.Errorf("got %d allowed / %d denied, want 6 / 4", ok, denied)
	}
}

func TestDeniedCallDoesNotDecrement(t *testing.T) {
	now := time.Now()
	b := NewTokenBucket(60, now)
	for b.TryConsume(now) {
	}
	before := b.Tokens()
	if b.TryConsume(now) {
		t.Fatal("empty bucket admitted a call")
	}
	if b.Tokens() != before {
		t.Errorf("Tokens() = %v after denied call, want %v", b.Tokens(), before)
	}
}

func TestRefillProportionalToElapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewTokenBucket(60, start) // 1 token/s, capacity 6
	for b.TryConsume(start) {
	}
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"half a second is not enough", 500 * time.Millisecond, false},
		{"one second refills one token", time.Second, true},
		{"token was spent", time.Second, false},
	}
	for _, tt := range tests {
		if got := b.TryConsume(start.Add(tt.elapsed)); got != tt.want {
			t.Errorf("%s: TryConsume = %v, want %v (tokens=%v)", tt.name, got, tt.want, b.Tokens())
		}
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	start := time.Now()
	b := NewTokenBucket(120, start) // capacity 12
	b.TryConsume(start)
	b.TryConsume(start.Add(time.Hour))
	if b.Tokens() != b.Capacity()-1 {
		t.Errorf("Tokens() = %v after long idle + one consume, want %v", b.Tokens(), b.Capacity()-1)
	}
}

func TestTokensStayWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, rate := range []float64{10, 15, 60, 600, 3600} {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		b := NewTokenBucket(rate, now)
		for i := 0; i < 5000; i++ {
			now = now.Add(time.Duration(rng.Int63n(int64(3 * time.Second))))
			b.TryConsume(now)
			if b.Tokens() < 0 || b.Tokens() > rate/BurstDivisor {
				t.Fatalf("rate %v step %d: tokens %v outside [0, %v]", rate, i, b.Tokens(), rate/BurstDivisor)
			}
		}
	}
}

func TestClockRunningBackwardsRefillsNothing(t *testing.T) {
	now := time.Now()
	b := NewTokenBucket(60, now)
	for b.TryConsume(now) {
	}
	if b.TryConsume(now.Add(-time.Hour)) {
		t.Error("earlier timestamp should not refill the bucket")
	}
	if !b.TryConsume(now.Add(time.Second)) {
		t.Error("refill should resume from the last accepted timestamp")
	}
}
