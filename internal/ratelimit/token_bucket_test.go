package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketBurstThenDeny(t *testing.T) {
	tb := NewTokenBucket(3, 0.001)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if tb.Allow() {
		t.Fatal("request allowed past burst capacity")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(1, 100) // refills a full token in 10ms

	if !tb.Allow() {
		t.Fatal("first request denied")
	}
	if tb.Allow() {
		t.Fatal("second request allowed before refill")
	}

	time.Sleep(20 * time.Millisecond)
	if !tb.Allow() {
		t.Fatal("request denied after refill window")
	}
}

func TestTokenBucketReset(t *testing.T) {
	tb := NewTokenBucket(2, 0.001)
	tb.Allow()
	tb.Allow()

	tb.Reset()
	if !tb.Allow() {
		t.Fatal("request denied after reset")
	}
}

func TestTokenBucketRemainingCapped(t *testing.T) {
	tb := NewTokenBucket(5, 1000)
	time.Sleep(10 * time.Millisecond)
	if got := tb.Remaining(); got > 5 {
		t.Fatalf("remaining = %f exceeds capacity", got)
	}
}
