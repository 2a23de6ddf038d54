// Package middleware provides HTTP middleware for the RingForge gateway and control plane.
package middleware

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 5)

	for i := 0; i < 5; i++ {
		if !rl.getLimiter("203.0.113.5").Allow() {
			t.Errorf("request %d should have been allowed within burst", i+1)
		}
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	limiter := rl.getLimiter("203.0.113.5")

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d should have succeeded", i+1)
		}
	}

	if limiter.Allow() {
		t.Error("request past the burst should have been rate limited")
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(50, 1) // 50/s refill, burst of 1
	limiter := rl.getLimiter("203.0.113.5")

	if !limiter.Allow() {
		t.Fatal("first request should have succeeded")
	}
	if limiter.Allow() {
		t.Fatal("second immediate request should have been rate limited")
	}

	time.Sleep(40 * time.Millisecond)

	if !limiter.Allow() {
		t.Error("request after refill interval should have succeeded")
	}
}

func TestRateLimiter_SeparateKeysIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.getLimiter("203.0.113.5").Allow() {
		t.Fatal("first IP's first request should have succeeded")
	}
	if !rl.getLimiter("198.51.100.9").Allow() {
		t.Error("a different IP should have its own independent bucket")
	}
}
