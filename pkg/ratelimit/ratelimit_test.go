package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !l.Allow("key-1") {
			t.Errorf("Allow() call %d = false, want true", i+1)
		}
	}

	if l.Allow("key-1") {
		t.Error("Allow() should reject after capacity exhausted")
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	l := NewLimiter(1, 1)

	if !l.Allow("key-1") {
		t.Fatal("first key should be allowed")
	}
	if l.Allow("key-1") {
		t.Error("first key should be exhausted")
	}
	if !l.Allow("key-2") {
		t.Error("second key should have its own bucket")
	}
}

func TestLimiter_AllowN(t *testing.T) {
	l := NewLimiter(5, 1)

	if !l.AllowN("key-1", 5) {
		t.Error("AllowN(5) with capacity 5 should succeed")
	}
	if l.AllowN("key-1", 1) {
		t.Error("AllowN(1) after exhaustion should fail")
	}
}

func TestLimiter_Refill(t *testing.T) {
	l := NewLimiter(1, 10)

	if !l.Allow("key-1") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("key-1") {
		t.Fatal("bucket should be empty")
	}

	// refill은 초 단위로 계산된다
	time.Sleep(1100 * time.Millisecond)

	if !l.Allow("key-1") {
		t.Error("bucket should refill after one second")
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(1, 1)

	l.Allow("key-1")
	if l.Allow("key-1") {
		t.Fatal("bucket should be exhausted")
	}

	l.Reset("key-1")
	if !l.Allow("key-1") {
		t.Error("Allow() after Reset() should succeed")
	}
}

func TestLimiter_ActiveBuckets(t *testing.T) {
	l := NewLimiter(10, 1)

	if got := l.ActiveBuckets(); got != 0 {
		t.Errorf("ActiveBuckets() = %d, want 0", got)
	}

	l.Allow("key-1")
	l.Allow("key-2")
	l.Allow("key-2")

	if got := l.ActiveBuckets(); got != 2 {
		t.Errorf("ActiveBuckets() = %d, want 2", got)
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := &Limiter{
		buckets:         make(map[string]*bucket),
		capacity:        2,
		refillRate:      100,
		cleanupInterval: 10 * time.Millisecond,
	}

	// 버킷을 가득 찬 유휴 상태로 만든다
	b := l.getBucket("key-1")
	b.mu.Lock()
	b.tokens = b.capacity
	b.lastRefill = time.Now().Add(-time.Minute)
	b.mu.Unlock()

	l.cleanup()

	if got := l.ActiveBuckets(); got != 0 {
		t.Errorf("ActiveBuckets() after cleanup = %d, want 0", got)
	}
}
