package ratelimit

import (
	"sync"
	"time"
)

// bucket 토큰 버킷 하나. 마지막 충전 시각 기준으로 경과 시간만큼 충전한다.
type bucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
}

func newBucket(capacity, refillRate int64) *bucket {
	return &bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (b *bucket) allow(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= n {
		b.tokens -= n
		return true
	}

	return false
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)

	tokensToAdd := int64(elapsed.Seconds()) * b.refillRate
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}
}

// Limiter 키별(운영자/IP) 토큰 버킷 관리
type Limiter struct {
	mu              sync.RWMutex
	buckets         map[string]*bucket
	capacity        int64
	refillRate      int64
	cleanupInterval time.Duration
}

// NewLimiter 리미터 생성. 유휴 버킷은 백그라운드에서 정리된다.
func NewLimiter(capacity, refillRate int64) *Limiter {
	l := &Limiter{
		buckets:         make(map[string]*bucket),
		capacity:        capacity,
		refillRate:      refillRate,
		cleanupInterval: 10 * time.Minute,
	}

	go l.cleanupLoop()

	return l
}

// Allow 키의 요청 1건 허용 여부
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN 키의 요청 n건 허용 여부
func (l *Limiter) AllowN(key string, n int64) bool {
	return l.getBucket(key).allow(n)
}

func (l *Limiter) getBucket(key string) *bucket {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// 쓰기 락 획득 후 재확인
	b, exists = l.buckets[key]
	if exists {
		return b
	}

	b = newBucket(l.capacity, l.refillRate)
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		l.cleanup()
	}
}

// cleanup 가득 찬 채로 오래 사용되지 않은 버킷 제거
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.buckets {
		b.mu.Lock()
		if b.tokens == b.capacity && now.Sub(b.lastRefill) > l.cleanupInterval {
			delete(l.buckets, key)
		}
		b.mu.Unlock()
	}
}

// Reset 키의 제한 초기화
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// ActiveBuckets 활성 버킷 수 (관측용)
func (l *Limiter) ActiveBuckets() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
