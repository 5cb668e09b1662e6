package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound        = errors.New("session state not found")
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// Store Redis 기반 세션 상태 저장소. 지문 등 세션 상태를 JSON으로 미러링해
// 프로세스 재시작 후에도 회전 상태가 유지되게 한다.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// NewStore 세션 저장소 생성
func NewStore(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "session:"
	}
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Save 세션 상태 저장 (TTL 포함)
func (s *Store) Save(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	if err := s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}

	return nil
}

// Load 세션 상태 조회
func (s *Store) Load(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session state: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	return nil
}

// Delete 세션 상태 삭제
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

// Ping Redis 연결 확인
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Mutex Redis 기반 분산 뮤텍스. 계정당 하나의 안전 평가만 진행되도록
// 프로세스 간 직렬화에 사용한다.
type Mutex struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// LockManager 분산 뮤텍스 관리자
type LockManager struct {
	client *redis.Client
}

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

// Acquire SET NX로 원자적 락 획득 시도
func (m *LockManager) Acquire(ctx context.Context, key, value string, ttl time.Duration) (*Mutex, error) {
	ok, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &Mutex{
		client: m.client,
		key:    key,
		value:  value,
		ttl:    ttl,
	}, nil
}

// AcquireWithRetry 재시도를 통한 락 획득
func (m *LockManager) AcquireWithRetry(
	ctx context.Context,
	key, value string,
	ttl time.Duration,
	maxRetries int,
	retryInterval time.Duration,
) (*Mutex, error) {
	for i := 0; i < maxRetries; i++ {
		lock, err := m.Acquire(ctx, key, value, ttl)
		if err == nil {
			return lock, nil
		}

		if err != ErrLockNotAcquired {
			return nil, err
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	return nil, ErrLockNotAcquired
}

// Release 자신이 획득한 락만 해제 (Lua 스크립트)
func (l *Mutex) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)

	result, err := script.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}

	if result == 0 {
		return ErrLockNotHeld
	}

	return nil
}
