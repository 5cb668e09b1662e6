package notify

import (
	"context"
	"math/rand"
	"time"
)

// retryPolicy 재시도 정책. 지수 백오프에 지터를 더해 동시 재시도 폭주를 피한다.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	// retryable 재시도 가능한 오류인지 판정. nil이면 모든 오류를 재시도한다.
	retryable func(error) bool
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    10 * time.Second,
	}
}

// do fn을 정책에 따라 실행한다. 마지막 오류를 반환한다.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay << (attempt - 1)
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
			jitter := time.Duration(rand.Int63n(int64(delay) / 2))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if p.retryable != nil && !p.retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
