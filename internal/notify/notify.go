package notify

import (
	"context"
	"time"
)

// Event 운영자 알림 이벤트. 긴급 정지와 high/critical 리스크 전환에만 발행된다.
type Event struct {
	Type       string                 `json:"type"`
	Severity   string                 `json:"severity"`
	Message    string                 `json:"message"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// Notifier 알림 전송 인터페이스. 전송 실패는 호출자가 로깅만 하고 전파하지 않는다.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
