package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EmergencyControl 전역 긴급 정지 상태 머신. 활성 상태에서는 모든 평가가
// emergency_stop을 반환해야 한다.
type EmergencyControl struct {
	mu          sync.RWMutex
	active      bool
	reason      string
	triggeredAt *time.Time
	releasedAt  *time.Time
	logger      *zap.Logger
}

func NewEmergencyControl() *EmergencyControl {
	logger, _ := zap.NewProduction()
	return &EmergencyControl{logger: logger}
}

// Trigger 긴급 정지 발동. 이미 활성이면 사유만 갱신한다 (멱등).
func (e *EmergencyControl) Trigger(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	e.active = true
	e.reason = reason
	e.triggeredAt = &now

	e.logger.Error("EMERGENCY STOP TRIGGERED",
		zap.String("reason", reason))
}

// Release 긴급 정지 해제
func (e *EmergencyControl) Release(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}

	now := time.Now().UTC()
	e.active = false
	e.releasedAt = &now

	e.logger.Info("Emergency stop released",
		zap.String("reason", reason))
}

// Active 현재 활성 여부
func (e *EmergencyControl) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Reason 마지막 발동 사유
func (e *EmergencyControl) Reason() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reason
}

// TriggeredAt 마지막 발동 시각 (없으면 nil)
func (e *EmergencyControl) TriggeredAt() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.triggeredAt
}
