package service

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"go.uber.org/zap"
)

// RateLimitService 지원 속도 제한 검사와 인간 유사 딜레이 계산.
// 상태는 갖지 않고 지표/설정을 입력으로 받는다.
type RateLimitService struct {
	emergency *EmergencyControl
	logger    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewRateLimitService(emergency *EmergencyControl) *RateLimitService {
	logger, _ := zap.NewProduction()
	return &RateLimitService{
		emergency: emergency,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Check 새 지원이 허용되는지 검사. 첫 실패 조건에서 바로 반환한다.
func (s *RateLimitService) Check(metrics models.SafetyMetrics, config models.RateLimitConfig) (bool, string) {
	// 1. 긴급 정지
	if s.emergency != nil && s.emergency.Active() {
		return false, "Emergency stop is active"
	}

	// 2. 일일 한도
	if metrics.ApplicationsToday >= config.MaxDailyApplications {
		return false, fmt.Sprintf("Daily limit reached (%d)", config.MaxDailyApplications)
	}

	// 3. 시간당 한도
	if metrics.ApplicationsThisHour >= config.MaxHourlyApplications {
		return false, fmt.Sprintf("Hourly limit reached (%d)", config.MaxHourlyApplications)
	}

	// 4. 최소 간격
	if metrics.LastApplicationTime != nil {
		minInterval := time.Duration(config.MinTimeBetweenApps) * time.Second
		sinceLast := s.now().Sub(*metrics.LastApplicationTime)

		if sinceLast < minInterval {
			remaining := int((minInterval - sinceLast).Seconds())
			return false, fmt.Sprintf("Must wait %d more seconds", remaining)
		}
	}

	// 5. 연속 실패
	if metrics.ConsecutiveFailures >= 5 {
		return false, "Too many consecutive failures - automatic pause"
	}

	// 6. 성공률 하한 (표본이 있을 때만)
	if metrics.SuccessRate24h < 0.1 && metrics.ApplicationsToday > 5 {
		return false, "Success rate too low - automatic pause"
	}

	return true, "Rate limits allow application"
}

// CalculateHumanDelay 인간 유사 딜레이(초) 계산.
// base × scaling × variance × time-of-day. 고정 주기 폴링을 피하기 위한 비균일 분포.
func (s *RateLimitService) CalculateHumanDelay(config models.RateLimitConfig, metrics models.SafetyMetrics) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	scaling := config.ScalingFactor
	switch metrics.CurrentSafetyLevel {
	case models.SafetyLevelConservative:
		scaling *= 1.5
	case models.SafetyLevelAggressive:
		scaling *= 0.7
	}

	baseMin := float64(config.BaseDelayMin) * scaling
	baseMax := float64(config.BaseDelayMax) * scaling
	baseDelay := s.uniform(baseMin, baseMax)

	variance := config.HumanPatternVariance
	varianceFactor := s.uniform(1-variance, 1+variance)

	// 업무 시간(UTC 9~17)에는 더 느리게
	var timeFactor float64
	hour := s.now().Hour()
	if hour >= 9 && hour <= 17 {
		timeFactor = s.uniform(1.2, 1.8)
	} else {
		timeFactor = s.uniform(0.8, 1.2)
	}

	finalDelay := int(baseDelay * varianceFactor * timeFactor)

	s.logger.Debug("Calculated human delay",
		zap.Int("delaySeconds", finalDelay),
		zap.Float64("scaling", scaling),
		zap.Int("hour", hour))

	return finalDelay
}

func (s *RateLimitService) uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.rng.Float64()*(max-min)
}
