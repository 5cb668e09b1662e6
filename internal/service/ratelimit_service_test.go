package service

import (
	"strings"
	"testing"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
)

func TestRateLimitService_Check(t *testing.T) {
	lastApp := time.Now().UTC().Add(-100 * time.Second)

	tests := []struct {
		name          string
		metrics       models.SafetyMetrics
		config        models.RateLimitConfig
		wantAllowed   bool
		wantReasonSub string
	}{
		{
			name:          "daily limit reached",
			metrics:       models.SafetyMetrics{ApplicationsToday: 30},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   false,
			wantReasonSub: "Daily limit reached (30)",
		},
		{
			name:          "daily limit exceeded",
			metrics:       models.SafetyMetrics{ApplicationsToday: 31},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   false,
			wantReasonSub: "Daily limit reached (30)",
		},
		{
			name:          "hourly limit reached",
			metrics:       models.SafetyMetrics{ApplicationsToday: 10, ApplicationsThisHour: 5},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   false,
			wantReasonSub: "Hourly limit reached (5)",
		},
		{
			name: "minimum interval not elapsed",
			metrics: models.SafetyMetrics{
				ApplicationsToday:   1,
				LastApplicationTime: &lastApp,
				SuccessRate24h:      0.5,
			},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   false,
			wantReasonSub: "Must wait",
		},
		{
			name: "too many consecutive failures",
			metrics: models.SafetyMetrics{
				ApplicationsToday:   1,
				ConsecutiveFailures: 5,
				SuccessRate24h:      0.5,
			},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   false,
			wantReasonSub: "consecutive failures",
		},
		{
			name: "low success rate with enough samples",
			metrics: models.SafetyMetrics{
				ApplicationsToday: 6,
				SuccessRate24h:    0.05,
			},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   false,
			wantReasonSub: "Success rate too low",
		},
		{
			name: "low success rate but too few samples",
			metrics: models.SafetyMetrics{
				ApplicationsToday: 3,
				SuccessRate24h:    0.0,
			},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   true,
			wantReasonSub: "Rate limits allow application",
		},
		{
			name: "all checks pass",
			metrics: models.SafetyMetrics{
				ApplicationsToday:    2,
				ApplicationsThisHour: 1,
				SuccessRate24h:       0.3,
			},
			config:        models.DefaultRateLimitConfig(),
			wantAllowed:   true,
			wantReasonSub: "Rate limits allow application",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRateLimitService(NewEmergencyControl())

			allowed, reason := s.Check(tt.metrics, tt.config)
			if allowed != tt.wantAllowed {
				t.Errorf("Check() allowed = %v, want %v (reason: %s)", allowed, tt.wantAllowed, reason)
			}
			if !strings.Contains(reason, tt.wantReasonSub) {
				t.Errorf("Check() reason = %q, want substring %q", reason, tt.wantReasonSub)
			}
		})
	}
}

func TestRateLimitService_CheckEmergencyStop(t *testing.T) {
	emergency := NewEmergencyControl()
	emergency.Trigger("test")

	s := NewRateLimitService(emergency)

	allowed, reason := s.Check(models.SafetyMetrics{}, models.DefaultRateLimitConfig())
	if allowed {
		t.Error("Check() should reject while emergency stop is active")
	}
	if reason != "Emergency stop is active" {
		t.Errorf("Check() reason = %q, want %q", reason, "Emergency stop is active")
	}
}

// 어떤 안전 레벨과 시각에서도 딜레이는 유계여야 한다
func TestRateLimitService_CalculateHumanDelayBounds(t *testing.T) {
	config := models.DefaultRateLimitConfig()

	levels := []models.SafetyLevel{
		models.SafetyLevelConservative,
		models.SafetyLevelNormal,
		models.SafetyLevelAggressive,
	}

	for _, level := range levels {
		scaling := config.ScalingFactor
		switch level {
		case models.SafetyLevelConservative:
			scaling *= 1.5
		case models.SafetyLevelAggressive:
			scaling *= 0.7
		}

		lower := float64(config.BaseDelayMin) * scaling * (1 - config.HumanPatternVariance) * 0.8
		upper := float64(config.BaseDelayMax) * scaling * (1 + config.HumanPatternVariance) * 1.8

		s := NewRateLimitService(nil)
		metrics := models.SafetyMetrics{CurrentSafetyLevel: level}

		for i := 0; i < 200; i++ {
			delay := s.CalculateHumanDelay(config, metrics)

			if float64(delay) < lower-1 || float64(delay) > upper {
				t.Fatalf("CalculateHumanDelay() = %d out of bounds [%.1f, %.1f] for level %s",
					delay, lower, upper, level)
			}
			if delay <= 0 {
				t.Fatalf("CalculateHumanDelay() = %d, want positive", delay)
			}
		}
	}
}

func TestRateLimitService_DelayScalesWithSafetyLevel(t *testing.T) {
	config := models.DefaultRateLimitConfig()
	s := NewRateLimitService(nil)

	// 고정 시각으로 time-of-day 요인 고정 (업무 시간 밖)
	s.now = func() time.Time {
		return time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	}

	sum := func(level models.SafetyLevel) int {
		total := 0
		for i := 0; i < 300; i++ {
			total += s.CalculateHumanDelay(config, models.SafetyMetrics{CurrentSafetyLevel: level})
		}
		return total
	}

	conservative := sum(models.SafetyLevelConservative)
	aggressive := sum(models.SafetyLevelAggressive)

	if conservative <= aggressive {
		t.Errorf("conservative total delay (%d) should exceed aggressive total delay (%d)",
			conservative, aggressive)
	}
}
