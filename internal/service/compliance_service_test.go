package service

import (
	"testing"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViolation(vtype models.ViolationType, severity models.Severity) *models.PolicyViolation {
	return &models.PolicyViolation{
		ID:            "test-violation",
		ViolationType: vtype,
		Severity:      severity,
		Description:   "test violation",
		DetectedAt:    time.Now().UTC(),
		Evidence:      map[string]interface{}{},
	}
}

// critical 위반은 유형과 무관하게 emergency_stop이어야 한다
func TestComplianceService_CriticalAlwaysEmergencyStop(t *testing.T) {
	types := []models.ViolationType{
		models.ViolationRateLimitExceeded,
		models.ViolationSuspiciousActivity,
		models.ViolationCaptchaTriggered,
		models.ViolationAccountWarning,
		models.ViolationUnusualResponse,
		models.ViolationSuccessRateLow,
	}

	for _, vtype := range types {
		emergency := NewEmergencyControl()
		s := NewComplianceService(emergency, nil)

		action := s.Process(testViolation(vtype, models.SeverityCritical))

		assert.Equal(t, models.ActionEmergencyStop, action, "type %s", vtype)
		assert.True(t, emergency.Active(), "type %s should trigger emergency stop", vtype)
	}
}

func TestComplianceService_ActionPriorityTable(t *testing.T) {
	tests := []struct {
		name       string
		vtype      models.ViolationType
		severity   models.Severity
		wantAction models.ComplianceAction
	}{
		{
			name:       "high captcha pauses",
			vtype:      models.ViolationCaptchaTriggered,
			severity:   models.SeverityHigh,
			wantAction: models.ActionPauseTemporarily,
		},
		{
			name:       "high rate limit pauses",
			vtype:      models.ViolationRateLimitExceeded,
			severity:   models.SeverityHigh,
			wantAction: models.ActionPauseTemporarily,
		},
		{
			name:       "high other type slows down",
			vtype:      models.ViolationSuspiciousActivity,
			severity:   models.SeverityHigh,
			wantAction: models.ActionSlowDown,
		},
		{
			name:       "isolated medium slows down",
			vtype:      models.ViolationUnusualResponse,
			severity:   models.SeverityMedium,
			wantAction: models.ActionSlowDown,
		},
		{
			name:       "low continues",
			vtype:      models.ViolationUnusualResponse,
			severity:   models.SeverityLow,
			wantAction: models.ActionContinue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewComplianceService(NewEmergencyControl(), nil)

			action := s.Process(testViolation(tt.vtype, tt.severity))

			assert.Equal(t, tt.wantAction, action)
		})
	}
}

// 최근 5건 중 medium 이상이 3건이면 일시 정지로 격상
func TestComplianceService_MediumEscalation(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)

	first := s.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	assert.Equal(t, models.ActionSlowDown, first)

	second := s.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	assert.Equal(t, models.ActionSlowDown, second)

	third := s.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	assert.Equal(t, models.ActionPauseTemporarily, third)
}

func TestComplianceService_ComplianceScoreBounds(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)

	// 위반이 없으면 1.0
	assert.Equal(t, 1.0, s.Metrics().ComplianceScore)

	severities := []models.Severity{
		models.SeverityLow,
		models.SeverityMedium,
		models.SeverityHigh,
		models.SeverityCritical,
	}

	for _, severity := range severities {
		s.Process(testViolation(models.ViolationUnusualResponse, severity))

		score := s.Metrics().ComplianceScore
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestComplianceService_RiskLevelFromWeightedSum(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)
	assert.Equal(t, models.RiskLow, s.RiskLevel())

	// medium 2건 = 점수 4 → medium
	s.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	s.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	assert.Equal(t, models.RiskMedium, s.RiskLevel())

	// high 1건 추가 = 점수 7 → high
	s.Process(testViolation(models.ViolationSuspiciousActivity, models.SeverityHigh))
	assert.Equal(t, models.RiskHigh, s.RiskLevel())

	// critical 1건 추가 = 점수 11 → critical
	s.Process(testViolation(models.ViolationAccountWarning, models.SeverityCritical))
	assert.Equal(t, models.RiskCritical, s.RiskLevel())
}

func TestComplianceService_PolicyAdaptation(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)
	baseline := s.Policy()

	// 같은 유형 3건째에 정책이 조여진다
	for i := 0; i < 3; i++ {
		s.Process(testViolation(models.ViolationCaptchaTriggered, models.SeverityHigh))
	}

	adapted := s.Policy()
	assert.Equal(t, baseline.CaptchaPauseDuration+600, adapted.CaptchaPauseDuration)
	assert.GreaterOrEqual(t, s.Metrics().PolicyAdaptations, 1)
}

func TestComplianceService_CaptchaPauseCapped(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)

	for i := 0; i < 12; i++ {
		s.Process(testViolation(models.ViolationCaptchaTriggered, models.SeverityHigh))
	}

	assert.LessOrEqual(t, s.Policy().CaptchaPauseDuration, 7200)
}

func TestComplianceService_ContinuationAllowed(t *testing.T) {
	t.Run("no violations allows continuation", func(t *testing.T) {
		s := NewComplianceService(NewEmergencyControl(), nil)
		assert.True(t, s.ContinuationAllowed(nil))
	})

	t.Run("single high violation still allows continuation", func(t *testing.T) {
		s := NewComplianceService(NewEmergencyControl(), nil)
		cycle := []*models.PolicyViolation{
			testViolation(models.ViolationCaptchaTriggered, models.SeverityHigh),
		}
		assert.True(t, s.ContinuationAllowed(cycle))
	})

	t.Run("two high violations block continuation", func(t *testing.T) {
		s := NewComplianceService(NewEmergencyControl(), nil)
		cycle := []*models.PolicyViolation{
			testViolation(models.ViolationCaptchaTriggered, models.SeverityHigh),
			testViolation(models.ViolationRateLimitExceeded, models.SeverityHigh),
		}
		assert.False(t, s.ContinuationAllowed(cycle))
	})

	t.Run("any critical violation blocks continuation", func(t *testing.T) {
		s := NewComplianceService(NewEmergencyControl(), nil)
		cycle := []*models.PolicyViolation{
			testViolation(models.ViolationAccountWarning, models.SeverityCritical),
		}
		assert.False(t, s.ContinuationAllowed(cycle))
	})

	t.Run("five violations within the hour block continuation", func(t *testing.T) {
		s := NewComplianceService(NewEmergencyControl(), nil)
		for i := 0; i < 5; i++ {
			s.Process(testViolation(models.ViolationUnusualResponse, models.SeverityLow))
		}
		assert.False(t, s.ContinuationAllowed(nil))
	})
}

func TestComplianceService_UpdatePolicy(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)

	t.Run("non-monotonic thresholds rejected", func(t *testing.T) {
		policy := models.DefaultCompliancePolicy()
		policy.SeverityThresholds = models.SeverityThresholds{
			Critical: 10, High: 3, Medium: 5, Low: 1,
		}

		err := s.UpdatePolicy(policy)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidThresholds)

		// 부분 반영 없음
		assert.Equal(t, models.DefaultCompliancePolicy().SeverityThresholds, s.Policy().SeverityThresholds)
	})

	t.Run("valid thresholds round-trip", func(t *testing.T) {
		policy := models.DefaultCompliancePolicy()
		policy.SeverityThresholds = models.SeverityThresholds{
			Critical: 3, High: 8, Medium: 12, Low: 18,
		}

		require.NoError(t, s.UpdatePolicy(policy))
		assert.Equal(t, policy.SeverityThresholds, s.Policy().SeverityThresholds)
	})
}

func TestComplianceService_ResetViolations(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)

	s.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	s.Process(testViolation(models.ViolationCaptchaTriggered, models.SeverityHigh))
	require.NotEqual(t, 0, s.Metrics().TotalViolations)

	t.Run("reset by type keeps other types", func(t *testing.T) {
		captcha := models.ViolationCaptchaTriggered
		s.ResetViolations(&captcha)

		recent := s.RecentViolations(0)
		for _, v := range recent {
			assert.NotEqual(t, models.ViolationCaptchaTriggered, v.ViolationType)
		}
	})

	t.Run("full reset clears metrics and restores score", func(t *testing.T) {
		s.ResetViolations(nil)

		metrics := s.Metrics()
		assert.Equal(t, 0, metrics.TotalViolations)
		assert.Equal(t, 0, metrics.ViolationsToday)
		assert.Nil(t, metrics.LastViolationTime)
		assert.Equal(t, 1.0, metrics.ComplianceScore)
		assert.Equal(t, models.RiskLow, metrics.CurrentRiskLevel)
	})
}

func TestComplianceService_DetectViolations(t *testing.T) {
	s := NewComplianceService(NewEmergencyControl(), nil)

	t.Run("account warning is critical", func(t *testing.T) {
		violations := s.DetectViolations(models.ResponseData{
			StatusCode: 200,
			Content:    "Your account warning: please review our terms of service",
		}, 0.5, 0)

		require.NotEmpty(t, violations)
		found := false
		for _, v := range violations {
			if v.ViolationType == models.ViolationAccountWarning {
				found = true
				assert.Equal(t, models.SeverityCritical, v.Severity)
			}
		}
		assert.True(t, found, "expected account_warning violation")
	})

	t.Run("rate limit headers are medium severity", func(t *testing.T) {
		violations := s.DetectViolations(models.ResponseData{
			StatusCode: 200,
			Content:    string(make([]byte, 600)),
			Headers:    map[string]string{"Retry-After": "60"},
		}, 0.5, 0)

		found := false
		for _, v := range violations {
			if v.ViolationType == models.ViolationRateLimitExceeded {
				found = true
				assert.Equal(t, models.SeverityMedium, v.Severity)
			}
		}
		assert.True(t, found, "expected rate_limit_exceeded violation")
	})

	t.Run("low success rate needs minimum sample", func(t *testing.T) {
		none := s.DetectViolations(models.ResponseData{
			StatusCode: 200,
			Content:    string(make([]byte, 600)),
		}, 0.01, 3)
		for _, v := range none {
			assert.NotEqual(t, models.ViolationSuccessRateLow, v.ViolationType)
		}

		some := s.DetectViolations(models.ResponseData{
			StatusCode: 200,
			Content:    string(make([]byte, 600)),
		}, 0.01, 10)
		found := false
		for _, v := range some {
			if v.ViolationType == models.ViolationSuccessRateLow {
				found = true
			}
		}
		assert.True(t, found, "expected success_rate_low violation")
	})
}
