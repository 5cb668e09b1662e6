package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeApplicationStore 테스트별로 동작을 주입하는 저장소 페이크.
// 설정하지 않은 메서드는 빈 결과를 반환한다.
type fakeApplicationStore struct {
	countSince           func(since time.Time) (int, error)
	countSuccessfulSince func(since time.Time) (int, error)
	findRecent           func(n int) ([]*models.Application, error)
	lastSubmittedAt      func() (*time.Time, error)
	firstSubmittedAt     func() (*time.Time, error)
}

func (f *fakeApplicationStore) CountSince(since time.Time) (int, error) {
	if f.countSince != nil {
		return f.countSince(since)
	}
	return 0, nil
}

func (f *fakeApplicationStore) CountSuccessfulSince(since time.Time) (int, error) {
	if f.countSuccessfulSince != nil {
		return f.countSuccessfulSince(since)
	}
	return 0, nil
}

func (f *fakeApplicationStore) FindRecent(n int) ([]*models.Application, error) {
	if f.findRecent != nil {
		return f.findRecent(n)
	}
	return nil, nil
}

func (f *fakeApplicationStore) LastSubmittedAt() (*time.Time, error) {
	if f.lastSubmittedAt != nil {
		return f.lastSubmittedAt()
	}
	return nil, nil
}

func (f *fakeApplicationStore) FirstSubmittedAt() (*time.Time, error) {
	if f.firstSubmittedAt != nil {
		return f.firstSubmittedAt()
	}
	return nil, nil
}

func newTestEngine(apps ApplicationStore) (*SafetyEngine, *ComplianceService, *EmergencyControl, *FingerprintService) {
	emergency := NewEmergencyControl()
	compliance := NewComplianceService(emergency, nil)
	fingerprints := NewFingerprintService(models.StealthStandard, nil)

	engine := NewSafetyEngine(
		NewRateLimitService(emergency),
		fingerprints,
		NewAnalyzerService(),
		compliance,
		emergency,
		apps,
	)
	return engine, compliance, emergency, fingerprints
}

func testContext() models.ApplicationContext {
	return models.ApplicationContext{
		JobID:     "job-1",
		SessionID: "session-1",
	}
}

func TestSafetyEngine_AssessDailyLimitReached(t *testing.T) {
	store := &fakeApplicationStore{
		countSince: func(since time.Time) (int, error) { return 30, nil },
	}
	engine, _, _, _ := newTestEngine(store)

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionPauseTemporarily, assessment.Decision)
	assert.Contains(t, assessment.Reason, "Daily limit reached (30)")
	assert.Equal(t, 1.0, assessment.Confidence)

	// 다음 UTC 자정까지의 대기 시간
	assert.Greater(t, assessment.DelaySeconds, 0)
	assert.LessOrEqual(t, assessment.DelaySeconds, 86400)
}

func TestSafetyEngine_AssessEmergencyStop(t *testing.T) {
	engine, _, emergency, _ := newTestEngine(&fakeApplicationStore{})
	emergency.Trigger("manual stop")

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionEmergencyStop, assessment.Decision)
	assert.Equal(t, 1.0, assessment.Confidence)
}

func TestSafetyEngine_AssessCleanProceed(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeApplicationStore{})

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionProceed, assessment.Decision)
	assert.Greater(t, assessment.DelaySeconds, 0)
	assert.Equal(t, 0.9, assessment.Confidence)
}

func TestSafetyEngine_AssessFailsClosedOnStoreError(t *testing.T) {
	store := &fakeApplicationStore{
		countSince: func(since time.Time) (int, error) {
			return 0, errors.New("connection refused")
		},
	}
	engine, _, _, _ := newTestEngine(store)

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionPauseTemporarily, assessment.Decision)
	assert.Contains(t, assessment.Reason, "Safety assessment error")
	assert.Equal(t, 300, assessment.DelaySeconds)
}

func TestSafetyEngine_AssessFailsClosedOnPanic(t *testing.T) {
	store := &fakeApplicationStore{
		countSince: func(since time.Time) (int, error) {
			panic("unexpected nil row")
		},
	}
	engine, _, _, _ := newTestEngine(store)

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionPauseTemporarily, assessment.Decision)
	assert.Contains(t, assessment.Reason, "Safety assessment error")
	assert.Equal(t, 300, assessment.DelaySeconds)
}

func TestSafetyEngine_AssessMediumRiskDoublesDelay(t *testing.T) {
	engine, compliance, _, _ := newTestEngine(&fakeApplicationStore{})

	// medium 위반 2건 → 가중 점수 4 → 리스크 medium
	compliance.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	compliance.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	require.Equal(t, models.RiskMedium, compliance.RiskLevel())

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionProceedWithDelay, assessment.Decision)
	assert.Equal(t, 0.7, assessment.Confidence)
	assert.Greater(t, assessment.DelaySeconds, 0)
}

func TestSafetyEngine_AssessHighRiskPauses(t *testing.T) {
	engine, compliance, _, _ := newTestEngine(&fakeApplicationStore{})

	compliance.Process(testViolation(models.ViolationSuspiciousActivity, models.SeverityHigh))
	compliance.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	compliance.Process(testViolation(models.ViolationUnusualResponse, models.SeverityMedium))
	require.Equal(t, models.RiskHigh, compliance.RiskLevel())

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionPauseTemporarily, assessment.Decision)
	assert.Equal(t, 1800, assessment.DelaySeconds)
}

func TestSafetyEngine_AssessRotationNeeded(t *testing.T) {
	engine, _, _, fingerprints := newTestEngine(&fakeApplicationStore{})

	_, err := fingerprints.Generate("session-1", "")
	require.NoError(t, err)
	fingerprints.RecordResponse("session-1", models.RiskHigh)

	assessment := engine.Assess(context.Background(), testContext())

	assert.Equal(t, models.DecisionRotateSession, assessment.Decision)
	assert.NotEmpty(t, assessment.Recommendations)
}

func TestSafetyEngine_AssessStrategyChange(t *testing.T) {
	t.Run("low success rate with repeated failures", func(t *testing.T) {
		// 24시간 표본 20건 중 성공 0건
		store := &fakeApplicationStore{
			countSince: func(since time.Time) (int, error) {
				// 오늘/이번 시간 카운트는 한도 아래로 유지
				if time.Since(since) < 25*time.Hour {
					return 3, nil
				}
				return 20, nil
			},
			countSuccessfulSince: func(since time.Time) (int, error) { return 0, nil },
		}
		engine, _, _, _ := newTestEngine(store)

		appCtx := testContext()
		appCtx.PreviousFailures = 4

		assessment := engine.Assess(context.Background(), appCtx)

		assert.Equal(t, models.DecisionChangeStrategy, assessment.Decision)
		assert.Contains(t, assessment.Reason, "Very low success rate")
	})

	t.Run("too many consecutive failures", func(t *testing.T) {
		apps := make([]*models.Application, 10)
		for i := range apps {
			apps[i] = &models.Application{ID: "app", SubmittedAt: time.Now().UTC()}
		}
		store := &fakeApplicationStore{
			countSince:           func(since time.Time) (int, error) { return 3, nil },
			countSuccessfulSince: func(since time.Time) (int, error) { return 2, nil },
			findRecent:           func(n int) ([]*models.Application, error) { return apps, nil },
		}
		engine, _, _, _ := newTestEngine(store)

		assessment := engine.Assess(context.Background(), testContext())

		// 연속 실패 10건은 속도 제한(5건)에서 먼저 걸린다
		assert.Equal(t, models.DecisionPauseTemporarily, assessment.Decision)
		assert.Contains(t, assessment.Reason, "consecutive failures")
	})
}

func TestSafetyEngine_AnalyzeResponseCaptcha(t *testing.T) {
	engine, _, emergency, _ := newTestEngine(&fakeApplicationStore{})

	result := engine.AnalyzeResponse(context.Background(), "session-1", models.ResponseData{
		StatusCode: 200,
		Content:    "Please complete the reCAPTCHA to verify you are human",
	})

	assert.True(t, result.PlatformResponse.HasCaptcha)
	assert.True(t, emergency.Active(), "captcha should trigger emergency stop")

	found := false
	for _, a := range result.AdaptationsApplied {
		if a.Type == "emergency_pause" {
			found = true
		}
	}
	assert.True(t, found, "expected emergency_pause adaptation, got %v", result.AdaptationsApplied)
}

func TestSafetyEngine_AnalyzeResponseRateLimitScalesDelays(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeApplicationStore{})
	before := engine.RateLimitConfig().ScalingFactor

	result := engine.AnalyzeResponse(context.Background(), "session-1", models.ResponseData{
		StatusCode: 429,
		Content:    strings.Repeat("too many requests, slow down ", 50),
	})

	assert.True(t, result.PlatformResponse.HasRateLimitWarning)

	// slow_down 액션(1.5배)과 rate limit 경고(2배)가 모두 적용된다
	assert.InDelta(t, before*1.5*2, engine.RateLimitConfig().ScalingFactor, 1e-9)

	found := false
	for _, a := range result.AdaptationsApplied {
		if a.Type == "increase_delays" {
			found = true
		}
	}
	assert.True(t, found, "expected increase_delays adaptation")
}

func TestSafetyEngine_AnalyzeResponseRotatesOnHighRisk(t *testing.T) {
	engine, _, _, fingerprints := newTestEngine(&fakeApplicationStore{})

	_, err := fingerprints.Generate("session-1", "")
	require.NoError(t, err)
	original := fingerprints.Get("session-1")

	result := engine.AnalyzeResponse(context.Background(), "session-1", models.ResponseData{
		StatusCode: 403,
		Content:    "cloudflare security check: complete the hcaptcha challenge",
		Headers:    map[string]string{"CF-RAY": "abc"},
	})

	assert.Equal(t, models.RiskHigh, result.AntiBotDetection.RiskLevel)

	rotated := fingerprints.Get("session-1")
	assert.NotEqual(t, original.CanvasFingerprint, rotated.CanvasFingerprint,
		"high anti-bot risk should rotate the fingerprint")
}

func TestSafetyEngine_AnalyzeResponseCleanContinues(t *testing.T) {
	engine, _, emergency, _ := newTestEngine(&fakeApplicationStore{})

	result := engine.AnalyzeResponse(context.Background(), "session-1", models.ResponseData{
		StatusCode:   200,
		Content:      strings.Repeat("job listing ", 200),
		ResponseTime: 1.1,
	})

	assert.True(t, result.ContinueAllowed)
	assert.False(t, emergency.Active())
	assert.Empty(t, result.Violations)
}

func TestSafetyEngine_ReleaseRestoresConservative(t *testing.T) {
	engine, _, emergency, _ := newTestEngine(&fakeApplicationStore{})

	engine.TriggerEmergencyStop("operator requested")
	require.True(t, emergency.Active())

	engine.ReleaseEmergencyStop("operator cleared")
	assert.False(t, emergency.Active())

	status, err := engine.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SafetyLevelConservative, status.Metrics.CurrentSafetyLevel)
}

func TestSafetyEngine_UpdateRateLimitConfig(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeApplicationStore{})

	t.Run("rejects non-positive scaling factor", func(t *testing.T) {
		config := models.DefaultRateLimitConfig()
		config.ScalingFactor = 0

		err := engine.UpdateRateLimitConfig(config)
		assert.ErrorIs(t, err, ErrInvalidScalingFactor)
	})

	t.Run("rejects non-positive caps", func(t *testing.T) {
		config := models.DefaultRateLimitConfig()
		config.MaxDailyApplications = 0

		err := engine.UpdateRateLimitConfig(config)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("valid config round-trips", func(t *testing.T) {
		config := models.DefaultRateLimitConfig()
		config.MaxDailyApplications = 12
		config.ScalingFactor = 0.8

		require.NoError(t, engine.UpdateRateLimitConfig(config))
		assert.Equal(t, config, engine.RateLimitConfig())
	})
}

func TestSafetyEngine_PrepareSession(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeApplicationStore{})

	snapshot, err := engine.PrepareSession(context.Background(), "session-1", models.StealthStandard)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Fingerprint)
	assert.Equal(t, "session-1", snapshot.SessionID)
	assert.Equal(t, engine.RateLimitConfig(), snapshot.RateLimits)
}

func TestSafetyEngine_GetStatusRecommendations(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeApplicationStore{})

	status, err := engine.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, status.Recommendations)
	assert.Contains(t, status.Recommendations[0], "safe parameters")
}

func TestSafetyEngine_MonitorComplianceStatus(t *testing.T) {
	t.Run("clean metrics are compliant", func(t *testing.T) {
		store := &fakeApplicationStore{
			countSince:           func(since time.Time) (int, error) { return 10, nil },
			countSuccessfulSince: func(since time.Time) (int, error) { return 5, nil },
		}
		engine, _, _, _ := newTestEngine(store)

		status, err := engine.MonitorComplianceStatus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.ComplianceStatusCompliant, status)
	})

	t.Run("suspended triggers emergency stop", func(t *testing.T) {
		// 성공률 0 + 연속 실패 + CAPTCHA/rate limit 이력 → 경고 5 이상
		apps := make([]*models.Application, 5)
		for i := range apps {
			apps[i] = &models.Application{ID: "app", SubmittedAt: time.Now().UTC()}
		}
		store := &fakeApplicationStore{
			countSince:           func(since time.Time) (int, error) { return 10, nil },
			countSuccessfulSince: func(since time.Time) (int, error) { return 0, nil },
			findRecent:           func(n int) ([]*models.Application, error) { return apps, nil },
		}
		engine, _, emergency, _ := newTestEngine(store)

		// 분석 이력에 CAPTCHA 2건 주입
		for i := 0; i < 2; i++ {
			engine.AnalyzeResponse(context.Background(), "session-1", models.ResponseData{
				StatusCode: 200,
				Content:    "please solve the captcha " + strings.Repeat("x", 1000),
			})
		}
		emergency.Release("reset for monitor test")

		status, err := engine.MonitorComplianceStatus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.ComplianceStatusSuspended, status)
		assert.True(t, emergency.Active())
	})
}
