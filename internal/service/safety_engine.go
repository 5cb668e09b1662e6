package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/internal/notify"
	"github.com/applyguard/applyguard-backend/pkg/sessionstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApplicationStore 지원 기록 조회 인터페이스. 카운터는 메모리 감산이 아니라
// 매 검사마다 영속 기록에서 재계산한다.
type ApplicationStore interface {
	CountSince(since time.Time) (int, error)
	CountSuccessfulSince(since time.Time) (int, error)
	FindRecent(n int) ([]*models.Application, error)
	LastSubmittedAt() (*time.Time, error)
	FirstSubmittedAt() (*time.Time, error)
}

// SafetyEngine 안전 평가 오케스트레이터. 계정당 하나의 인스턴스를 두고
// Assess 호출은 내부 뮤텍스로 직렬화된다.
type SafetyEngine struct {
	mu sync.Mutex

	config  models.RateLimitConfig
	metrics models.SafetyMetrics

	rateLimiter  *RateLimitService
	fingerprints *FingerprintService
	analyzer     *AnalyzerService
	compliance   *ComplianceService
	emergency    *EmergencyControl

	apps      ApplicationStore
	notifiers []notify.Notifier

	locks   *sessionstore.LockManager // nil이면 단일 인스턴스 가정
	lockKey string

	lastNotifiedRisk models.RiskLevel

	logger *zap.Logger
	now    func() time.Time
}

func NewSafetyEngine(
	rateLimiter *RateLimitService,
	fingerprints *FingerprintService,
	analyzer *AnalyzerService,
	compliance *ComplianceService,
	emergency *EmergencyControl,
	apps ApplicationStore,
	notifiers ...notify.Notifier,
) *SafetyEngine {
	logger, _ := zap.NewProduction()

	engine := &SafetyEngine{
		config:           models.DefaultRateLimitConfig(),
		metrics:          models.NewSafetyMetrics(),
		rateLimiter:      rateLimiter,
		fingerprints:     fingerprints,
		analyzer:         analyzer,
		compliance:       compliance,
		emergency:        emergency,
		apps:             apps,
		notifiers:        notifiers,
		lastNotifiedRisk: models.RiskLow,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}

	// slow_down 액션이 엔진의 scaling factor를 올리도록 연결
	if compliance != nil {
		compliance.SetRateScaler(engine)
	}

	return engine
}

// SetLockManager 다중 인스턴스 배포에서 계정당 평가를 직렬화하는
// 분산 락 연결
func (e *SafetyEngine) SetLockManager(locks *sessionstore.LockManager, accountID string) {
	e.locks = locks
	e.lockKey = fmt.Sprintf("assess:lock:%s", accountID)
}

// Assess 지원 시도 전 종합 안전 평가. 어떤 입력/내부 오류에도 패닉을
// 전파하지 않고 fail-closed(일시 정지)로 수렴한다.
func (e *SafetyEngine) Assess(ctx context.Context, appCtx models.ApplicationContext) (assessment models.SafetyAssessment) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Safety assessment panicked", zap.Any("panic", r))
			assessment = models.SafetyAssessment{
				Decision:        models.DecisionPauseTemporarily,
				Reason:          fmt.Sprintf("Safety assessment error: %v", r),
				DelaySeconds:    300,
				Confidence:      1.0,
				Recommendations: []string{},
			}
		}
	}()

	// 다중 인스턴스 배포에서는 계정당 평가를 분산 락으로 직렬화한다.
	// 락 획득 실패도 fail-closed.
	if e.locks != nil {
		lock, err := e.locks.AcquireWithRetry(ctx, e.lockKey, uuid.New().String(),
			30*time.Second, 3, 200*time.Millisecond)
		if err != nil {
			e.logger.Error("Failed to acquire assessment lock", zap.Error(err))
			return models.SafetyAssessment{
				Decision:        models.DecisionPauseTemporarily,
				Reason:          fmt.Sprintf("Safety assessment error: %v", err),
				DelaySeconds:    300,
				Confidence:      1.0,
				Recommendations: []string{},
			}
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				e.logger.Warn("Failed to release assessment lock", zap.Error(err))
			}
		}()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 진입 시 긴급 정지 재확인 (4단계에서 한 번 더 본다)
	if e.emergency.Active() {
		return e.emergencyAssessment()
	}

	if err := e.refreshMetricsLocked(); err != nil {
		e.logger.Error("Failed to refresh safety metrics", zap.Error(err))
		return models.SafetyAssessment{
			Decision:        models.DecisionPauseTemporarily,
			Reason:          fmt.Sprintf("Safety assessment error: %v", err),
			DelaySeconds:    300,
			Confidence:      1.0,
			Recommendations: []string{},
		}
	}

	// 1. 속도 제한
	allowed, rateReason := e.rateLimiter.Check(e.metrics, e.config)
	if !allowed {
		result := models.SafetyAssessment{
			Decision:        models.DecisionPauseTemporarily,
			Reason:          fmt.Sprintf("Rate limit check failed: %s", rateReason),
			DelaySeconds:    e.rateLimitDelay(rateReason),
			Confidence:      1.0,
			Recommendations: []string{},
		}
		if result.Reason == "Rate limit check failed: Emergency stop is active" {
			result.Decision = models.DecisionEmergencyStop
			result.DelaySeconds = 0
		}
		return result
	}

	riskLevel := e.compliance.RiskLevel()

	// 2. 컴플라이언스 리스크 critical
	if riskLevel == models.RiskCritical {
		result := models.SafetyAssessment{
			Decision:        models.DecisionEmergencyStop,
			Reason:          "Critical compliance risk level detected",
			Confidence:      1.0,
			Recommendations: []string{},
		}
		e.notifyLocked("compliance_risk", "critical", result.Reason, nil)
		return result
	}

	// 3. 컴플라이언스 리스크 high
	if riskLevel == models.RiskHigh {
		return models.SafetyAssessment{
			Decision:        models.DecisionPauseTemporarily,
			Reason:          "High compliance risk level - temporary pause recommended",
			DelaySeconds:    1800,
			Confidence:      1.0,
			Recommendations: []string{},
		}
	}

	// 4. 긴급 정지 플래그
	if e.emergency.Active() {
		return e.emergencyAssessment()
	}

	// 5. 세션 회전 필요
	if e.fingerprints != nil {
		health := e.fingerprints.Health(appCtx.SessionID)
		if health.NeedsRotation {
			return models.SafetyAssessment{
				Decision:   models.DecisionRotateSession,
				Reason:     "Browser session needs rotation for safety",
				Confidence: 1.0,
				Recommendations: []string{
					"Create new browser session",
					"Apply fresh fingerprint",
				},
			}
		}
	}

	// 6. 전략 변경 휴리스틱
	if change := e.assessStrategyChange(appCtx); change != nil {
		return *change
	}

	humanDelay := e.rateLimiter.CalculateHumanDelay(e.config, e.metrics)

	// 7. 컴플라이언스 리스크 medium → 딜레이 2배
	if riskLevel == models.RiskMedium {
		return models.SafetyAssessment{
			Decision:     models.DecisionProceedWithDelay,
			Reason:       "Medium risk level - proceeding with increased delay",
			DelaySeconds: humanDelay * 2,
			Confidence:   0.7,
			Recommendations: []string{
				"Monitor response closely",
				"Be ready to pause if issues arise",
			},
		}
	}

	// 8. 정상 진행
	return models.SafetyAssessment{
		Decision:        models.DecisionProceed,
		Reason:          "All safety checks passed",
		DelaySeconds:    humanDelay,
		Confidence:      0.9,
		Recommendations: []string{"Continue normal operation"},
	}
}

func (e *SafetyEngine) emergencyAssessment() models.SafetyAssessment {
	return models.SafetyAssessment{
		Decision:        models.DecisionEmergencyStop,
		Reason:          "Emergency stop is currently active",
		Confidence:      1.0,
		Recommendations: []string{},
	}
}

// assessStrategyChange 전략 변경이 필요한지 판단. 호출자가 락을 잡는다.
func (e *SafetyEngine) assessStrategyChange(appCtx models.ApplicationContext) *models.SafetyAssessment {
	if e.metrics.SuccessRate24h < 0.05 && appCtx.PreviousFailures > 3 {
		return &models.SafetyAssessment{
			Decision:   models.DecisionChangeStrategy,
			Reason:     "Very low success rate with multiple failures",
			Confidence: 1.0,
			Recommendations: []string{
				"Switch to different job search keywords",
				"Adjust proposal template",
				"Change application timing",
			},
		}
	}

	if e.metrics.ConsecutiveFailures > 8 {
		return &models.SafetyAssessment{
			Decision:   models.DecisionChangeStrategy,
			Reason:     "Too many consecutive failures",
			Confidence: 1.0,
			Recommendations: []string{
				"Review and update job filtering criteria",
				"Analyze failed applications for patterns",
				"Consider temporary pause for strategy review",
			},
		}
	}

	return nil
}

var waitSecondsPattern = regexp.MustCompile(`(\d+)`)

// rateLimitDelay 거절 사유별 대기 시간 계산. 호출자가 락을 잡는다.
func (e *SafetyEngine) rateLimitDelay(reason string) int {
	lower := strings.ToLower(reason)
	now := e.now()

	switch {
	case strings.Contains(lower, "daily limit"):
		nextDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		return int(nextDay.Sub(now).Seconds())

	case strings.Contains(lower, "hourly limit"):
		nextHour := now.Truncate(time.Hour).Add(time.Hour)
		return int(nextHour.Sub(now).Seconds())

	case strings.Contains(lower, "must wait"):
		if match := waitSecondsPattern.FindString(reason); match != "" {
			if seconds, err := strconv.Atoi(match); err == nil {
				return seconds
			}
		}
		return 300

	default:
		return 600
	}
}

// AnalyzeResponse 플랫폼 응답 분석 후 적응 조치 적용.
// 오류 시 continue_allowed=false로 fail-closed.
func (e *SafetyEngine) AnalyzeResponse(ctx context.Context, sessionID string, data models.ResponseData) models.AnalysisResult {
	platformResponse := e.analyzer.Analyze(data)
	antiBot := e.analyzer.DetectAntiBot(data)

	e.mu.Lock()
	successRate := e.metrics.SuccessRate24h
	applicationsToday := e.metrics.ApplicationsToday
	e.mu.Unlock()

	// 위반 탐지 → 순서대로 처리
	violations := e.compliance.DetectViolations(data, successRate, applicationsToday)
	for _, v := range violations {
		e.compliance.Process(v)
	}
	continueAllowed := e.compliance.ContinuationAllowed(violations)

	// 세션 추적
	if e.fingerprints != nil {
		e.fingerprints.RecordResponse(sessionID, antiBot.RiskLevel)
	}

	// 적응 조치
	adaptations := []models.Adaptation{}

	if platformResponse.HasCaptcha {
		e.emergency.Trigger("CAPTCHA detected")
		adaptations = append(adaptations, models.Adaptation{
			Type:   "emergency_pause",
			Reason: "CAPTCHA detected",
		})
	}

	if e.analyzer.UnusualPatternDetected() && !e.emergency.Active() {
		e.emergency.Trigger("Multiple unusual responses detected")
		adaptations = append(adaptations, models.Adaptation{
			Type:   "emergency_pause",
			Reason: "Multiple unusual responses detected",
		})
	}

	if platformResponse.HasRateLimitWarning {
		e.ScaleDelays(2.0, "Rate limit warning detected")
		adaptations = append(adaptations, models.Adaptation{
			Type:   "increase_delays",
			Reason: "Rate limit warning detected",
		})
	}

	if antiBot.RiskLevel == models.RiskHigh && e.fingerprints != nil {
		if _, err := e.fingerprints.Rotate(sessionID, ""); err != nil {
			e.logger.Warn("Failed to rotate fingerprint",
				zap.String("sessionId", sessionID),
				zap.Error(err))
		} else {
			adaptations = append(adaptations, models.Adaptation{
				Type:   "rotate_fingerprint",
				Reason: "High anti-bot risk detected",
			})
		}
	}

	if len(violations) > 0 {
		adaptations = append(adaptations, models.Adaptation{
			Type:   "compliance_action",
			Reason: fmt.Sprintf("Compliance violations detected: %d", len(violations)),
		})
	}

	e.mu.Lock()
	if e.emergency.Active() {
		e.metrics.CurrentSafetyLevel = models.SafetyLevelEmergencyStop
		e.notifyLocked("emergency_stop", "critical", e.emergency.Reason(), map[string]interface{}{
			"sessionId":  sessionID,
			"statusCode": data.StatusCode,
		})
	}
	e.checkRiskTransitionLocked()
	e.mu.Unlock()

	result := models.AnalysisResult{
		ContinueAllowed:    continueAllowed,
		PlatformResponse:   platformResponse,
		AntiBotDetection:   antiBot,
		AdaptationsApplied: adaptations,
	}

	result.Violations = make([]models.PolicyViolation, 0, len(violations))
	for _, v := range violations {
		result.Violations = append(result.Violations, *v)
	}

	if e.fingerprints != nil {
		health := e.fingerprints.Health(sessionID)
		result.SessionHealth = &health
	}

	return result
}

// ScaleDelays slow_down 류 적응이 scaling factor를 키울 때 사용.
// RateScaler 구현.
func (e *SafetyEngine) ScaleDelays(factor float64, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.config.ScalingFactor *= factor
	e.logger.Info("Scaled automation delays",
		zap.Float64("factor", factor),
		zap.Float64("scalingFactor", e.config.ScalingFactor),
		zap.String("reason", reason))
}

// PrepareSession 세션에 적용할 지문과 안전 설정 반환. 마지막 회전 후
// 2시간이 지났으면 지문을 회전한다.
func (e *SafetyEngine) PrepareSession(ctx context.Context, sessionID string, level models.StealthLevel) (*models.SafetyConfigSnapshot, error) {
	if e.fingerprints == nil {
		return nil, ErrSessionNotFound
	}

	fingerprint, err := e.fingerprints.Generate(sessionID, level)
	if err != nil {
		return nil, err
	}

	lastRotation := e.fingerprints.LastRotation(sessionID)
	if !lastRotation.IsZero() && e.now().Sub(lastRotation) > 2*time.Hour {
		fingerprint, err = e.fingerprints.Rotate(sessionID, level)
		if err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	snapshot := &models.SafetyConfigSnapshot{
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		SafetyLevel: e.metrics.CurrentSafetyLevel,
		RateLimits:  e.config,
		PreparedAt:  e.now(),
	}
	e.mu.Unlock()

	return snapshot, nil
}

// TriggerEmergencyStop 운영자 수동 긴급 정지
func (e *SafetyEngine) TriggerEmergencyStop(reason string) {
	e.emergency.Trigger(reason)

	e.mu.Lock()
	e.metrics.CurrentSafetyLevel = models.SafetyLevelEmergencyStop
	e.notifyLocked("emergency_stop", "critical", reason, nil)
	e.mu.Unlock()
}

// ReleaseEmergencyStop 긴급 정지 해제. 안전 레벨은 normal이 아니라
// conservative로 돌아가 점진적으로 회복한다.
func (e *SafetyEngine) ReleaseEmergencyStop(reason string) {
	e.emergency.Release(reason)

	e.mu.Lock()
	e.metrics.CurrentSafetyLevel = models.SafetyLevelConservative
	e.metrics.PlatformWarnings = []string{}
	e.mu.Unlock()
}

// GetStatus 대시보드 스냅샷
func (e *SafetyEngine) GetStatus(ctx context.Context) (*models.SafetyStatus, error) {
	e.mu.Lock()

	if err := e.refreshMetricsLocked(); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to refresh safety metrics: %w", err)
	}

	status := &models.SafetyStatus{
		Metrics:             e.metrics,
		RateLimitConfig:     e.config,
		EmergencyStopActive: e.emergency.Active(),
		UpdatedAt:           e.now(),
	}
	e.mu.Unlock()

	status.Compliance = e.compliance.Metrics()
	status.Policy = e.compliance.Policy()
	status.RecentViolations = e.compliance.RecentViolations(5)
	if e.fingerprints != nil {
		status.SessionHealth = e.fingerprints.SessionHealths()
	}
	status.Recommendations = e.recommendations(status)

	return status, nil
}

// recommendations 현재 상태 기반 권고 문자열
func (e *SafetyEngine) recommendations(status *models.SafetyStatus) []string {
	recs := []string{}

	if status.Metrics.SuccessRate24h < 0.1 {
		recs = append(recs, "Consider pausing automation due to low success rate")
	}
	if status.Metrics.ConsecutiveFailures > 5 {
		recs = append(recs, "Review job filtering criteria - too many consecutive failures")
	}
	if float64(status.Metrics.ApplicationsToday) > float64(status.RateLimitConfig.MaxDailyApplications)*0.8 {
		recs = append(recs, "Approaching daily application limit - consider slowing down")
	}

	switch status.Compliance.CurrentRiskLevel {
	case models.RiskHigh:
		recs = append(recs, "High compliance risk - consider temporary pause")
	case models.RiskMedium:
		recs = append(recs, "Medium compliance risk - increase monitoring")
	}

	if status.Compliance.ViolationsToday > 3 {
		recs = append(recs, "Multiple violations today - review automation strategy")
	}

	unhealthy := 0
	for _, h := range status.SessionHealth {
		if h.HealthScore < 0.5 {
			unhealthy++
		}
	}
	if unhealthy > 0 {
		recs = append(recs, fmt.Sprintf("Rotate %d unhealthy browser sessions", unhealthy))
	}

	if len(recs) == 0 {
		recs = append(recs, "All systems operating within safe parameters")
	}

	return recs
}

// MonitorComplianceStatus 경고 지표를 집계해 컴플라이언스 상태를 갱신하고
// 안전 레벨을 조정한다. suspended에 도달하면 긴급 정지를 건다.
func (e *SafetyEngine) MonitorComplianceStatus(ctx context.Context) (models.ComplianceStatus, error) {
	e.mu.Lock()

	if err := e.refreshMetricsLocked(); err != nil {
		e.mu.Unlock()
		return models.ComplianceStatusWarning, err
	}

	warnings := 0
	e.metrics.PlatformWarnings = []string{}

	if e.metrics.SuccessRate24h < 0.1 && e.metrics.ApplicationsToday > 3 {
		warnings++
		e.metrics.PlatformWarnings = append(e.metrics.PlatformWarnings, "Low 24h success rate")
	}
	if e.metrics.SuccessRate7d < 0.15 {
		warnings++
		e.metrics.PlatformWarnings = append(e.metrics.PlatformWarnings, "Low 7d success rate")
	}
	if e.metrics.ConsecutiveFailures >= 3 {
		warnings++
		e.metrics.PlatformWarnings = append(e.metrics.PlatformWarnings, "Multiple consecutive failures")
	}

	captchaCount := 0
	rateLimitCount := 0
	for _, r := range e.analyzer.RecentResponses(10) {
		if r.HasCaptcha {
			captchaCount++
		}
		if r.HasRateLimitWarning {
			rateLimitCount++
		}
	}
	if captchaCount >= 2 {
		warnings += 2
		e.metrics.PlatformWarnings = append(e.metrics.PlatformWarnings, "Multiple CAPTCHAs detected")
	}
	if rateLimitCount >= 2 {
		warnings += 2
		e.metrics.PlatformWarnings = append(e.metrics.PlatformWarnings, "Multiple rate limit warnings")
	}

	var status models.ComplianceStatus
	switch {
	case warnings == 0:
		status = models.ComplianceStatusCompliant
	case warnings <= 2:
		status = models.ComplianceStatusWarning
	case warnings <= 4:
		status = models.ComplianceStatusViolation
	default:
		status = models.ComplianceStatusSuspended
	}
	e.metrics.ComplianceStatus = status

	// 상태에 따른 안전 레벨 조정
	suspended := false
	switch status {
	case models.ComplianceStatusCompliant:
		if e.metrics.CurrentSafetyLevel == models.SafetyLevelConservative {
			e.metrics.CurrentSafetyLevel = models.SafetyLevelNormal
		}
	case models.ComplianceStatusWarning:
		if e.metrics.CurrentSafetyLevel == models.SafetyLevelAggressive {
			e.metrics.CurrentSafetyLevel = models.SafetyLevelNormal
		}
	case models.ComplianceStatusViolation:
		e.metrics.CurrentSafetyLevel = models.SafetyLevelConservative
	case models.ComplianceStatusSuspended:
		suspended = true
	}

	e.mu.Unlock()

	if suspended {
		e.TriggerEmergencyStop("Compliance violation detected")
	}

	e.logger.Info("Compliance status monitored",
		zap.String("status", string(status)),
		zap.Int("warningIndicators", warnings))

	return status, nil
}

// UpdateRateLimitConfig 속도 제한 설정 교체 (관리자/스케일링 잡)
func (e *SafetyEngine) UpdateRateLimitConfig(config models.RateLimitConfig) error {
	if config.ScalingFactor <= 0 {
		return ErrInvalidScalingFactor
	}
	if config.MaxDailyApplications <= 0 || config.MaxHourlyApplications <= 0 {
		return fmt.Errorf("%w: application caps must be positive", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.config = config
	e.logger.Info("Rate limit config updated",
		zap.Int("maxDaily", config.MaxDailyApplications),
		zap.Int("maxHourly", config.MaxHourlyApplications),
		zap.Float64("scalingFactor", config.ScalingFactor))

	return nil
}

// RateLimitConfig 현재 설정 스냅샷
func (e *SafetyEngine) RateLimitConfig() models.RateLimitConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// UpdatePolicy 컴플라이언스 정책 갱신 위임
func (e *SafetyEngine) UpdatePolicy(policy models.CompliancePolicy) error {
	return e.compliance.UpdatePolicy(policy)
}

// refreshMetricsLocked 영속 기록에서 카운터/성공률을 재계산한다.
// 호출자가 락을 잡는다.
func (e *SafetyEngine) refreshMetricsLocked() error {
	if e.apps == nil {
		return nil
	}

	now := e.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	hourStart := now.Truncate(time.Hour)

	today, err := e.apps.CountSince(todayStart)
	if err != nil {
		return fmt.Errorf("failed to count applications today: %w", err)
	}
	e.metrics.ApplicationsToday = today

	thisHour, err := e.apps.CountSince(hourStart)
	if err != nil {
		return fmt.Errorf("failed to count applications this hour: %w", err)
	}
	e.metrics.ApplicationsThisHour = thisHour

	lastApp, err := e.apps.LastSubmittedAt()
	if err != nil {
		return fmt.Errorf("failed to get last application time: %w", err)
	}
	e.metrics.LastApplicationTime = lastApp

	rate24h, err := e.successRate(now.Add(-24 * time.Hour))
	if err != nil {
		return err
	}
	e.metrics.SuccessRate24h = rate24h

	rate7d, err := e.successRate(now.Add(-7 * 24 * time.Hour))
	if err != nil {
		return err
	}
	e.metrics.SuccessRate7d = rate7d

	failures, err := e.countConsecutiveFailures()
	if err != nil {
		return err
	}
	e.metrics.ConsecutiveFailures = failures

	return nil
}

// successRate 성공률 계산. 표본이 없으면 NaN이 아니라 0을 반환한다.
func (e *SafetyEngine) successRate(since time.Time) (float64, error) {
	total, err := e.apps.CountSince(since)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	successful, err := e.apps.CountSuccessfulSince(since)
	if err != nil {
		return 0, fmt.Errorf("failed to count successful applications: %w", err)
	}

	return float64(successful) / float64(total), nil
}

// countConsecutiveFailures 최근 제출부터 첫 성공 전까지의 실패 수
func (e *SafetyEngine) countConsecutiveFailures() (int, error) {
	recent, err := e.apps.FindRecent(10)
	if err != nil {
		return 0, fmt.Errorf("failed to load recent applications: %w", err)
	}

	failures := 0
	for _, app := range recent {
		if app.Successful() {
			break
		}
		failures++
	}

	return failures, nil
}

// checkRiskTransitionLocked high/critical 진입 시에만 알림을 보낸다.
// 호출자가 락을 잡는다.
func (e *SafetyEngine) checkRiskTransitionLocked() {
	risk := e.compliance.RiskLevel()

	escalated := (risk == models.RiskHigh || risk == models.RiskCritical) &&
		risk != e.lastNotifiedRisk

	if escalated {
		e.notifyLocked("compliance_risk", string(risk),
			fmt.Sprintf("Compliance risk escalated to %s", risk), nil)
	}

	e.lastNotifiedRisk = risk
}

// notifyLocked 알림 팬아웃. fire-and-forget, 실패는 Notifier가 로깅한다.
func (e *SafetyEngine) notifyLocked(eventType, severity, message string, evidence map[string]interface{}) {
	if len(e.notifiers) == 0 {
		return
	}

	event := notify.Event{
		Type:       eventType,
		Severity:   severity,
		Message:    message,
		Evidence:   evidence,
		OccurredAt: e.now(),
	}

	for _, n := range e.notifiers {
		go func(n notify.Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = n.Notify(ctx, event)
		}(n)
	}
}
