package service

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateScaler slow_down 액션이 딜레이 배율을 올릴 때 사용하는 콜백.
// 안전 엔진이 구현한다.
type RateScaler interface {
	ScaleDelays(factor float64, reason string)
}

// ViolationStore 위반 기록의 영속 미러 (append-only)
type ViolationStore interface {
	Record(v *models.PolicyViolation) error
}

var accountWarningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)account.*warning`),
	regexp.MustCompile(`(?i)policy.*violation`),
	regexp.MustCompile(`(?i)terms.*service`),
	regexp.MustCompile(`(?i)suspended.*account`),
}

var captchaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)recaptcha`),
	regexp.MustCompile(`(?i)verify.*human`),
	regexp.MustCompile(`(?i)security.*check`),
	regexp.MustCompile(`(?i)unusual.*activity`),
}

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate.*limit`),
	regexp.MustCompile(`(?i)too.*many.*requests`),
	regexp.MustCompile(`(?i)slow.*down`),
	regexp.MustCompile(`(?i)temporarily.*blocked`),
}

// ComplianceService 정책 위반 이력과 리스크 평가.
// 위반 이력은 메모리에 순서대로 쌓이고, 영속 미러는 선택적이다.
type ComplianceService struct {
	mu         sync.Mutex
	violations []*models.PolicyViolation
	policy     models.CompliancePolicy
	metrics    models.ComplianceMetrics

	emergency *EmergencyControl
	scaler    RateScaler
	store     ViolationStore // nil이면 미러링 생략
	logger    *zap.Logger
	now       func() time.Time
}

func NewComplianceService(emergency *EmergencyControl, store ViolationStore) *ComplianceService {
	logger, _ := zap.NewProduction()
	return &ComplianceService{
		violations: make([]*models.PolicyViolation, 0),
		policy:     models.DefaultCompliancePolicy(),
		metrics: models.ComplianceMetrics{
			CurrentRiskLevel: models.RiskLow,
			ComplianceScore:  1.0,
		},
		emergency: emergency,
		store:     store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetRateScaler slow_down 액션 연결 (엔진 조립 시 호출)
func (s *ComplianceService) SetRateScaler(scaler RateScaler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scaler = scaler
}

// DetectViolations 응답 데이터에서 위반을 추출한다. 개별 검사 실패는
// 해당 검사만 건너뛰고 전체 사이클을 막지 않는다.
func (s *ComplianceService) DetectViolations(data models.ResponseData, successRate24h float64, applicationsToday int) []*models.PolicyViolation {
	content := data.Content
	var violations []*models.PolicyViolation

	if v := checkPatterns(content, captchaPatterns, models.ViolationCaptchaTriggered,
		models.SeverityHigh, "CAPTCHA challenge detected on platform"); v != nil {
		violations = append(violations, v)
	}

	if v := s.checkRateLimit(data); v != nil {
		violations = append(violations, v)
	}

	if v := checkPatterns(content, accountWarningPatterns, models.ViolationAccountWarning,
		models.SeverityCritical, "Account warning or policy violation detected"); v != nil {
		violations = append(violations, v)
	}

	if v := checkUnusualResponse(data); v != nil {
		violations = append(violations, v)
	}

	s.mu.Lock()
	threshold := s.policy.MinSuccessRateThreshold
	s.mu.Unlock()

	if applicationsToday >= 5 && successRate24h < threshold {
		violations = append(violations, newViolation(
			models.ViolationSuccessRateLow,
			models.SeverityMedium,
			fmt.Sprintf("Success rate below threshold: %.1f%%", successRate24h*100),
			map[string]interface{}{
				"successRate": successRate24h,
				"threshold":   threshold,
			},
		))
	}

	return violations
}

func (s *ComplianceService) checkRateLimit(data models.ResponseData) *models.PolicyViolation {
	if v := checkPatterns(data.Content, rateLimitPatterns, models.ViolationRateLimitExceeded,
		models.SeverityHigh, "Rate limiting detected from platform response"); v != nil {
		return v
	}

	for _, header := range rateLimitHeaders {
		if headerPresent(data.Headers, header) {
			return newViolation(
				models.ViolationRateLimitExceeded,
				models.SeverityMedium,
				"Rate limit headers detected",
				map[string]interface{}{"headerFound": header},
			)
		}
	}

	return nil
}

// Process 위반을 이력에 기록하고 대응 액션을 결정/실행한다.
// 위반은 탐지 순서대로 호출되어야 한다 (적응 로직이 최근 N건을 본다).
func (s *ComplianceService) Process(violation *models.PolicyViolation) models.ComplianceAction {
	s.mu.Lock()

	s.violations = append(s.violations, violation)
	s.metrics.TotalViolations++
	s.metrics.ViolationsToday++
	s.metrics.LastViolationTime = &violation.DetectedAt

	action := s.determineAction(violation)
	violation.ActionTaken = &action

	switch action {
	case models.ActionEmergencyStop:
		s.metrics.EmergencyStopsTriggered++
	case models.ActionPauseTemporarily:
		s.logger.Warn("Temporary pause triggered",
			zap.Int("pauseSeconds", s.pauseDuration(violation)))
	}

	s.updateRiskLevel()

	if s.policy.AutoAdaptPolicies {
		s.adaptPolicies(violation)
	}

	stopOnCritical := s.policy.EmergencyStopOnCritical
	scaler := s.scaler
	s.mu.Unlock()

	// 외부 협력자 호출은 락 밖에서 수행한다 (락 순서 역전 방지)
	switch action {
	case models.ActionEmergencyStop:
		if stopOnCritical && s.emergency != nil {
			s.emergency.Trigger(violation.Description)
		}
	case models.ActionSlowDown:
		if scaler != nil {
			scaler.ScaleDelays(1.5, string(violation.ViolationType))
		}
	}

	if s.store != nil {
		if err := s.store.Record(violation); err != nil {
			s.logger.Warn("Failed to persist violation",
				zap.String("violationId", violation.ID),
				zap.Error(err))
		}
	}

	s.logger.Warn("Processed violation",
		zap.String("type", string(violation.ViolationType)),
		zap.String("severity", violation.Severity.String()),
		zap.String("action", string(action)))

	return action
}

// determineAction 심각도 우선순위 테이블. 호출자가 락을 잡는다.
func (s *ComplianceService) determineAction(violation *models.PolicyViolation) models.ComplianceAction {
	switch violation.Severity {
	case models.SeverityCritical:
		return models.ActionEmergencyStop

	case models.SeverityHigh:
		switch violation.ViolationType {
		case models.ViolationCaptchaTriggered, models.ViolationRateLimitExceeded:
			return models.ActionPauseTemporarily
		}
		return models.ActionSlowDown

	case models.SeverityMedium:
		// 최근 5건 중 medium 이상이 3건이면 일시 정지로 격상
		recent := 0
		start := len(s.violations) - 5
		if start < 0 {
			start = 0
		}
		for _, v := range s.violations[start:] {
			if v.Severity >= models.SeverityMedium {
				recent++
			}
		}
		if recent >= 3 {
			return models.ActionPauseTemporarily
		}
		return models.ActionSlowDown
	}

	return models.ActionContinue
}

// pauseDuration 위반 유형별 일시 정지 시간 (초)
func (s *ComplianceService) pauseDuration(violation *models.PolicyViolation) int {
	switch violation.ViolationType {
	case models.ViolationCaptchaTriggered:
		return s.policy.CaptchaPauseDuration
	case models.ViolationRateLimitExceeded:
		return s.policy.RateLimitPauseDuration
	}
	return 1800
}

// PauseDurationFor 엔진이 pause_temporarily 딜레이를 계산할 때 사용
func (s *ComplianceService) PauseDurationFor(violation *models.PolicyViolation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseDuration(violation)
}

// updateRiskLevel 최근 24시간 위반의 가중 합으로 리스크 레벨과
// 컴플라이언스 점수를 재계산한다. 호출자가 락을 잡는다.
func (s *ComplianceService) updateRiskLevel() {
	cutoff := s.now().Add(-24 * time.Hour)

	score := 0
	count := 0
	for _, v := range s.violations {
		if v.DetectedAt.Before(cutoff) {
			continue
		}
		count++
		switch v.Severity {
		case models.SeverityCritical:
			score += 4
		case models.SeverityHigh:
			score += 3
		case models.SeverityMedium:
			score += 2
		default:
			score++
		}
	}

	switch {
	case score >= 10:
		s.metrics.CurrentRiskLevel = models.RiskCritical
	case score >= 6:
		s.metrics.CurrentRiskLevel = models.RiskHigh
	case score >= 3:
		s.metrics.CurrentRiskLevel = models.RiskMedium
	default:
		s.metrics.CurrentRiskLevel = models.RiskLow
	}

	if count > 0 {
		complianceScore := 1.0 - float64(score)/float64(count*4)
		if complianceScore < 0 {
			complianceScore = 0
		}
		s.metrics.ComplianceScore = complianceScore
	} else {
		s.metrics.ComplianceScore = 1.0
	}
}

// adaptPolicies 최근 20건 중 같은 유형이 3건 이상이면 정책을 조인다.
// 호출자가 락을 잡는다.
func (s *ComplianceService) adaptPolicies(violation *models.PolicyViolation) {
	start := len(s.violations) - 20
	if start < 0 {
		start = 0
	}

	similar := 0
	for _, v := range s.violations[start:] {
		if v.ViolationType == violation.ViolationType {
			similar++
		}
	}
	if similar < 3 {
		return
	}

	switch violation.ViolationType {
	case models.ViolationRateLimitExceeded:
		if s.policy.MaxApplicationsPerHour > 1 {
			s.policy.MaxApplicationsPerHour--
		}
		if s.policy.MaxApplicationsPerDay > 5 {
			s.policy.MaxApplicationsPerDay -= 5
			if s.policy.MaxApplicationsPerDay < 5 {
				s.policy.MaxApplicationsPerDay = 5
			}
		}

	case models.ViolationSuccessRateLow:
		s.policy.MinSuccessRateThreshold += 0.05
		if s.policy.MinSuccessRateThreshold > 0.3 {
			s.policy.MinSuccessRateThreshold = 0.3
		}

	case models.ViolationCaptchaTriggered:
		s.policy.CaptchaPauseDuration += 600
		if s.policy.CaptchaPauseDuration > 7200 {
			s.policy.CaptchaPauseDuration = 7200
		}

	default:
		return
	}

	s.metrics.PolicyAdaptations++
	s.logger.Info("Adapted compliance policy",
		zap.String("violationType", string(violation.ViolationType)))
}

// ContinuationAllowed 이번 사이클의 위반을 보고 자동화 계속 여부 결정
func (s *ComplianceService) ContinuationAllowed(cycleViolations []*models.PolicyViolation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	highCount := 0
	for _, v := range cycleViolations {
		if v.Severity == models.SeverityCritical {
			return false
		}
		if v.Severity == models.SeverityHigh {
			highCount++
		}
	}
	if highCount >= 2 {
		return false
	}

	if s.metrics.CurrentRiskLevel == models.RiskCritical {
		return false
	}

	// 직전 1시간에 5건 이상이면 정지
	cutoff := s.now().Add(-time.Hour)
	recentCount := 0
	start := len(s.violations) - 10
	if start < 0 {
		start = 0
	}
	for _, v := range s.violations[start:] {
		if !v.DetectedAt.Before(cutoff) {
			recentCount++
		}
	}

	return recentCount < 5
}

// RiskLevel 현재 리스크 레벨
func (s *ComplianceService) RiskLevel() models.RiskLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.CurrentRiskLevel
}

// Metrics 컴플라이언스 지표 스냅샷
func (s *ComplianceService) Metrics() models.ComplianceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateRiskLevel()
	return s.metrics
}

// Policy 현재 정책 스냅샷
func (s *ComplianceService) Policy() models.CompliancePolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// RecentViolations 최근 n건 위반 (대시보드용)
func (s *ComplianceService) RecentViolations(n int) []models.PolicyViolation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.violations) {
		n = len(s.violations)
	}

	out := make([]models.PolicyViolation, 0, n)
	for _, v := range s.violations[len(s.violations)-n:] {
		out = append(out, *v)
	}
	return out
}

// UpdatePolicy 정책 갱신. 임계값 순서가 깨지면 아무것도 적용하지 않는다.
func (s *ComplianceService) UpdatePolicy(policy models.CompliancePolicy) error {
	if err := policy.SeverityThresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidThresholds, err)
	}
	if policy.MaxApplicationsPerHour <= 0 || policy.MaxApplicationsPerDay <= 0 {
		return fmt.Errorf("%w: application caps must be positive", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.policy = policy
	s.logger.Info("Compliance policy updated")
	return nil
}

// ResetViolations 위반 이력 초기화. 유형을 지정하면 해당 유형만 제거한다.
func (s *ComplianceService) ResetViolations(violationType *models.ViolationType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if violationType != nil {
		kept := s.violations[:0]
		for _, v := range s.violations {
			if v.ViolationType != *violationType {
				kept = append(kept, v)
			}
		}
		s.violations = kept
		s.logger.Info("Reset violations by type",
			zap.String("violationType", string(*violationType)))
		return
	}

	s.violations = s.violations[:0]
	s.metrics.TotalViolations = 0
	s.metrics.ViolationsToday = 0
	s.metrics.LastViolationTime = nil
	s.logger.Info("Reset all violations")
}

func checkPatterns(content string, patterns []*regexp.Regexp, vtype models.ViolationType, severity models.Severity, description string) *models.PolicyViolation {
	for _, pattern := range patterns {
		if pattern.MatchString(content) {
			snippet := content
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			return newViolation(vtype, severity, description, map[string]interface{}{
				"patternMatched": pattern.String(),
				"contentSnippet": snippet,
			})
		}
	}
	return nil
}

func checkUnusualResponse(data models.ResponseData) *models.PolicyViolation {
	switch data.StatusCode {
	case 429, 503, 403:
		return newViolation(
			models.ViolationUnusualResponse,
			models.SeverityMedium,
			fmt.Sprintf("Unusual HTTP status code: %d", data.StatusCode),
			map[string]interface{}{
				"statusCode":   data.StatusCode,
				"responseTime": data.ResponseTime,
			},
		)
	}

	if len(data.Content) < 500 && data.StatusCode == 200 {
		return newViolation(
			models.ViolationUnusualResponse,
			models.SeverityLow,
			"Unusually short response content",
			map[string]interface{}{
				"contentLength": len(data.Content),
				"statusCode":    data.StatusCode,
			},
		)
	}

	if data.ResponseTime > 30 {
		return newViolation(
			models.ViolationUnusualResponse,
			models.SeverityLow,
			"Unusually slow response time",
			map[string]interface{}{"responseTime": data.ResponseTime},
		)
	}

	return nil
}

func newViolation(vtype models.ViolationType, severity models.Severity, description string, evidence map[string]interface{}) *models.PolicyViolation {
	return &models.PolicyViolation{
		ID:            uuid.New().String(),
		ViolationType: vtype,
		Severity:      severity,
		Description:   description,
		DetectedAt:    time.Now().UTC(),
		Evidence:      evidence,
	}
}
