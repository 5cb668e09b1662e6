package models

import "time"

type SafetyLevel string

const (
	SafetyLevelConservative  SafetyLevel = "conservative"   // 최소 활동, 최대 안전
	SafetyLevelNormal        SafetyLevel = "normal"         // 표준 운영
	SafetyLevelAggressive    SafetyLevel = "aggressive"     // 높은 볼륨, 짧은 딜레이
	SafetyLevelEmergencyStop SafetyLevel = "emergency_stop" // 모든 자동화 중지
)

type ComplianceStatus string

const (
	ComplianceStatusCompliant ComplianceStatus = "compliant"
	ComplianceStatusWarning   ComplianceStatus = "warning"
	ComplianceStatusViolation ComplianceStatus = "violation"
	ComplianceStatusSuspended ComplianceStatus = "suspended"
)

// RateLimitConfig 지원 속도 제한 설정
type RateLimitConfig struct {
	MaxDailyApplications  int     `json:"maxDailyApplications"`
	MaxHourlyApplications int     `json:"maxHourlyApplications"`
	MinTimeBetweenApps    int     `json:"minTimeBetweenApplications"` // seconds
	BaseDelayMin          int     `json:"baseDelayMin"`               // seconds
	BaseDelayMax          int     `json:"baseDelayMax"`               // seconds
	ScalingFactor         float64 `json:"scalingFactor"`              // 0보다 커야 함
	HumanPatternVariance  float64 `json:"humanPatternVariance"`
}

// DefaultRateLimitConfig 기본 속도 제한 설정
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxDailyApplications:  30,
		MaxHourlyApplications: 5,
		MinTimeBetweenApps:    300,
		BaseDelayMin:          60,
		BaseDelayMax:          180,
		ScalingFactor:         1.0,
		HumanPatternVariance:  0.3,
	}
}

// SafetyMetrics 안전/컴플라이언스 지표
type SafetyMetrics struct {
	ApplicationsToday    int              `json:"applicationsToday"`
	ApplicationsThisHour int              `json:"applicationsThisHour"`
	SuccessRate24h       float64          `json:"successRate24h"`
	SuccessRate7d        float64          `json:"successRate7d"`
	ConsecutiveFailures  int              `json:"consecutiveFailures"`
	LastApplicationTime  *time.Time       `json:"lastApplicationTime,omitempty"`
	CurrentSafetyLevel   SafetyLevel      `json:"currentSafetyLevel"`
	ComplianceStatus     ComplianceStatus `json:"complianceStatus"`
	PlatformWarnings     []string         `json:"platformWarnings"`
}

// NewSafetyMetrics 초기 지표 생성
func NewSafetyMetrics() SafetyMetrics {
	return SafetyMetrics{
		CurrentSafetyLevel: SafetyLevelNormal,
		ComplianceStatus:   ComplianceStatusCompliant,
		PlatformWarnings:   []string{},
	}
}

// PlatformResponse 플랫폼 응답 분석 결과
type PlatformResponse struct {
	ResponseTime        float64  `json:"responseTime"` // seconds
	StatusCode          int      `json:"statusCode"`
	ContentLength       int      `json:"contentLength"`
	HasCaptcha          bool     `json:"hasCaptcha"`
	HasRateLimitWarning bool     `json:"hasRateLimitWarning"`
	HasUnusualContent   bool     `json:"hasUnusualContent"`
	ErrorIndicators     []string `json:"errorIndicators"`
}

// ResponseData 브라우저 자동화 계층이 전달하는 원시 응답 데이터
type ResponseData struct {
	StatusCode   int               `json:"statusCode" binding:"required"`
	Content      string            `json:"content"`
	Headers      map[string]string `json:"headers"`
	ResponseTime float64           `json:"responseTime"` // seconds
}
