package models

import "time"

// SafetyStatus 대시보드용 종합 상태 스냅샷
type SafetyStatus struct {
	Metrics             SafetyMetrics     `json:"safetyMetrics"`
	RateLimitConfig     RateLimitConfig   `json:"rateLimitConfig"`
	Compliance          ComplianceMetrics `json:"compliance"`
	Policy              CompliancePolicy  `json:"policy"`
	RecentViolations    []PolicyViolation `json:"recentViolations"`
	SessionHealth       []SessionHealth   `json:"sessionHealth"`
	EmergencyStopActive bool              `json:"emergencyStopActive"`
	Recommendations     []string          `json:"recommendations"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// SafetyConfigSnapshot 브라우저 자동화 계층에 전달되는 세션 준비 결과
type SafetyConfigSnapshot struct {
	SessionID   string              `json:"sessionId"`
	Fingerprint *BrowserFingerprint `json:"fingerprint"`
	SafetyLevel SafetyLevel         `json:"safetyLevel"`
	RateLimits  RateLimitConfig     `json:"rateLimits"`
	PreparedAt  time.Time           `json:"preparedAt"`
}
