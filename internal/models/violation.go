package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type ViolationType string

const (
	ViolationRateLimitExceeded  ViolationType = "rate_limit_exceeded"
	ViolationSuspiciousActivity ViolationType = "suspicious_activity"
	ViolationCaptchaTriggered   ViolationType = "captcha_triggered"
	ViolationAccountWarning     ViolationType = "account_warning"
	ViolationUnusualResponse    ViolationType = "unusual_response"
	ViolationSuccessRateLow     ViolationType = "success_rate_low"
)

// Severity 위반 심각도. 문자열 비교가 아닌 순서 있는 랭크로 비교한다.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseSeverity 문자열을 Severity로 변환
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityLow, fmt.Errorf("unknown severity: %q", s)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	sev, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

type ComplianceAction string

const (
	ActionContinue         ComplianceAction = "continue"
	ActionSlowDown         ComplianceAction = "slow_down"
	ActionPauseTemporarily ComplianceAction = "pause_temporarily"
	ActionEmergencyStop    ComplianceAction = "emergency_stop"
	ActionRotateSession    ComplianceAction = "rotate_session"
	ActionChangeStrategy   ComplianceAction = "change_strategy"
)

// PolicyViolation 정책 위반 기록. 생성 후 ActionTaken/Resolved 외에는 변경하지 않는다.
type PolicyViolation struct {
	ID            string                 `json:"id" db:"id"`
	ViolationType ViolationType          `json:"violationType" db:"violation_type"`
	Severity      Severity               `json:"severity" db:"severity"`
	Description   string                 `json:"description" db:"description"`
	DetectedAt    time.Time              `json:"detectedAt" db:"detected_at"`
	Evidence      map[string]interface{} `json:"evidence" db:"evidence"`

	ActionTaken *ComplianceAction `json:"actionTaken,omitempty" db:"action_taken"`
	Resolved    bool              `json:"resolved" db:"resolved"`
}

// SeverityThresholds 심각도별 에스컬레이션 임계값 (일일 허용 위반 수).
// critical ≤ high ≤ medium ≤ low 순서를 만족해야 한다.
type SeverityThresholds struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Validate 임계값 순서 검증
func (t SeverityThresholds) Validate() error {
	if t.Critical < 0 || t.High < 0 || t.Medium < 0 || t.Low < 0 {
		return fmt.Errorf("severity thresholds must be non-negative")
	}
	if t.Critical > t.High || t.High > t.Medium || t.Medium > t.Low {
		return fmt.Errorf("severity thresholds must satisfy critical <= high <= medium <= low")
	}
	return nil
}

// CompliancePolicy 컴플라이언스 정책 설정
type CompliancePolicy struct {
	MaxApplicationsPerHour    int                `json:"maxApplicationsPerHour"`
	MaxApplicationsPerDay     int                `json:"maxApplicationsPerDay"`
	MinSuccessRateThreshold   float64            `json:"minSuccessRateThreshold"`
	MaxConsecutiveFailures    int                `json:"maxConsecutiveFailures"`
	CaptchaPauseDuration      int                `json:"captchaPauseDuration"`   // seconds
	RateLimitPauseDuration    int                `json:"rateLimitPauseDuration"` // seconds
	SeverityThresholds        SeverityThresholds `json:"severityThresholds"`
	AutoAdaptPolicies         bool               `json:"autoAdaptPolicies"`
	EmergencyStopOnCritical   bool               `json:"emergencyStopOnCritical"`
}

// DefaultCompliancePolicy 기본 컴플라이언스 정책
func DefaultCompliancePolicy() CompliancePolicy {
	return CompliancePolicy{
		MaxApplicationsPerHour:  5,
		MaxApplicationsPerDay:   30,
		MinSuccessRateThreshold: 0.1,
		MaxConsecutiveFailures:  5,
		CaptchaPauseDuration:    3600,
		RateLimitPauseDuration:  1800,
		SeverityThresholds: SeverityThresholds{
			Critical: 1,
			High:     3,
			Medium:   5,
			Low:      10,
		},
		AutoAdaptPolicies:       true,
		EmergencyStopOnCritical: true,
	}
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ComplianceMetrics 컴플라이언스 모니터링 지표
type ComplianceMetrics struct {
	TotalViolations         int        `json:"totalViolations"`
	ViolationsToday         int        `json:"violationsToday"`
	LastViolationTime       *time.Time `json:"lastViolationTime,omitempty"`
	CurrentRiskLevel        RiskLevel  `json:"currentRiskLevel"`
	PolicyAdaptations       int        `json:"policyAdaptations"`
	EmergencyStopsTriggered int        `json:"emergencyStopsTriggered"`
	ComplianceScore         float64    `json:"complianceScore"` // 0.0 ~ 1.0
}
