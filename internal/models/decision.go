package models

import "time"

// Decision 안전 평가에 따른 자동화 결정. 호출자는 여섯 경우를 모두 처리해야 한다.
type Decision string

const (
	DecisionProceed          Decision = "proceed"
	DecisionProceedWithDelay Decision = "proceed_with_delay"
	DecisionPauseTemporarily Decision = "pause_temporarily"
	DecisionEmergencyStop    Decision = "emergency_stop"
	DecisionRotateSession    Decision = "rotate_session"
	DecisionChangeStrategy   Decision = "change_strategy"
)

// SafetyAssessment 종합 안전 평가 결과
type SafetyAssessment struct {
	Decision        Decision `json:"decision"`
	Reason          string   `json:"reason"`
	DelaySeconds    int      `json:"delaySeconds"`
	Confidence      float64  `json:"confidence"` // 0.0 ~ 1.0
	Recommendations []string `json:"recommendations"`
}

// ApplicationContext 지원 시도 컨텍스트
type ApplicationContext struct {
	JobID            string     `json:"jobId" binding:"required"`
	SessionID        string     `json:"sessionId" binding:"required"`
	AttemptNumber    int        `json:"attemptNumber"`
	PreviousFailures int        `json:"previousFailures"`
	LastAttemptTime  *time.Time `json:"lastAttemptTime,omitempty"`
}

// AntiBotDetection 안티봇 탐지 결과
type AntiBotDetection struct {
	CaptchaDetected      bool      `json:"captchaDetected"`
	RateLimiting         bool      `json:"rateLimiting"`
	FingerprintingScript bool      `json:"fingerprintingScripts"`
	BotDetectionServices []string  `json:"botDetectionServices"`
	SuspiciousHeaders    []string  `json:"suspiciousHeaders"`
	RiskLevel            RiskLevel `json:"riskLevel"`
}

// Adaptation 응답 분석 후 적용된 조정
type Adaptation struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// AnalysisResult 응답 분석 + 적응 결과
type AnalysisResult struct {
	ContinueAllowed    bool              `json:"continueAllowed"`
	PlatformResponse   PlatformResponse  `json:"platformResponse"`
	AntiBotDetection   AntiBotDetection  `json:"antiBotDetection"`
	Violations         []PolicyViolation `json:"violations"`
	AdaptationsApplied []Adaptation      `json:"adaptationsApplied"`
	SessionHealth      *SessionHealth    `json:"sessionHealth,omitempty"`
}
